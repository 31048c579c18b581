// internal/handlers/rbac/permission_handler.go
package rbac

import (
	"net/http"

	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/middleware"
	"backoffice-iam/internal/pkg/response"
	rbacsvc "backoffice-iam/internal/service/rbac"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PermissionHandler struct {
	rbac *rbacsvc.Service
	audience
}

func NewPermissionHandler(service *rbacsvc.Service, admins AdminLister, notifier PermissionsNotifier, logger *zap.Logger) *PermissionHandler {
	return &PermissionHandler{
		rbac:     service,
		audience: audience{admins: admins, roles: service, notifier: notifier, logger: logger},
	}
}

func (h *PermissionHandler) CreatePermission(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req rbac.CreatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := h.rbac.CreatePermission(c.Request.Context(), req, actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, "permission created", p)
}

// ListPermissions supports ?module=&category=&is_active=&is_system=&limit=&offset=
func (h *PermissionHandler) ListPermissions(c *gin.Context) {
	f := rbac.PermissionFilter{
		Module:   rbac.Module(c.Query("module")),
		Category: rbac.Category(c.Query("category")),
		IsActive: queryBool(c, "is_active"),
		IsSystem: queryBool(c, "is_system"),
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}

	perms, err := h.rbac.ListPermissions(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "permissions retrieved", gin.H{"permissions": perms, "count": len(perms)})
}

func (h *PermissionHandler) GetPermission(c *gin.Context) {
	p, err := h.rbac.GetPermission(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "permission retrieved", p)
}

func (h *PermissionHandler) UpdatePermission(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req rbac.UpdatePermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	p, err := h.rbac.UpdatePermission(c.Request.Context(), c.Param("id"), req.Mutation(actor))
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.permissionsChanged(c.Request.Context(), []string{p.ID}, "permission_updated")
	response.Success(c, http.StatusOK, "permission updated", p)
}

func (h *PermissionHandler) BulkUpdatePermissions(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req rbac.BulkUpdatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	perms, err := h.rbac.UpdatePermissions(c.Request.Context(), req.Filter, req.Update.Mutation(actor))
	if err != nil {
		response.FromError(c, err)
		return
	}

	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	h.permissionsChanged(c.Request.Context(), ids, "permission_updated")
	response.Success(c, http.StatusOK, "permissions updated", gin.H{"permissions": perms, "count": len(perms)})
}

func (h *PermissionHandler) DeletePermission(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)
	id := c.Param("id")

	if err := h.rbac.DeletePermission(c.Request.Context(), id, actor); err != nil {
		response.FromError(c, err)
		return
	}

	h.permissionsChanged(c.Request.Context(), []string{id}, "permission_deleted")
	response.Success(c, http.StatusOK, "permission deleted", nil)
}
