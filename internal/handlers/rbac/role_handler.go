// internal/handlers/rbac/role_handler.go
package rbac

import (
	"net/http"
	"strconv"

	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/middleware"
	"backoffice-iam/internal/pkg/response"
	rbacsvc "backoffice-iam/internal/service/rbac"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RoleHandler struct {
	rbac *rbacsvc.Service
	audience
}

func NewRoleHandler(service *rbacsvc.Service, admins AdminLister, notifier PermissionsNotifier, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{
		rbac:     service,
		audience: audience{admins: admins, roles: service, notifier: notifier, logger: logger},
	}
}

func (h *RoleHandler) CreateRole(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req rbac.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	role, err := h.rbac.CreateRole(c.Request.Context(), req, actor)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, "role created", role)
}

// ListRoles supports ?is_active=&is_system=&limit=&offset=
func (h *RoleHandler) ListRoles(c *gin.Context) {
	f := rbac.RoleFilter{
		IsActive: queryBool(c, "is_active"),
		IsSystem: queryBool(c, "is_system"),
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}

	roles, err := h.rbac.ListRoles(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "roles retrieved", gin.H{"roles": roles, "count": len(roles)})
}

func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.rbac.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "role retrieved", role)
}

// UpdateRole applies a partial update. Protected fields of system roles are
// refused with 403.
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req rbac.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	role, err := h.rbac.UpdateRole(c.Request.Context(), c.Param("id"), req.Mutation(actor))
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.rolesChanged(c.Request.Context(), []string{role.ID}, "role_updated")
	response.Success(c, http.StatusOK, "role updated", role)
}

// BulkUpdateRoles applies one update to every role matching a filter.
func (h *RoleHandler) BulkUpdateRoles(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req rbac.BulkUpdateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	roles, err := h.rbac.UpdateRoles(c.Request.Context(), req.Filter, req.Update.Mutation(actor))
	if err != nil {
		response.FromError(c, err)
		return
	}

	ids := make([]string, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	h.rolesChanged(c.Request.Context(), ids, "role_updated")
	response.Success(c, http.StatusOK, "roles updated", gin.H{"roles": roles, "count": len(roles)})
}

func (h *RoleHandler) DeleteRole(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)
	id := c.Param("id")

	if err := h.rbac.DeleteRole(c.Request.Context(), id, actor); err != nil {
		response.FromError(c, err)
		return
	}

	h.rolesChanged(c.Request.Context(), []string{id}, "role_deleted")
	response.Success(c, http.StatusOK, "role deleted", nil)
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(c *gin.Context, key string) *bool {
	b, err := strconv.ParseBool(c.Query(key))
	if err != nil {
		return nil
	}
	return &b
}
