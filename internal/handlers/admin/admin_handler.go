// internal/handlers/admin/admin_handler.go
package admin

import (
	"net/http"
	"strconv"

	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/middleware"
	"backoffice-iam/internal/pkg/response"
	authUsecase "backoffice-iam/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxPageSize = 100

// AdminHandler serves account administration.
type AdminHandler struct {
	authService *authUsecase.AuthService
	logger      *zap.Logger
}

func NewAdminHandler(authService *authUsecase.AuthService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{authService: authService, logger: logger}
}

// CreateAdmin provisions a new admin account
func (h *AdminHandler) CreateAdmin(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req admin.CreateAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	info, err := h.authService.CreateAdmin(c.Request.Context(), &req, actor)
	if err != nil {
		response.FromError(c, err)
		return
	}

	h.logger.Info("admin created", zap.String("admin_id", info.ID), zap.String("created_by", actor))
	response.Success(c, http.StatusCreated, "admin created", info)
}

// ListAdmins supports ?status=&role_id=&limit=&offset=
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	f := admin.Filter{
		Status: admin.Status(c.Query("status")),
		RoleID: c.Query("role_id"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if f.Limit <= 0 || f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	admins, err := h.authService.ListAdmins(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "admins retrieved", gin.H{
		"admins": admins,
		"count":  len(admins),
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (h *AdminHandler) GetAdmin(c *gin.Context) {
	info, err := h.authService.GetAdmin(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "admin retrieved", info)
}

// UpdateStatus moves an admin between ACTIVE, INACTIVE and SUSPENDED
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req admin.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.SetAdminStatus(c.Request.Context(), c.Param("id"), req.Status, actor); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "status updated", gin.H{"status": req.Status})
}

func (h *AdminHandler) Unlock(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	if err := h.authService.UnlockAdmin(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "account unlocked", nil)
}

func (h *AdminHandler) AssignRole(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	var req admin.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.AssignRole(c.Request.Context(), c.Param("id"), req.RoleID, actor); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "role assigned", gin.H{"role_id": req.RoleID})
}

func (h *AdminHandler) DeleteAdmin(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)

	if err := h.authService.DeleteAdmin(c.Request.Context(), c.Param("id"), actor); err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "admin deleted", nil)
}

// ListSessions returns another admin's live sessions
func (h *AdminHandler) ListSessions(c *gin.Context) {
	sessions, err := h.authService.ListSessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, "active sessions", gin.H{"sessions": sessions, "count": len(sessions)})
}

// RevokeSessions signs another admin out everywhere
func (h *AdminHandler) RevokeSessions(c *gin.Context) {
	actor := middleware.MustGetAdminID(c)
	target := c.Param("id")

	if err := h.authService.RevokeSessions(c.Request.Context(), target, "revoked_by_admin"); err != nil {
		response.FromError(c, err)
		return
	}

	h.logger.Info("sessions revoked by admin", zap.String("admin_id", target), zap.String("actor", actor))
	response.Success(c, http.StatusOK, "sessions revoked", nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
