// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"

	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/middleware"
	"backoffice-iam/internal/pkg/response"
	authUsecase "backoffice-iam/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *authUsecase.AuthService
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ========== Login ==========

// Login handles admin sign in
func (h *AuthHandler) Login(c *gin.Context) {
	var req admin.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	loginResp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		h.logger.Info("login failed",
			zap.String("email", req.Email),
			zap.String("ip", req.IPAddress),
			zap.Error(err),
		)
		response.FromError(c, err)
		return
	}

	h.logger.Info("admin logged in",
		zap.String("admin_id", loginResp.Admin.ID),
		zap.String("email", loginResp.Admin.Email),
	)

	response.Success(c, http.StatusOK, "login successful", loginResp)
}

// Refresh rotates the refresh token and issues a new access token
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req admin.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	req.IPAddress = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.authService.Refresh(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "token refreshed", resp)
}

// ========== Logout ==========

// Logout ends the current session (requires auth)
func (h *AuthHandler) Logout(c *gin.Context) {
	id := middleware.MustGetIdentity(c)

	var req admin.LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "invalid request", err)
			return
		}
	}

	if err := h.authService.Logout(c.Request.Context(), id, req.RefreshToken); err != nil {
		h.logger.Error("logout failed",
			zap.String("admin_id", id.AdminID()),
			zap.Error(err),
		)
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "logout successful", nil)
}

// LogoutAll ends every session of the caller (requires auth)
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	id := middleware.MustGetIdentity(c)

	if err := h.authService.LogoutAll(c.Request.Context(), id); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "all sessions logged out", nil)
}

// ========== Profile ==========

// GetMe describes the caller
func (h *AuthHandler) GetMe(c *gin.Context) {
	id := middleware.MustGetIdentity(c)
	response.Success(c, http.StatusOK, "admin retrieved", h.authService.Me(id))
}

// GetActiveSessions lists the caller's live refresh tokens
func (h *AuthHandler) GetActiveSessions(c *gin.Context) {
	adminID := middleware.MustGetAdminID(c)

	sessions, err := h.authService.ListSessions(c.Request.Context(), adminID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "active sessions", gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// ========== Password Management ==========

// ChangePassword handles password change (requires auth)
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	id := middleware.MustGetIdentity(c)

	var req admin.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), id, &req); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "password changed successfully, please sign in again", nil)
}

// ForgotPassword starts a password reset. The answer never reveals whether
// the email belongs to an account.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req admin.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.logger.Error("forgot password failed", zap.Error(err))
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "if the email exists, a password reset link has been sent", nil)
}

// ResetPassword completes a password reset
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req admin.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, "password reset successfully", nil)
}
