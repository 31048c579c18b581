// internal/app/router.go
package app

import (
	adminHandler "backoffice-iam/internal/handlers/admin"
	authHandler "backoffice-iam/internal/handlers/auth"
	rbacHandler "backoffice-iam/internal/handlers/rbac"
	wsHandler "backoffice-iam/internal/handlers/websocket"
	"backoffice-iam/internal/metrics"
	"backoffice-iam/internal/middleware"
	rbacsvc "backoffice-iam/internal/service/rbac"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler       *authHandler.AuthHandler
	AdminHandler      *adminHandler.AdminHandler
	RoleHandler       *rbacHandler.RoleHandler
	PermissionHandler *rbacHandler.PermissionHandler
	WSHandler         *wsHandler.WebSocketHandler
	AuthMiddleware    *middleware.AuthMiddleware
	LoginLimit        gin.HandlerFunc
	ResetLimit        gin.HandlerFunc
	Metrics           *metrics.Metrics
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	perm := h.AuthMiddleware.RequirePermission

	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))

	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/login", h.LoginLimit, h.AuthHandler.Login)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
		authPublic.POST("/forgot-password", h.ResetLimit, h.AuthHandler.ForgotPassword)
		authPublic.POST("/reset-password", h.ResetLimit, h.AuthHandler.ResetPassword)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.POST("/logout-all", h.AuthHandler.LogoutAll)
		authProtected.PUT("/change-password", h.AuthHandler.ChangePassword)
		authProtected.GET("/me", h.AuthHandler.GetMe)
		authProtected.GET("/sessions", h.AuthHandler.GetActiveSessions)
	}

	// ==================== Admins ====================
	admins := api.Group("/admins")
	admins.Use(h.AuthMiddleware.Auth())
	{
		admins.GET("", perm(rbacsvc.PermAdminsRead), h.AdminHandler.ListAdmins)
		admins.GET("/:id", perm(rbacsvc.PermAdminsRead), h.AdminHandler.GetAdmin)
		admins.POST("", perm(rbacsvc.PermAdminsWrite), h.AdminHandler.CreateAdmin)
		admins.PUT("/:id/status", perm(rbacsvc.PermAdminsManage), h.AdminHandler.UpdateStatus)
		admins.POST("/:id/unlock", perm(rbacsvc.PermAdminsManage), h.AdminHandler.Unlock)
		admins.PUT("/:id/role", perm(rbacsvc.PermAdminsManage), h.AdminHandler.AssignRole)
		admins.GET("/:id/sessions", perm(rbacsvc.PermAdminsManage), h.AdminHandler.ListSessions)
		admins.POST("/:id/revoke-sessions", perm(rbacsvc.PermAdminsManage), h.AdminHandler.RevokeSessions)
		admins.DELETE("/:id", perm(rbacsvc.PermAdminsDelete), h.AdminHandler.DeleteAdmin)
	}

	// ==================== Roles ====================
	roles := api.Group("/roles")
	roles.Use(h.AuthMiddleware.Auth())
	{
		roles.GET("", perm(rbacsvc.PermRolesRead), h.RoleHandler.ListRoles)
		roles.GET("/:id", perm(rbacsvc.PermRolesRead), h.RoleHandler.GetRole)
		roles.POST("", perm(rbacsvc.PermRolesWrite), h.RoleHandler.CreateRole)
		roles.PUT("/:id", perm(rbacsvc.PermRolesWrite), h.RoleHandler.UpdateRole)
		roles.PATCH("", perm(rbacsvc.PermRolesWrite), h.RoleHandler.BulkUpdateRoles)
		roles.DELETE("/:id", perm(rbacsvc.PermRolesDelete), h.RoleHandler.DeleteRole)
	}

	// ==================== Permissions ====================
	permissions := api.Group("/permissions")
	permissions.Use(h.AuthMiddleware.Auth())
	{
		permissions.GET("", perm(rbacsvc.PermPermissionsRead), h.PermissionHandler.ListPermissions)
		permissions.GET("/:id", perm(rbacsvc.PermPermissionsRead), h.PermissionHandler.GetPermission)
		permissions.POST("", perm(rbacsvc.PermPermissionsWrite), h.PermissionHandler.CreatePermission)
		permissions.PUT("/:id", perm(rbacsvc.PermPermissionsWrite), h.PermissionHandler.UpdatePermission)
		permissions.PATCH("", perm(rbacsvc.PermPermissionsWrite), h.PermissionHandler.BulkUpdatePermissions)
		permissions.DELETE("/:id", perm(rbacsvc.PermPermissionsDelete), h.PermissionHandler.DeletePermission)
	}

	// ==================== WebSocket Stats ====================
	api.GET("/ws/stats", h.AuthMiddleware.Auth(), perm(rbacsvc.PermAdminsManage), h.WSHandler.GetStats)
}
