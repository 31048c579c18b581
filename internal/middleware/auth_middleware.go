// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"backoffice-iam/internal/pkg/response"
	"backoffice-iam/internal/service/auth"

	"github.com/gin-gonic/gin"
)

const (
	identityKey    = "identity"
	adminIDKey     = "admin_id"
	jtiKey         = "jti"
	permissionsKey = "permissions"
)

// TokenValidator turns a bearer token into the caller's identity.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, raw string) (*auth.Identity, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Auth validates the bearer token and stores the identity on the context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		id, err := m.validator.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			response.FromError(c, err)
			return
		}

		c.Set(identityKey, id)
		c.Set(adminIDKey, id.AdminID())
		c.Set(jtiKey, id.JTI)
		c.Set(permissionsKey, id.Principal.Keys)

		c.Next()
	}
}

// RequirePermission requires at least one of the given permission keys.
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequirePermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "authentication required", nil)
			return
		}

		if !id.Principal.HasAny(permissions...) {
			response.Error(c, http.StatusForbidden, "insufficient permissions", nil, gin.H{
				"required_permissions": permissions,
			})
			return
		}

		c.Next()
	}
}

// RequireAllPermissions requires every given permission key.
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireAllPermissions(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "authentication required", nil)
			return
		}

		for _, required := range permissions {
			if !id.HasPermission(required) {
				response.Error(c, http.StatusForbidden, "insufficient permissions", nil, gin.H{
					"required_permissions": permissions,
					"missing_permission":   required,
				})
				return
			}
		}

		c.Next()
	}
}

// WithPermission returns Auth followed by RequirePermission.
func (m *AuthMiddleware) WithPermission(permissions ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequirePermission(permissions...),
	}
}

// extractToken reads a Bearer token from the Authorization header.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Fields(authHeader)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}
