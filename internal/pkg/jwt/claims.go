// internal/pkg/jwt/claims.go
package jwt

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeAccess is the only purpose this service signs. Refresh tokens are
// opaque and never JWTs.
const PurposeAccess = "access"

// Claims of an admin access token. Permissions is a snapshot for the console
// UI; authorization always resolves them live.
type Claims struct {
	AdminID     string   `json:"admin_id"`
	Email       string   `json:"email,omitempty"`
	RoleID      string   `json:"role_id,omitempty"`
	RoleName    string   `json:"role_name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Device      string   `json:"device,omitempty"`
	Purpose     string   `json:"purpose"`
	jwt.RegisteredClaims
}

func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}
