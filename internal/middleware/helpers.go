// internal/middleware/helpers.go
package middleware

import (
	"backoffice-iam/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// GetIdentity returns the identity stored by Auth.
func GetIdentity(c *gin.Context) (*auth.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	id, ok := v.(*auth.Identity)
	return id, ok && id != nil
}

// MustGetIdentity gets the identity from context or panics
func MustGetIdentity(c *gin.Context) *auth.Identity {
	id, ok := GetIdentity(c)
	if !ok {
		panic("identity not found in context")
	}
	return id
}

func GetAdminID(c *gin.Context) (string, bool) {
	return c.GetString(adminIDKey), c.GetString(adminIDKey) != ""
}

// MustGetAdminID gets the admin ID from context or panics
func MustGetAdminID(c *gin.Context) string {
	id, ok := GetAdminID(c)
	if !ok {
		panic("admin_id not found in context")
	}
	return id
}

func GetJTI(c *gin.Context) (string, bool) {
	return c.GetString(jtiKey), c.GetString(jtiKey) != ""
}

// GetPermissions gets the caller's permission keys from context
func GetPermissions(c *gin.Context) []string {
	perms := c.GetStringSlice(permissionsKey)
	if perms == nil {
		return []string{}
	}
	return perms
}

func HasPermission(c *gin.Context, permission string) bool {
	id, ok := GetIdentity(c)
	return ok && id.HasPermission(permission)
}

// IsAuthenticated checks if request is authenticated
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetIdentity(c)
	return ok
}
