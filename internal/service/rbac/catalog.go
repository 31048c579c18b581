package rbac

import (
	_ "embed"
	"fmt"

	"backoffice-iam/internal/domain/rbac"

	"gopkg.in/yaml.v3"
)

// Permission keys checked by the HTTP layer.
const (
	PermAdminsRead        = "ADMINS:READ"
	PermAdminsWrite       = "ADMINS:WRITE"
	PermAdminsDelete      = "ADMINS:DELETE"
	PermAdminsManage      = "ADMINS:MANAGE"
	PermRolesRead         = "ROLES:READ"
	PermRolesWrite        = "ROLES:WRITE"
	PermRolesDelete       = "ROLES:DELETE"
	PermPermissionsRead   = "PERMISSIONS:READ"
	PermPermissionsWrite  = "PERMISSIONS:WRITE"
	PermPermissionsDelete = "PERMISSIONS:DELETE"
)

// SuperAdminRole is the catalog role given to the bootstrap account.
const SuperAdminRole = "SUPER_ADMIN"

const allPermissions = "*"

//go:embed catalog.yaml
var defaultCatalog []byte

type Catalog struct {
	Permissions []CatalogPermission `yaml:"permissions"`
	Roles       []CatalogRole       `yaml:"roles"`
}

type CatalogPermission struct {
	Key         string        `yaml:"key"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Category    rbac.Category `yaml:"category"`
}

type CatalogRole struct {
	Name        string   `yaml:"name"`
	DisplayName string   `yaml:"display_name"`
	Description string   `yaml:"description"`
	Level       int      `yaml:"level"`
	Permissions []string `yaml:"permissions"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and checks a catalog document. Role permissions must
// name catalog keys or "*".
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse rbac catalog: %w", err)
	}

	keys := make(map[string]bool, len(c.Permissions))
	for i := range c.Permissions {
		p := &c.Permissions[i]
		key, _, _, err := rbac.ParseKey(p.Key)
		if err != nil {
			return nil, fmt.Errorf("catalog permission %q: %w", p.Key, err)
		}
		if keys[key] {
			return nil, fmt.Errorf("catalog permission %q declared twice", key)
		}
		p.Key = key
		if p.Category == "" {
			p.Category = rbac.CategoryManage
		}
		keys[key] = true
	}

	for i := range c.Roles {
		r := &c.Roles[i]
		name, err := rbac.NormalizeRoleName(r.Name)
		if err != nil {
			return nil, fmt.Errorf("catalog role %q: %w", r.Name, err)
		}
		r.Name = name
		for _, k := range r.Permissions {
			if k != allPermissions && !keys[k] {
				return nil, fmt.Errorf("catalog role %s references unknown permission %q", name, k)
			}
		}
	}
	return &c, nil
}

// keysFor expands "*" to every catalog key.
func (c *Catalog) keysFor(r CatalogRole) []string {
	for _, k := range r.Permissions {
		if k == allPermissions {
			out := make([]string, 0, len(c.Permissions))
			for _, p := range c.Permissions {
				out = append(out, p.Key)
			}
			return out
		}
	}
	return r.Permissions
}
