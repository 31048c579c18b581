// Package rbac holds the role and permission graph.
package rbac

import "time"

type Module string

const (
	ModuleUsers       Module = "USERS"
	ModuleDrivers     Module = "DRIVERS"
	ModuleRides       Module = "RIDES"
	ModulePricing     Module = "PRICING"
	ModuleFinance     Module = "FINANCE"
	ModuleSupport     Module = "SUPPORT"
	ModuleSystem      Module = "SYSTEM"
	ModuleAnalytics   Module = "ANALYTICS"
	ModulePermissions Module = "PERMISSIONS"
	ModuleRoles       Module = "ROLES"
	ModuleAdmins      Module = "ADMINS"
)

var modules = map[Module]bool{
	ModuleUsers: true, ModuleDrivers: true, ModuleRides: true, ModulePricing: true,
	ModuleFinance: true, ModuleSupport: true, ModuleSystem: true, ModuleAnalytics: true,
	ModulePermissions: true, ModuleRoles: true, ModuleAdmins: true,
}

func (m Module) Valid() bool { return modules[m] }

type Category string

const (
	CategoryRead   Category = "READ"
	CategoryWrite  Category = "WRITE"
	CategoryDelete Category = "DELETE"
	CategoryManage Category = "MANAGE"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRead, CategoryWrite, CategoryDelete, CategoryManage:
		return true
	}
	return false
}

type Permission struct {
	ID                 string         `json:"permission_id"`
	Key                string         `json:"key"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	Module             Module         `json:"module"`
	Category           Category       `json:"category"`
	IsSystemPermission bool           `json:"is_system_permission"`
	IsActive           bool           `json:"is_active"`
	Version            int            `json:"version"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedBy          string         `json:"created_by,omitempty"`
	UpdatedBy          string         `json:"updated_by,omitempty"`
	IsDeleted          bool           `json:"is_deleted"`
	DeletedAt          *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy          string         `json:"deleted_by,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type Role struct {
	ID            string         `json:"role_id"`
	RoleName      string         `json:"role_name"`
	DisplayName   string         `json:"display_name"`
	Description   string         `json:"description,omitempty"`
	PermissionIDs []string       `json:"permissions"`
	IsSystemRole  bool           `json:"is_system_role"`
	IsActive      bool           `json:"is_active"`
	Level         int            `json:"level"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedBy     string         `json:"created_by,omitempty"`
	UpdatedBy     string         `json:"updated_by,omitempty"`
	IsDeleted     bool           `json:"is_deleted"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy     string         `json:"deleted_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (r *Role) PermissionCount() int { return len(r.PermissionIDs) }

func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	c.PermissionIDs = append([]string(nil), r.PermissionIDs...)
	c.Metadata = cloneMap(r.Metadata)
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (p *Permission) Clone() *Permission {
	if p == nil {
		return nil
	}
	c := *p
	c.Metadata = cloneMap(p.Metadata)
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
