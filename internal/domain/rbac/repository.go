package rbac

import (
	"context"
	"time"
)

type RoleFilter struct {
	IDs          []string `json:"ids,omitempty"`
	Names        []string `json:"role_names,omitempty"`
	IsSystem     *bool    `json:"is_system,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
	PermissionID string   `json:"permission_id,omitempty"`
	MinLevel     int      `json:"min_level,omitempty"`
	MaxLevel     int      `json:"max_level,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Offset       int      `json:"offset,omitempty"`
}

// Selective reports whether the filter narrows the set at all.
func (f RoleFilter) Selective() bool {
	return len(f.IDs) > 0 || len(f.Names) > 0 || f.IsSystem != nil || f.IsActive != nil ||
		f.PermissionID != "" || f.MinLevel > 0 || f.MaxLevel > 0
}

type PermissionFilter struct {
	IDs      []string `json:"ids,omitempty"`
	Keys     []string `json:"keys,omitempty"`
	Module   Module   `json:"module,omitempty"`
	Category Category `json:"category,omitempty"`
	IsSystem *bool    `json:"is_system,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

func (f PermissionFilter) Selective() bool {
	return len(f.IDs) > 0 || len(f.Keys) > 0 || f.Module != "" || f.Category != "" ||
		f.IsSystem != nil || f.IsActive != nil
}

// RoleGuard inspects the freshly locked row before a mutation is applied.
type RoleGuard func(current *Role) error

// PermissionGuard inspects the freshly locked row before a mutation is applied.
type PermissionGuard func(current *Permission) error

// RoleRepository persists roles. Mutate locks every matching row, runs guard
// on each and applies the mutation to all of them or to none.
type RoleRepository interface {
	Create(ctx context.Context, r *Role) error
	Ensure(ctx context.Context, r *Role) (bool, error)
	FindByID(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context, f RoleFilter) ([]*Role, error)
	Mutate(ctx context.Context, f RoleFilter, m RoleMutation, guard RoleGuard, now time.Time) ([]*Role, error)
}

type PermissionRepository interface {
	Create(ctx context.Context, p *Permission) error
	Ensure(ctx context.Context, p *Permission) (bool, error)
	FindByID(ctx context.Context, id string) (*Permission, error)
	FindByKey(ctx context.Context, key string) (*Permission, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Permission, error)
	List(ctx context.Context, f PermissionFilter) ([]*Permission, error)
	Mutate(ctx context.Context, f PermissionFilter, m PermissionMutation, guard PermissionGuard, now time.Time) ([]*Permission, error)
}
