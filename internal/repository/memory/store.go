// Package memory is an in-process implementation of the repository
// interfaces. One mutex serialises every operation, which gives it the same
// atomicity the Postgres statements provide.
package memory

import (
	"sync"

	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/domain/token"
)

type Store struct {
	mu          sync.Mutex
	admins      map[string]*admin.Admin
	roles       map[string]*rbac.Role
	permissions map[string]*rbac.Permission
	tokens      map[string]*token.RefreshToken
}

func NewStore() *Store {
	return &Store{
		admins:      make(map[string]*admin.Admin),
		roles:       make(map[string]*rbac.Role),
		permissions: make(map[string]*rbac.Permission),
		tokens:      make(map[string]*token.RefreshToken),
	}
}

func (s *Store) Admins() *AdminRepository { return &AdminRepository{s: s} }

func (s *Store) Roles() *RoleRepository { return &RoleRepository{s: s} }

func (s *Store) Permissions() *PermissionRepository { return &PermissionRepository{s: s} }

func (s *Store) RefreshTokens() *RefreshTokenRepository { return &RefreshTokenRepository{s: s} }

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
