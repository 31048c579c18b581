package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"

	"go.uber.org/zap"
)

// Principal is an admin together with the permission keys it holds right now.
type Principal struct {
	AdminID  string
	RoleID   string
	RoleName string
	Keys     []string
	set      map[string]struct{}
}

// NewPrincipal builds a principal holding keys.
func NewPrincipal(a *admin.Admin, roleName string, keys []string) Principal {
	if keys == nil {
		keys = []string{}
	}
	p := Principal{AdminID: a.ID, RoleID: a.RoleID, RoleName: roleName, Keys: keys, set: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		p.set[k] = struct{}{}
	}
	return p
}

func (p Principal) HasPermission(key string) bool {
	_, ok := p.set[key]
	return ok
}

// HasAny reports whether the principal holds at least one of keys.
func (p Principal) HasAny(keys ...string) bool {
	for _, k := range keys {
		if p.HasPermission(k) {
			return true
		}
	}
	return false
}

// EffectivePermissions resolves the admin's role into permission keys.
// Inactive or deleted permissions are skipped, and a missing, inactive or
// deleted role yields an empty set. Only storage failures are errors.
func (s *Service) EffectivePermissions(ctx context.Context, a *admin.Admin) (Principal, error) {
	if a == nil || a.IsDeleted || a.EffectiveStatus(s.clock()) != admin.StatusActive {
		return Principal{Keys: []string{}, set: map[string]struct{}{}}, nil
	}

	// The generation is read before the role so a write committed after
	// this point retires whatever this call caches.
	gen, cached := s.cacheGeneration(ctx)

	var role *rbac.Role
	err := s.store(ctx, func(ctx context.Context) (err error) {
		role, err = s.roles.FindByID(ctx, a.RoleID)
		return err
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		s.logger.Warn("admin references a missing role", zap.String("admin_id", a.ID), zap.String("role_id", a.RoleID))
		return NewPrincipal(a, "", nil), nil
	}
	if err != nil {
		return Principal{}, err
	}
	if !role.IsActive {
		return NewPrincipal(a, role.RoleName, nil), nil
	}

	keys, err := s.roleKeys(ctx, role, gen, cached)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(a, role.RoleName, keys), nil
}

// Authorize fails with ErrForbidden unless the admin holds key.
func (s *Service) Authorize(ctx context.Context, a *admin.Admin, key string) error {
	p, err := s.EffectivePermissions(ctx, a)
	if err != nil {
		return err
	}
	if !p.HasPermission(key) {
		return xerrors.Wrap(xerrors.ErrForbidden, fmt.Sprintf("missing permission %s", key))
	}
	return nil
}

// cacheGeneration reports false when there is no cache or it cannot be read;
// resolution then goes to storage and caches nothing.
func (s *Service) cacheGeneration(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Warn("permission cache read failed", zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (s *Service) roleKeys(ctx context.Context, role *rbac.Role, gen int64, cached bool) ([]string, error) {
	if cached {
		keys, ok, err := s.cache.Get(ctx, gen, role.ID)
		if err != nil {
			s.logger.Warn("permission cache read failed", zap.String("role_id", role.ID), zap.Error(err))
		}
		if ok {
			return keys, nil
		}
	}

	var perms []*rbac.Permission
	err := s.store(ctx, func(ctx context.Context) (err error) {
		perms, err = s.perms.FindByIDs(ctx, role.PermissionIDs)
		return err
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(perms))
	for _, p := range perms {
		if p.IsActive && !p.IsDeleted {
			keys = append(keys, p.Key)
		}
	}
	sort.Strings(keys)

	if cached {
		if err := s.cache.Set(ctx, gen, role.ID, keys); err != nil {
			s.logger.Warn("permission cache write failed", zap.String("role_id", role.ID), zap.Error(err))
		}
	}
	return keys, nil
}

// EnsureCatalog seeds the embedded catalog. Existing permissions and roles
// are matched by key and name and left as they are. It returns how many
// records were created.
func (s *Service) EnsureCatalog(ctx context.Context, actor string) (int, error) {
	c, err := DefaultCatalog()
	if err != nil {
		return 0, err
	}
	return s.SeedCatalog(ctx, c, actor)
}

func (s *Service) SeedCatalog(ctx context.Context, c *Catalog, actor string) (int, error) {
	now := s.clock()
	created := 0
	ids := make(map[string]string, len(c.Permissions))

	for _, cp := range c.Permissions {
		_, module, _, _ := rbac.ParseKey(cp.Key)
		p := &rbac.Permission{
			ID:                 newID("perm_"),
			Key:                cp.Key,
			Name:               cp.Name,
			Description:        cp.Description,
			Module:             module,
			Category:           cp.Category,
			IsSystemPermission: true,
			IsActive:           true,
			Version:            1,
			CreatedBy:          actor,
			UpdatedBy:          actor,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := rbac.ValidatePermission(p); err != nil {
			return created, fmt.Errorf("catalog permission %s: %w", cp.Key, err)
		}

		var stored *rbac.Permission
		err := s.store(ctx, func(ctx context.Context) error {
			inserted, err := s.perms.Ensure(ctx, p)
			if err != nil {
				return err
			}
			if inserted {
				created++
				stored = p
				return nil
			}
			stored, err = s.perms.FindByKey(ctx, p.Key)
			return err
		})
		if err != nil {
			return created, fmt.Errorf("failed to seed permission %s: %w", cp.Key, err)
		}
		ids[cp.Key] = stored.ID
	}

	for _, cr := range c.Roles {
		keys := c.keysFor(cr)
		permIDs := make([]string, 0, len(keys))
		for _, k := range keys {
			permIDs = append(permIDs, ids[k])
		}
		r := &rbac.Role{
			ID:            newID("role_"),
			RoleName:      cr.Name,
			DisplayName:   cr.DisplayName,
			Description:   cr.Description,
			PermissionIDs: permIDs,
			IsSystemRole:  true,
			IsActive:      true,
			Level:         cr.Level,
			CreatedBy:     actor,
			UpdatedBy:     actor,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := rbac.ValidateRole(r); err != nil {
			return created, fmt.Errorf("catalog role %s: %w", cr.Name, err)
		}
		err := s.store(ctx, func(ctx context.Context) error {
			inserted, err := s.roles.Ensure(ctx, r)
			if inserted {
				created++
			}
			return err
		})
		if err != nil {
			return created, fmt.Errorf("failed to seed role %s: %w", cr.Name, err)
		}
	}

	if created > 0 {
		s.invalidate(ctx)
		s.logger.Info("rbac catalog seeded", zap.Int("created", created))
	}
	return created, nil
}
