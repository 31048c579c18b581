package memory

import (
	"context"
	"sort"
	"time"

	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/pkg/softdelete"
)

type RoleRepository struct {
	s *Store
}

var _ rbac.RoleRepository = (*RoleRepository)(nil)

func matchRole(ctx context.Context, r *rbac.Role, f rbac.RoleFilter) bool {
	switch {
	case !softdelete.Visible(ctx, r.IsDeleted):
		return false
	case len(f.IDs) > 0 && !containsString(f.IDs, r.ID):
		return false
	case len(f.Names) > 0 && !containsString(f.Names, r.RoleName):
		return false
	case f.IsSystem != nil && r.IsSystemRole != *f.IsSystem:
		return false
	case f.IsActive != nil && r.IsActive != *f.IsActive:
		return false
	case f.PermissionID != "" && !containsString(r.PermissionIDs, f.PermissionID):
		return false
	case f.MinLevel > 0 && r.Level < f.MinLevel:
		return false
	case f.MaxLevel > 0 && r.Level > f.MaxLevel:
		return false
	}
	return true
}

func (repo *RoleRepository) nameTaken(name, exceptID string) bool {
	for _, r := range repo.s.roles {
		if r.RoleName == name && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (repo *RoleRepository) Create(ctx context.Context, r *rbac.Role) error {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	if _, ok := repo.s.roles[r.ID]; ok || repo.nameTaken(r.RoleName, "") {
		return xerrors.Wrap(xerrors.ErrConflict, "role already exists")
	}
	repo.s.roles[r.ID] = r.Clone()
	return nil
}

func (repo *RoleRepository) Ensure(ctx context.Context, r *rbac.Role) (bool, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	if repo.nameTaken(r.RoleName, "") {
		return false, nil
	}
	repo.s.roles[r.ID] = r.Clone()
	return true, nil
}

func (repo *RoleRepository) FindByID(ctx context.Context, id string) (*rbac.Role, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	r, ok := repo.s.roles[id]
	if !ok || !softdelete.Visible(ctx, r.IsDeleted) {
		return nil, xerrors.ErrNotFound
	}
	return r.Clone(), nil
}

func (repo *RoleRepository) FindByName(ctx context.Context, name string) (*rbac.Role, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	for _, r := range repo.s.roles {
		if r.RoleName == name && softdelete.Visible(ctx, r.IsDeleted) {
			return r.Clone(), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (repo *RoleRepository) List(ctx context.Context, f rbac.RoleFilter) ([]*rbac.Role, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	out := repo.matching(ctx, f)
	for i, r := range out {
		out[i] = r.Clone()
	}
	return page(out, f.Limit, f.Offset), nil
}

// matching returns stored pointers ordered by level then name. Callers hold s.mu.
func (repo *RoleRepository) matching(ctx context.Context, f rbac.RoleFilter) []*rbac.Role {
	var out []*rbac.Role
	for _, r := range repo.s.roles {
		if matchRole(ctx, r, f) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].RoleName < out[j].RoleName
	})
	return out
}

func (repo *RoleRepository) Mutate(ctx context.Context, f rbac.RoleFilter, m rbac.RoleMutation, guard rbac.RoleGuard, now time.Time) ([]*rbac.Role, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	targets := repo.matching(ctx, f)
	updated := make([]*rbac.Role, 0, len(targets))
	for _, current := range targets {
		if guard != nil {
			if err := guard(current.Clone()); err != nil {
				return nil, err
			}
		}
		next := current.Clone()
		m.Apply(next, now)
		if m.RoleName != nil && repo.nameTaken(next.RoleName, next.ID) {
			return nil, xerrors.Wrap(xerrors.ErrConflict, "role name already in use")
		}
		updated = append(updated, next)
	}
	if m.RoleName != nil && len(updated) > 1 {
		return nil, xerrors.Wrap(xerrors.ErrConflict, "role name already in use")
	}

	out := make([]*rbac.Role, 0, len(updated))
	for _, next := range updated {
		repo.s.roles[next.ID] = next
		out = append(out, next.Clone())
	}
	return out, nil
}

type PermissionRepository struct {
	s *Store
}

var _ rbac.PermissionRepository = (*PermissionRepository)(nil)

func matchPermission(ctx context.Context, p *rbac.Permission, f rbac.PermissionFilter) bool {
	switch {
	case !softdelete.Visible(ctx, p.IsDeleted):
		return false
	case len(f.IDs) > 0 && !containsString(f.IDs, p.ID):
		return false
	case len(f.Keys) > 0 && !containsString(f.Keys, p.Key):
		return false
	case f.Module != "" && p.Module != f.Module:
		return false
	case f.Category != "" && p.Category != f.Category:
		return false
	case f.IsSystem != nil && p.IsSystemPermission != *f.IsSystem:
		return false
	case f.IsActive != nil && p.IsActive != *f.IsActive:
		return false
	}
	return true
}

func (repo *PermissionRepository) keyTaken(key string) bool {
	for _, p := range repo.s.permissions {
		if p.Key == key {
			return true
		}
	}
	return false
}

func (repo *PermissionRepository) Create(ctx context.Context, p *rbac.Permission) error {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	if _, ok := repo.s.permissions[p.ID]; ok || repo.keyTaken(p.Key) {
		return xerrors.Wrap(xerrors.ErrConflict, "permission already exists")
	}
	repo.s.permissions[p.ID] = p.Clone()
	return nil
}

func (repo *PermissionRepository) Ensure(ctx context.Context, p *rbac.Permission) (bool, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	if repo.keyTaken(p.Key) {
		return false, nil
	}
	repo.s.permissions[p.ID] = p.Clone()
	return true, nil
}

func (repo *PermissionRepository) FindByID(ctx context.Context, id string) (*rbac.Permission, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	p, ok := repo.s.permissions[id]
	if !ok || !softdelete.Visible(ctx, p.IsDeleted) {
		return nil, xerrors.ErrNotFound
	}
	return p.Clone(), nil
}

func (repo *PermissionRepository) FindByKey(ctx context.Context, key string) (*rbac.Permission, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	for _, p := range repo.s.permissions {
		if p.Key == key && softdelete.Visible(ctx, p.IsDeleted) {
			return p.Clone(), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (repo *PermissionRepository) FindByIDs(ctx context.Context, ids []string) ([]*rbac.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return repo.List(ctx, rbac.PermissionFilter{IDs: ids})
}

func (repo *PermissionRepository) List(ctx context.Context, f rbac.PermissionFilter) ([]*rbac.Permission, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	out := repo.matching(ctx, f)
	for i, p := range out {
		out[i] = p.Clone()
	}
	return page(out, f.Limit, f.Offset), nil
}

func (repo *PermissionRepository) matching(ctx context.Context, f rbac.PermissionFilter) []*rbac.Permission {
	var out []*rbac.Permission
	for _, p := range repo.s.permissions {
		if matchPermission(ctx, p, f) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (repo *PermissionRepository) Mutate(ctx context.Context, f rbac.PermissionFilter, m rbac.PermissionMutation, guard rbac.PermissionGuard, now time.Time) ([]*rbac.Permission, error) {
	repo.s.mu.Lock()
	defer repo.s.mu.Unlock()

	targets := repo.matching(ctx, f)
	updated := make([]*rbac.Permission, 0, len(targets))
	for _, current := range targets {
		if guard != nil {
			if err := guard(current.Clone()); err != nil {
				return nil, err
			}
		}
		next := current.Clone()
		m.Apply(next, now)
		updated = append(updated, next)
	}

	out := make([]*rbac.Permission, 0, len(updated))
	for _, next := range updated {
		repo.s.permissions[next.ID] = next
		out = append(out, next.Clone())
	}
	return out, nil
}
