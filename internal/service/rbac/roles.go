package rbac

import (
	"context"
	"strings"
	"unicode/utf8"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"
)

func (s *Service) CreateRole(ctx context.Context, req rbac.CreateRoleRequest, actor string) (*rbac.Role, error) {
	name, err := rbac.NormalizeRoleName(req.RoleName)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	role := &rbac.Role{
		ID:            newID("role_"),
		RoleName:      name,
		DisplayName:   strings.TrimSpace(req.DisplayName),
		Description:   strings.TrimSpace(req.Description),
		PermissionIDs: rbac.DedupeIDs(req.PermissionIDs),
		IsSystemRole:  req.IsSystemRole,
		IsActive:      true,
		Level:         req.Level,
		Metadata:      req.Metadata,
		CreatedBy:     actor,
		UpdatedBy:     actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if role.Level == 0 {
		role.Level = 1
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}
	if err := rbac.ValidateRole(role); err != nil {
		return nil, err
	}
	if err := s.requirePermissions(ctx, role.PermissionIDs); err != nil {
		return nil, err
	}

	if err := s.store(ctx, func(ctx context.Context) error { return s.roles.Create(ctx, role) }); err != nil {
		return nil, err
	}
	s.audit.Emit(ctx, audit.Event{Name: audit.RoleChanged, AdminID: actor, Reason: "created", At: now,
		Fields: map[string]any{"role_id": role.ID, "role_name": role.RoleName}})
	return role, nil
}

func (s *Service) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	var r *rbac.Role
	err := s.store(ctx, func(ctx context.Context) (err error) {
		r, err = s.roles.FindByID(ctx, id)
		return err
	})
	return r, err
}

func (s *Service) GetRoleByName(ctx context.Context, name string) (*rbac.Role, error) {
	var r *rbac.Role
	err := s.store(ctx, func(ctx context.Context) (err error) {
		r, err = s.roles.FindByName(ctx, strings.ToUpper(strings.TrimSpace(name)))
		return err
	})
	return r, err
}

func (s *Service) ListRoles(ctx context.Context, f rbac.RoleFilter) ([]*rbac.Role, error) {
	var out []*rbac.Role
	err := s.store(ctx, func(ctx context.Context) (err error) {
		out, err = s.roles.List(ctx, f)
		return err
	})
	return out, err
}

// UpdateRole applies m to one role. The guard sees the row as locked by the
// write, never a copy read earlier in the request.
func (s *Service) UpdateRole(ctx context.Context, id string, m rbac.RoleMutation) (*rbac.Role, error) {
	updated, err := s.mutateRoles(ctx, rbac.RoleFilter{IDs: []string{id}}, m)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return updated[0], nil
}

// UpdateRoles applies m to every role matching f. The filter must narrow the
// set and the guard runs on each match; one refusal aborts all of them.
func (s *Service) UpdateRoles(ctx context.Context, f rbac.RoleFilter, m rbac.RoleMutation) ([]*rbac.Role, error) {
	if !f.Selective() {
		return nil, xerrors.Invalid("filter", "bulk updates need at least one filter")
	}
	if m.RoleName != nil {
		return nil, xerrors.Invalid("role_name", "cannot be set in a bulk update")
	}
	return s.mutateRoles(ctx, f, m)
}

// DeleteRole tombstones a role. Admins still holding it resolve to no
// permissions.
func (s *Service) DeleteRole(ctx context.Context, id, actor string) error {
	updated, err := s.mutateRoles(ctx, rbac.RoleFilter{IDs: []string{id}}, rbac.RoleMutation{Delete: true, Actor: actor})
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (s *Service) mutateRoles(ctx context.Context, f rbac.RoleFilter, m rbac.RoleMutation) ([]*rbac.Role, error) {
	if err := s.normalizeRoleMutation(ctx, &m); err != nil {
		return nil, err
	}
	if m.Empty() {
		return nil, xerrors.Invalid("update", "no fields to update")
	}

	now := s.clock()
	guard := func(current *rbac.Role) error { return GuardRoleMutation(current, m) }
	var updated []*rbac.Role
	err := s.store(ctx, func(ctx context.Context) (err error) {
		updated, err = s.roles.Mutate(ctx, f, m, guard, now)
		return err
	})
	if err != nil {
		return nil, s.rejected(ctx, "role", m.Actor, err)
	}

	if len(updated) > 0 {
		s.invalidate(ctx)
		ids := make([]string, len(updated))
		for i, r := range updated {
			ids[i] = r.ID
		}
		reason := "updated"
		if m.Delete {
			reason = "deleted"
		}
		s.audit.Emit(ctx, audit.Event{Name: audit.RoleChanged, AdminID: m.Actor, Reason: reason, At: now,
			Fields: map[string]any{"role_ids": ids, "fields": m.TouchedFields()}})
	}
	return updated, nil
}

// normalizeRoleMutation checks each supplied field the way CreateRole does.
func (s *Service) normalizeRoleMutation(ctx context.Context, m *rbac.RoleMutation) error {
	if m.RoleName != nil {
		name, err := rbac.NormalizeRoleName(*m.RoleName)
		if err != nil {
			return err
		}
		m.RoleName = &name
	}
	if m.DisplayName != nil {
		v := strings.TrimSpace(*m.DisplayName)
		if n := utf8.RuneCountInString(v); n < 3 || n > 100 {
			return xerrors.Invalid("display_name", "must be between 3 and 100 characters")
		}
		m.DisplayName = &v
	}
	if m.Description != nil {
		v := strings.TrimSpace(*m.Description)
		if utf8.RuneCountInString(v) > 500 {
			return xerrors.Invalid("description", "must be at most 500 characters")
		}
		m.Description = &v
	}
	if m.Level != nil && (*m.Level < 1 || *m.Level > 10) {
		return xerrors.Invalid("level", "must be between 1 and 10")
	}
	if m.PermissionIDs != nil {
		ids := rbac.DedupeIDs(*m.PermissionIDs)
		if len(ids) == 0 {
			return xerrors.Invalid("permissions", "a role must have at least one permission")
		}
		if err := s.requirePermissions(ctx, ids); err != nil {
			return err
		}
		m.PermissionIDs = &ids
	}
	return nil
}

// requirePermissions checks that every id names a live permission.
func (s *Service) requirePermissions(ctx context.Context, ids []string) error {
	var found []*rbac.Permission
	err := s.store(ctx, func(ctx context.Context) (err error) {
		found, err = s.perms.FindByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(found))
	for _, p := range found {
		known[p.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return xerrors.Invalid("permissions", "unknown permission %s", id)
		}
	}
	return nil
}
