package rbac

import (
	"context"
	"strings"
	"unicode/utf8"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"
)

func (s *Service) CreatePermission(ctx context.Context, req rbac.CreatePermissionRequest, actor string) (*rbac.Permission, error) {
	key, module, _, err := rbac.ParseKey(req.Key)
	if err != nil {
		return nil, err
	}
	if req.Module == "" {
		req.Module = module
	}

	now := s.clock()
	p := &rbac.Permission{
		ID:                 newID("perm_"),
		Key:                key,
		Name:               strings.TrimSpace(req.Name),
		Description:        strings.TrimSpace(req.Description),
		Module:             rbac.Module(strings.ToUpper(string(req.Module))),
		Category:           req.Category,
		IsSystemPermission: req.IsSystem,
		IsActive:           true,
		Version:            1,
		Metadata:           req.Metadata,
		CreatedBy:          actor,
		UpdatedBy:          actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if p.Category == "" {
		p.Category = rbac.CategoryManage
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if err := rbac.ValidatePermission(p); err != nil {
		return nil, err
	}

	if err := s.store(ctx, func(ctx context.Context) error { return s.perms.Create(ctx, p) }); err != nil {
		return nil, err
	}
	s.audit.Emit(ctx, audit.Event{Name: audit.PermissionChanged, AdminID: actor, Reason: "created", At: now,
		Fields: map[string]any{"permission_id": p.ID, "key": p.Key}})
	return p, nil
}

func (s *Service) GetPermission(ctx context.Context, id string) (*rbac.Permission, error) {
	var p *rbac.Permission
	err := s.store(ctx, func(ctx context.Context) (err error) {
		p, err = s.perms.FindByID(ctx, id)
		return err
	})
	return p, err
}

func (s *Service) ListPermissions(ctx context.Context, f rbac.PermissionFilter) ([]*rbac.Permission, error) {
	var out []*rbac.Permission
	err := s.store(ctx, func(ctx context.Context) (err error) {
		out, err = s.perms.List(ctx, f)
		return err
	})
	return out, err
}

func (s *Service) UpdatePermission(ctx context.Context, id string, m rbac.PermissionMutation) (*rbac.Permission, error) {
	updated, err := s.mutatePermissions(ctx, rbac.PermissionFilter{IDs: []string{id}}, m)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, xerrors.ErrNotFound
	}
	return updated[0], nil
}

// UpdatePermissions is the filtered form of UpdatePermission. The guard runs
// on every matching permission.
func (s *Service) UpdatePermissions(ctx context.Context, f rbac.PermissionFilter, m rbac.PermissionMutation) ([]*rbac.Permission, error) {
	if !f.Selective() {
		return nil, xerrors.Invalid("filter", "bulk updates need at least one filter")
	}
	return s.mutatePermissions(ctx, f, m)
}

// DeletePermission tombstones a permission. Roles keep the reference and
// resolution skips it.
func (s *Service) DeletePermission(ctx context.Context, id, actor string) error {
	updated, err := s.mutatePermissions(ctx, rbac.PermissionFilter{IDs: []string{id}}, rbac.PermissionMutation{Delete: true, Actor: actor})
	if err != nil {
		return err
	}
	if len(updated) == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (s *Service) mutatePermissions(ctx context.Context, f rbac.PermissionFilter, m rbac.PermissionMutation) ([]*rbac.Permission, error) {
	if err := normalizePermissionMutation(&m); err != nil {
		return nil, err
	}
	if m.Empty() {
		return nil, xerrors.Invalid("update", "no fields to update")
	}

	now := s.clock()
	guard := func(current *rbac.Permission) error { return GuardPermissionMutation(current, m) }
	var updated []*rbac.Permission
	err := s.store(ctx, func(ctx context.Context) (err error) {
		updated, err = s.perms.Mutate(ctx, f, m, guard, now)
		return err
	})
	if err != nil {
		return nil, s.rejected(ctx, "permission", m.Actor, err)
	}

	if len(updated) > 0 {
		s.invalidate(ctx)
		ids := make([]string, len(updated))
		for i, p := range updated {
			ids[i] = p.ID
		}
		reason := "updated"
		if m.Delete {
			reason = "deleted"
		}
		s.audit.Emit(ctx, audit.Event{Name: audit.PermissionChanged, AdminID: m.Actor, Reason: reason, At: now,
			Fields: map[string]any{"permission_ids": ids, "fields": m.TouchedFields()}})
	}
	return updated, nil
}

func normalizePermissionMutation(m *rbac.PermissionMutation) error {
	if m.Name != nil {
		v := strings.TrimSpace(*m.Name)
		if n := utf8.RuneCountInString(v); n < 1 || n > 100 {
			return xerrors.Invalid("name", "must be between 1 and 100 characters")
		}
		m.Name = &v
	}
	if m.Description != nil {
		v := strings.TrimSpace(*m.Description)
		if utf8.RuneCountInString(v) > 500 {
			return xerrors.Invalid("description", "must be at most 500 characters")
		}
		m.Description = &v
	}
	if m.Category != nil {
		c := rbac.Category(strings.ToUpper(string(*m.Category)))
		if !c.Valid() {
			return xerrors.Invalid("category", "unknown category %q", c)
		}
		m.Category = &c
	}
	return nil
}
