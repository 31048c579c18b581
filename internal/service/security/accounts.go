package security

import (
	"context"
	"errors"
	"strings"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/google/uuid"
)

func (e *Engine) Get(ctx context.Context, adminID string) (*admin.Admin, error) {
	var a *admin.Admin
	err := e.store(ctx, func(ctx context.Context) (err error) {
		a, err = e.admins.FindByID(ctx, adminID)
		return err
	})
	return a, err
}

func (e *Engine) List(ctx context.Context, f admin.Filter) ([]*admin.Admin, error) {
	var out []*admin.Admin
	err := e.store(ctx, func(ctx context.Context) (err error) {
		out, err = e.admins.List(ctx, f)
		return err
	})
	return out, err
}

// Provision creates an admin account bound to an existing active role.
func (e *Engine) Provision(ctx context.Context, req admin.CreateAdminRequest, actor string) (*admin.Admin, error) {
	email, err := admin.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := admin.ValidatePasswordPolicy(req.Password); err != nil {
		return nil, err
	}
	profile, err := admin.NormalizeProfile(admin.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Timezone:  req.Timezone,
		Language:  req.Language,
	})
	if err != nil {
		return nil, err
	}
	if err := e.requireActiveRole(ctx, req.RoleID); err != nil {
		return nil, err
	}

	hash, err := e.creds.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	a := &admin.Admin{
		ID:           "admin_" + uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		RoleID:       req.RoleID,
		Profile:      profile,
		Status:       admin.StatusActive,
		LoginHistory: []admin.LoginHistoryEntry{},
		Metadata:     req.Metadata,
		CreatedBy:    actor,
		UpdatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a.Security.PasswordChangedAt = &now

	if err := e.store(ctx, func(ctx context.Context) error { return e.admins.Create(ctx, a) }); err != nil {
		if errors.Is(err, xerrors.ErrConflict) {
			return nil, xerrors.Wrap(xerrors.ErrConflict, "email already registered")
		}
		return nil, xerrors.Wrap(err, "failed to create admin")
	}

	e.emit(ctx, audit.Event{Name: audit.AdminCreated, AdminID: a.ID, Email: a.Email, Fields: map[string]any{"created_by": actor, "role_id": a.RoleID}})
	return a, nil
}

func (e *Engine) requireActiveRole(ctx context.Context, roleID string) error {
	if strings.TrimSpace(roleID) == "" {
		return xerrors.Invalid("role_id", "is required")
	}
	err := e.store(ctx, func(ctx context.Context) error {
		role, err := e.roles.FindByID(ctx, roleID)
		if err != nil {
			return err
		}
		if !role.IsActive {
			return xerrors.Invalid("role_id", "role %s is inactive", role.RoleName)
		}
		return nil
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		return xerrors.Invalid("role_id", "role does not exist")
	}
	return err
}

// SetStatus moves an admin between ACTIVE, INACTIVE and SUSPENDED. LOCKED is
// reached only through failed attempts. Leaving ACTIVE revokes sessions.
func (e *Engine) SetStatus(ctx context.Context, adminID string, status admin.Status, actor string) error {
	switch status {
	case admin.StatusActive, admin.StatusInactive, admin.StatusSuspended:
	default:
		return xerrors.Invalid("status", "must be one of ACTIVE, INACTIVE, SUSPENDED")
	}
	if adminID == actor && status != admin.StatusActive {
		return xerrors.Invalid("status", "cannot disable your own account")
	}

	now := e.clock()
	if err := e.store(ctx, func(ctx context.Context) error {
		return e.admins.UpdateStatus(ctx, adminID, status, actor, now)
	}); err != nil {
		return err
	}

	e.emit(ctx, audit.Event{Name: audit.AccountStatusChanged, AdminID: adminID, Fields: map[string]any{"status": status, "actor": actor}})
	if status != admin.StatusActive {
		return e.credentialsChanged(ctx, adminID, ReasonStatusChanged)
	}
	return nil
}

// Unlock clears an active lockout ahead of its expiry.
func (e *Engine) Unlock(ctx context.Context, adminID, actor string) error {
	now := e.clock()
	if err := e.store(ctx, func(ctx context.Context) error {
		return e.admins.Unlock(ctx, adminID, actor, now)
	}); err != nil {
		return err
	}
	e.emit(ctx, audit.Event{Name: audit.AccountUnlocked, AdminID: adminID, Fields: map[string]any{"actor": actor}})
	return nil
}

func (e *Engine) AssignRole(ctx context.Context, adminID, roleID, actor string) error {
	if err := e.requireActiveRole(ctx, roleID); err != nil {
		return err
	}
	now := e.clock()
	return e.store(ctx, func(ctx context.Context) error {
		return e.admins.AssignRole(ctx, adminID, roleID, actor, now)
	})
}

// SoftDelete tombstones the admin and revokes its sessions.
func (e *Engine) SoftDelete(ctx context.Context, adminID, actor string) error {
	if adminID == actor {
		return xerrors.Invalid("admin_id", "cannot delete your own account")
	}
	now := e.clock()
	if err := e.store(ctx, func(ctx context.Context) error {
		return e.admins.SoftDelete(ctx, adminID, actor, now)
	}); err != nil {
		return err
	}
	e.emit(ctx, audit.Event{Name: audit.AccountDeleted, AdminID: adminID, Fields: map[string]any{"actor": actor}})
	return e.credentialsChanged(ctx, adminID, ReasonDeleted)
}

// CountByRole reports how many live admins hold roleID.
func (e *Engine) CountByRole(ctx context.Context, roleID string) (int64, error) {
	var n int64
	err := e.store(ctx, func(ctx context.Context) (err error) {
		n, err = e.admins.CountByRole(ctx, roleID)
		return err
	})
	return n, err
}
