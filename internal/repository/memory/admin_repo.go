package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/pkg/softdelete"
)

type AdminRepository struct {
	s *Store
}

var _ admin.Repository = (*AdminRepository)(nil)

// lookup returns the stored pointer. Callers hold s.mu.
func (r *AdminRepository) lookup(ctx context.Context, id string) (*admin.Admin, error) {
	a, ok := r.s.admins[id]
	if !ok || !softdelete.Visible(ctx, a.IsDeleted) {
		return nil, xerrors.ErrNotFound
	}
	return a, nil
}

func (r *AdminRepository) Create(ctx context.Context, a *admin.Admin) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.admins[a.ID]; ok {
		return xerrors.ErrConflict
	}
	for _, existing := range r.s.admins {
		if strings.EqualFold(existing.Email, a.Email) {
			return xerrors.Wrap(xerrors.ErrConflict, "email already registered")
		}
	}
	if a.LoginHistory == nil {
		a.LoginHistory = []admin.LoginHistoryEntry{}
	}
	r.s.admins[a.ID] = a.Clone()
	return nil
}

func (r *AdminRepository) FindByID(ctx context.Context, id string) (*admin.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*admin.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.admins {
		if strings.EqualFold(a.Email, email) && softdelete.Visible(ctx, a.IsDeleted) {
			return a.Clone(), nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (r *AdminRepository) List(ctx context.Context, f admin.Filter) ([]*admin.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*admin.Admin
	for _, a := range r.s.admins {
		if !softdelete.Visible(ctx, a.IsDeleted) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.RoleID != "" && a.RoleID != f.RoleID {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return page(out, f.Limit, f.Offset), nil
}

func (r *AdminRepository) CountByRole(ctx context.Context, roleID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, a := range r.s.admins {
		if a.RoleID == roleID && !a.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (r *AdminRepository) RecordLoginFailure(ctx context.Context, id string, entry admin.LoginHistoryEntry, policy admin.LockoutPolicy, now time.Time) (*admin.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	admin.ApplyFailure(a, entry, policy, now)
	return a.Clone(), nil
}

func (r *AdminRepository) RecordLoginSuccess(ctx context.Context, id string, entry admin.LoginHistoryEntry, policy admin.LockoutPolicy, now time.Time) (*admin.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := admin.ApplySuccess(a, entry, policy, now); err != nil {
		if errors.Is(err, admin.ErrLockActive) {
			return a.Clone(), err
		}
		return nil, err
	}
	return a.Clone(), nil
}

func (r *AdminRepository) AppendLoginHistory(ctx context.Context, id string, entry admin.LoginHistoryEntry, limit int, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	a.PushHistory(entry, limit)
	a.UpdatedAt = now
	return nil
}

func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	setPassword(a, passwordHash, now)
	return nil
}

func (r *AdminRepository) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	exp := expiresAt
	a.Security.PasswordResetToken = tokenHash
	a.Security.PasswordResetExpires = &exp
	return nil
}

func (r *AdminRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*admin.Admin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.admins {
		if a.IsDeleted || tokenHash == "" || a.Security.PasswordResetToken != tokenHash {
			continue
		}
		exp := a.Security.PasswordResetExpires
		if exp == nil || !exp.After(now) {
			return nil, xerrors.ErrNotFound
		}
		setPassword(a, passwordHash, now)
		return a.Clone(), nil
	}
	return nil, xerrors.ErrNotFound
}

func setPassword(a *admin.Admin, passwordHash string, now time.Time) {
	changedAt := now
	a.PasswordHash = passwordHash
	a.Security.PasswordChangedAt = &changedAt
	a.Security.PasswordResetToken = ""
	a.Security.PasswordResetExpires = nil
	a.UpdatedAt = now
}

func (r *AdminRepository) UpdateStatus(ctx context.Context, id string, status admin.Status, actor string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	a.Status = status
	a.UpdatedBy = actor
	a.UpdatedAt = now
	return nil
}

func (r *AdminRepository) Unlock(ctx context.Context, id, actor string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	a.Security.FailedLoginAttempts = 0
	a.Security.AccountLockedUntil = nil
	if a.Status == admin.StatusLocked {
		a.Status = admin.StatusActive
	}
	a.UpdatedBy = actor
	a.UpdatedAt = now
	return nil
}

func (r *AdminRepository) AssignRole(ctx context.Context, id, roleID, actor string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	a.RoleID = roleID
	a.UpdatedBy = actor
	a.UpdatedAt = now
	return nil
}

func (r *AdminRepository) SoftDelete(ctx context.Context, id, actor string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	deletedAt := now
	a.IsDeleted = true
	a.DeletedAt = &deletedAt
	a.DeletedBy = actor
	a.UpdatedAt = now
	return nil
}
