package security

import (
	"context"
	"errors"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/service/credential"

	"go.uber.org/zap"
)

// ChangePassword verifies the current password before storing the new hash.
// Sessions issued before the change become stale.
func (e *Engine) ChangePassword(ctx context.Context, adminID, current, next string) error {
	a, err := e.Get(ctx, adminID)
	if err != nil {
		return err
	}

	ok, err := e.creds.Verify(current, a.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.emit(ctx, audit.Event{Name: audit.ClientError("change password"), AdminID: adminID, Reason: "current password mismatch"})
		return xerrors.ErrInvalidCredentials
	}
	if err := admin.ValidatePasswordPolicy(next); err != nil {
		return err
	}
	if same, _ := e.creds.Verify(next, a.PasswordHash); same {
		return xerrors.Invalid("new_password", "must differ from the current password")
	}

	hash, err := e.creds.Hash(next)
	if err != nil {
		return err
	}
	now := e.clock()
	if err := e.store(ctx, func(ctx context.Context) error {
		return e.admins.UpdatePassword(ctx, adminID, hash, now)
	}); err != nil {
		return xerrors.Wrap(err, "failed to update password")
	}

	e.emit(ctx, audit.Event{Name: audit.PasswordChanged, AdminID: adminID, Email: a.Email})
	return e.credentialsChanged(ctx, adminID, ReasonPasswordChanged)
}

// RequestPasswordReset issues a reset token for the account behind email and
// returns the raw token for delivery. Unknown, inactive and suspended accounts
// return ErrNotFound so callers can answer uniformly.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, *admin.Admin, error) {
	normalized, err := admin.NormalizeEmail(email)
	if err != nil {
		return "", nil, err
	}

	var a *admin.Admin
	if err := e.store(ctx, func(ctx context.Context) (err error) {
		a, err = e.admins.FindByEmail(ctx, normalized)
		return err
	}); err != nil {
		return "", nil, err
	}

	switch a.EffectiveStatus(e.clock()) {
	case admin.StatusInactive, admin.StatusSuspended:
		e.logger.Info("password reset refused for disabled account", zap.String("admin_id", a.ID))
		return "", nil, xerrors.ErrNotFound
	}

	raw, err := e.creds.IssueResetToken(a)
	if err != nil {
		return "", nil, err
	}
	if err := e.store(ctx, func(ctx context.Context) error {
		return e.admins.SetPasswordResetToken(ctx, a.ID, a.Security.PasswordResetToken, *a.Security.PasswordResetExpires)
	}); err != nil {
		return "", nil, xerrors.Wrap(err, "failed to store reset token")
	}

	e.emit(ctx, audit.Event{Name: audit.PasswordResetRequested, AdminID: a.ID, Email: a.Email})
	return raw, a, nil
}

// ResetPassword redeems a reset token. The token is single use.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, next string) (*admin.Admin, error) {
	if rawToken == "" {
		return nil, xerrors.Invalid("token", "is required")
	}
	if err := admin.ValidatePasswordPolicy(next); err != nil {
		return nil, err
	}
	hash, err := e.creds.Hash(next)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var a *admin.Admin
	err = e.store(ctx, func(ctx context.Context) (err error) {
		a, err = e.admins.ConsumePasswordResetToken(ctx, credential.Digest(rawToken), hash, now)
		return err
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		e.emit(ctx, audit.Event{Name: audit.ClientError("reset password"), Reason: "invalid or expired token"})
		return nil, xerrors.Invalid("token", "reset token is invalid or has expired")
	}
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to reset password")
	}

	e.emit(ctx, audit.Event{Name: audit.PasswordResetCompleted, AdminID: a.ID, Email: a.Email})
	if err := e.credentialsChanged(ctx, a.ID, ReasonPasswordReset); err != nil {
		return nil, err
	}
	return a, nil
}
