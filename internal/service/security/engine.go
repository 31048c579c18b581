// Package security drives the admin account state machine: login attempts,
// lockout, password changes and resets, and account administration.
package security

import (
	"context"
	"errors"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/metrics"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/service/credential"

	"go.uber.org/zap"
)

const DefaultStorageTimeout = 5 * time.Second

// CredentialHook runs after an admin's credentials or access were withdrawn:
// password change or reset, suspension, deletion. The server wires refresh
// token revocation here.
type CredentialHook func(ctx context.Context, adminID, reason string) error

// Hook reasons.
const (
	ReasonPasswordChanged = "password_changed"
	ReasonPasswordReset   = "password_reset"
	ReasonStatusChanged   = "status_changed"
	ReasonDeleted         = "deleted"
)

type Engine struct {
	admins  admin.Repository
	roles   rbac.RoleRepository
	creds   *credential.Manager
	policy  admin.LockoutPolicy
	timeout time.Duration
	now     func() time.Time
	audit   audit.Sink
	metrics *metrics.Metrics
	hooks   []CredentialHook
	logger  *zap.Logger
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithPolicy(p admin.LockoutPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithAuditSink(s audit.Sink) Option {
	return func(e *Engine) {
		if s != nil {
			e.audit = s
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithCredentialHook(h CredentialHook) Option {
	return func(e *Engine) {
		if h != nil {
			e.hooks = append(e.hooks, h)
		}
	}
}

func NewEngine(admins admin.Repository, roles rbac.RoleRepository, creds *credential.Manager, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		admins:  admins,
		roles:   roles,
		creds:   creds,
		policy:  admin.DefaultLockoutPolicy(),
		timeout: DefaultStorageTimeout,
		now:     time.Now,
		audit:   audit.Nop,
		logger:  logger.Named("security"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnCredentialsChanged registers a hook after construction.
func (e *Engine) OnCredentialsChanged(h CredentialHook) {
	if h != nil {
		e.hooks = append(e.hooks, h)
	}
}

func (e *Engine) Policy() admin.LockoutPolicy { return e.policy }

// clock returns the current time at storage precision.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// store runs fn under the storage timeout. A deadline is reported as
// ErrStorageUnavailable, never as an authorization outcome.
func (e *Engine) store(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return xerrors.Storage(fn(ctx))
}

func (e *Engine) emit(ctx context.Context, ev audit.Event) {
	if ev.At.IsZero() {
		ev.At = e.clock()
	}
	e.audit.Emit(ctx, ev)
}

func (e *Engine) credentialsChanged(ctx context.Context, adminID, reason string) error {
	for _, h := range e.hooks {
		if err := e.store(ctx, func(ctx context.Context) error { return h(ctx, adminID, reason) }); err != nil {
			e.logger.Error("credential hook failed",
				zap.String("admin_id", adminID), zap.String("reason", reason), zap.Error(err))
			return xerrors.Wrap(err, "failed to revoke sessions")
		}
	}
	return nil
}

// Authenticate runs one login attempt through the lockout state machine. Any
// storage failure while recording the attempt fails the attempt.
func (e *Engine) Authenticate(ctx context.Context, email, password string, meta admin.DeviceMeta) (*admin.Admin, error) {
	now := e.clock()

	normalized, err := admin.NormalizeEmail(email)
	if err != nil {
		e.creds.DummyVerify(password)
		return nil, xerrors.ErrInvalidCredentials
	}

	var a *admin.Admin
	err = e.store(ctx, func(ctx context.Context) (err error) {
		a, err = e.admins.FindByEmail(ctx, normalized)
		return err
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		e.creds.DummyVerify(password)
		e.metrics.Login(metrics.OutcomeFailure)
		e.emit(ctx, audit.Event{Name: audit.LoginFailure, Email: normalized, IP: meta.IP, UserAgent: meta.UserAgent, Reason: "unknown account"})
		return nil, xerrors.ErrInvalidCredentials
	}
	if err != nil {
		e.emit(ctx, audit.Event{Name: audit.ServerError("login"), Email: normalized, Fields: map[string]any{"error": err.Error()}})
		return nil, err
	}

	if a.IsLocked(now) {
		if _, err := e.recordFailure(ctx, a, admin.ReasonAccountLocked, meta, now); err != nil {
			return nil, err
		}
		e.metrics.Login(metrics.OutcomeLocked)
		return nil, lockedError(a, now)
	}

	ok, err := e.creds.Verify(password, a.PasswordHash)
	if err != nil {
		e.logger.Error("corrupt credential", zap.String("admin_id", a.ID), zap.Error(err))
		e.emit(ctx, audit.Event{Name: audit.ServerError("login"), AdminID: a.ID, Reason: "corrupt credential"})
		return nil, err
	}

	if !ok {
		updated, err := e.recordFailure(ctx, a, admin.ReasonInvalidCredentials, meta, now)
		if err != nil {
			return nil, err
		}
		if updated.LockEngagedAt(now) {
			e.metrics.Lockout()
			e.emit(ctx, audit.Event{Name: audit.AccountLocked, AdminID: a.ID, Email: a.Email, IP: meta.IP,
				Fields: map[string]any{"locked_until": updated.Security.AccountLockedUntil}})
			e.logger.Warn("account locked", zap.String("admin_id", a.ID), zap.Int("attempts", updated.Security.FailedLoginAttempts))
			return nil, lockedError(updated, now)
		}
		if updated.IsLocked(now) {
			// a concurrent attempt engaged the lock after the read above
			return nil, lockedError(updated, now)
		}
		return nil, xerrors.ErrInvalidCredentials
	}

	switch a.EffectiveStatus(now) {
	case admin.StatusInactive:
		if err := e.appendHistory(ctx, a, admin.ReasonAccountInactive, meta, now); err != nil {
			return nil, err
		}
		e.metrics.Login(metrics.OutcomeInactive)
		return nil, xerrors.ErrAccountInactive
	case admin.StatusSuspended:
		if err := e.appendHistory(ctx, a, admin.ReasonAccountSuspended, meta, now); err != nil {
			return nil, err
		}
		e.metrics.Login(metrics.OutcomeSuspended)
		return nil, xerrors.ErrAccountSuspended
	}

	updated, err := e.RecordAttempt(ctx, a, true, "", meta)
	if errors.Is(err, admin.ErrLockActive) {
		e.metrics.Login(metrics.OutcomeLocked)
		return nil, lockedError(updated, now)
	}
	if err != nil {
		return nil, err
	}

	e.metrics.Login(metrics.OutcomeSuccess)
	e.emit(ctx, audit.Event{Name: audit.LoginSuccess, AdminID: a.ID, Email: a.Email, IP: meta.IP, UserAgent: meta.UserAgent, At: now})
	return updated, nil
}

// RecordAttempt writes one attempt atomically. A failure advances the lockout
// counter unless a lock is already active. A success is refused with
// admin.ErrLockActive when a concurrent failure locked the account first; the
// returned admin then carries the lock.
func (e *Engine) RecordAttempt(ctx context.Context, a *admin.Admin, success bool, reason admin.FailureReason, meta admin.DeviceMeta) (*admin.Admin, error) {
	now := e.clock()
	if !success {
		return e.recordFailure(ctx, a, reason, meta, now)
	}

	entry := admin.LoginHistoryEntry{IP: meta.IP, UserAgent: meta.UserAgent, Timestamp: now, Success: true}
	var updated *admin.Admin
	err := e.store(ctx, func(ctx context.Context) (err error) {
		updated, err = e.admins.RecordLoginSuccess(ctx, a.ID, entry, e.policy, now)
		return err
	})
	if errors.Is(err, admin.ErrLockActive) {
		return updated, err
	}
	if err != nil {
		e.emit(ctx, audit.Event{Name: audit.ServerError("record login success"), AdminID: a.ID, Fields: map[string]any{"error": err.Error()}})
		return nil, xerrors.Wrap(err, "failed to record login")
	}
	return updated, nil
}

func (e *Engine) recordFailure(ctx context.Context, a *admin.Admin, reason admin.FailureReason, meta admin.DeviceMeta, now time.Time) (*admin.Admin, error) {
	if reason == "" {
		reason = admin.ReasonOther
	}
	entry := admin.LoginHistoryEntry{IP: meta.IP, UserAgent: meta.UserAgent, Timestamp: now, FailureReason: reason}

	var updated *admin.Admin
	err := e.store(ctx, func(ctx context.Context) (err error) {
		updated, err = e.admins.RecordLoginFailure(ctx, a.ID, entry, e.policy, now)
		return err
	})
	if err != nil {
		e.emit(ctx, audit.Event{Name: audit.ServerError("record login failure"), AdminID: a.ID, Fields: map[string]any{"error": err.Error()}})
		return nil, xerrors.Wrap(err, "failed to record login failure")
	}

	if reason != admin.ReasonAccountLocked {
		e.metrics.Login(metrics.OutcomeFailure)
	}
	e.emit(ctx, audit.Event{Name: audit.LoginFailure, AdminID: a.ID, Email: a.Email, IP: meta.IP, UserAgent: meta.UserAgent,
		Reason: string(reason), At: now, Fields: map[string]any{"failed_attempts": updated.Security.FailedLoginAttempts}})
	return updated, nil
}

// appendHistory records a refused attempt that must not count towards lockout.
func (e *Engine) appendHistory(ctx context.Context, a *admin.Admin, reason admin.FailureReason, meta admin.DeviceMeta, now time.Time) error {
	entry := admin.LoginHistoryEntry{IP: meta.IP, UserAgent: meta.UserAgent, Timestamp: now, FailureReason: reason}
	err := e.store(ctx, func(ctx context.Context) error {
		return e.admins.AppendLoginHistory(ctx, a.ID, entry, e.policy.HistoryLimit, now)
	})
	if err != nil {
		e.emit(ctx, audit.Event{Name: audit.ServerError("append login history"), AdminID: a.ID, Fields: map[string]any{"error": err.Error()}})
		return xerrors.Wrap(err, "failed to record login history")
	}
	e.emit(ctx, audit.Event{Name: audit.LoginFailure, AdminID: a.ID, Email: a.Email, IP: meta.IP, UserAgent: meta.UserAgent, Reason: string(reason), At: now})
	return nil
}

func lockedError(a *admin.Admin, now time.Time) error {
	if a == nil || !a.IsLocked(now) {
		return xerrors.ErrAccountLocked
	}
	return &xerrors.AccountLockedError{Until: *a.Security.AccountLockedUntil, RetryAfter: a.LockRemaining(now)}
}
