package security

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/repository/memory"
	"backoffice-iam/internal/service/credential"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const password = "s3cure-passw0rd"

type fixture struct {
	engine   *Engine
	admins   admin.Repository
	recorder *audit.Recorder
	now      time.Time
	hooks    []string
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T, wrap func(admin.Repository) admin.Repository, opts ...Option) *fixture {
	t.Helper()

	store := memory.NewStore()
	f := &fixture{recorder: audit.NewRecorder(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.admins = store.Admins()
	if wrap != nil {
		f.admins = wrap(f.admins)
	}

	ctx := context.Background()
	require.NoError(t, store.Roles().Create(ctx, &rbac.Role{ID: "role_ops", RoleName: "OPS", DisplayName: "Operations", PermissionIDs: []string{"perm_1"}, IsActive: true, Level: 3}))

	creds := credential.NewManager(bcrypt.MinCost, credential.WithClock(func() time.Time { return f.now }))
	base := []Option{
		WithClock(func() time.Time { return f.now }),
		WithAuditSink(f.recorder),
		WithCredentialHook(func(_ context.Context, adminID, reason string) error {
			f.hooks = append(f.hooks, adminID+":"+reason)
			return nil
		}),
	}
	f.engine = NewEngine(f.admins, store.Roles(), creds, nil, append(base, opts...)...)
	return f
}

func (f *fixture) provision(t *testing.T) *admin.Admin {
	t.Helper()
	a, err := f.engine.Provision(context.Background(), admin.CreateAdminRequest{
		Email:     "Ops.Lead@Example.com",
		Password:  password,
		RoleID:    "role_ops",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, "admin_root")
	require.NoError(t, err)
	return a
}

var meta = admin.DeviceMeta{IP: "203.0.113.7", UserAgent: "test"}

func TestFifthFailureLocksAccount(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
		require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
	}

	_, err := f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	var locked *xerrors.AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 30*time.Minute, locked.RetryAfter)

	got, err := f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, admin.StatusLocked, got.Status)
	require.Equal(t, 5, got.Security.FailedLoginAttempts)
	require.Equal(t, f.now.Add(30*time.Minute), *got.Security.AccountLockedUntil)
	require.Len(t, got.LoginHistory, 5)
	require.Contains(t, f.recorder.Names(), audit.AccountLocked)
}

func TestLockedAccountRejectsEvenCorrectPassword(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	}
	before, err := f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	_, err = f.engine.Authenticate(ctx, a.Email, password, meta)
	var locked *xerrors.AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 20*time.Minute, locked.RetryAfter)

	after, err := f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 5, after.Security.FailedLoginAttempts)
	require.Equal(t, *before.Security.AccountLockedUntil, *after.Security.AccountLockedUntil)
	require.Len(t, after.LoginHistory, 6)
	require.Equal(t, admin.ReasonAccountLocked, after.LoginHistory[0].FailureReason)
}

func TestLockExpiresLazily(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	}
	f.advance(31 * time.Minute)

	got, err := f.engine.Authenticate(ctx, a.Email, password, meta)
	require.NoError(t, err)
	require.Equal(t, admin.StatusActive, got.Status)
	require.Zero(t, got.Security.FailedLoginAttempts)
	require.Nil(t, got.Security.AccountLockedUntil)
	require.Equal(t, f.now, *got.LastLoginAt)
	require.True(t, got.LoginHistory[0].Success)
}

func TestSuccessResetsCounter(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	}
	got, err := f.engine.Authenticate(ctx, "  OPS.LEAD@example.com ", password, meta)
	require.NoError(t, err)
	require.Zero(t, got.Security.FailedLoginAttempts)
	require.Contains(t, f.recorder.Names(), audit.LoginSuccess)
}

func TestUnknownEmailIsInvalidCredentials(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.Authenticate(context.Background(), "nobody@example.com", password, meta)
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)

	_, err = f.engine.Authenticate(context.Background(), "not-an-email", password, meta)
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

func TestSuspendedAccountWithCorrectPassword(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()
	require.NoError(t, f.engine.SetStatus(ctx, a.ID, admin.StatusSuspended, "admin_root"))
	require.Equal(t, []string{a.ID + ":" + ReasonStatusChanged}, f.hooks)

	f.advance(time.Minute)
	_, err := f.engine.Authenticate(ctx, a.Email, password, meta)
	require.ErrorIs(t, err, xerrors.ErrAccountSuspended)

	got, err := f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Zero(t, got.Security.FailedLoginAttempts)
	require.Equal(t, admin.ReasonAccountSuspended, got.LoginHistory[0].FailureReason)
	require.Equal(t, f.now, got.UpdatedAt)

	// Wrong passwords still count against a suspended account.
	_, err = f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
	got, err = f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Security.FailedLoginAttempts)
}

type failingWrites struct {
	admin.Repository
	err error
}

func (r failingWrites) RecordLoginFailure(context.Context, string, admin.LoginHistoryEntry, admin.LockoutPolicy, time.Time) (*admin.Admin, error) {
	return nil, r.err
}

func (r failingWrites) RecordLoginSuccess(context.Context, string, admin.LoginHistoryEntry, admin.LockoutPolicy, time.Time) (*admin.Admin, error) {
	return nil, r.err
}

func TestHistoryWriteFailureFailsAttempt(t *testing.T) {
	boom := errors.New("connection reset")
	var wrapped *failingWrites
	f := newFixture(t, func(r admin.Repository) admin.Repository {
		wrapped = &failingWrites{Repository: r}
		return wrapped
	})
	a := f.provision(t)
	wrapped.err = boom

	got, err := f.engine.Authenticate(context.Background(), a.Email, password, meta)
	require.ErrorIs(t, err, boom)
	require.Nil(t, got)

	_, err = f.engine.Authenticate(context.Background(), a.Email, "wrong-password", meta)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

type blockingReads struct {
	admin.Repository
}

func (blockingReads) FindByEmail(ctx context.Context, _ string) (*admin.Admin, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestStorageTimeoutIsNotAnAuthDecision(t *testing.T) {
	f := newFixture(t, func(r admin.Repository) admin.Repository { return blockingReads{r} },
		WithStorageTimeout(20*time.Millisecond))

	_, err := f.engine.Authenticate(context.Background(), "ops@example.com", password, meta)
	require.ErrorIs(t, err, xerrors.ErrStorageUnavailable)
	require.NotErrorIs(t, err, xerrors.ErrInvalidCredentials)
}

type concurrentLock struct {
	admin.Repository
	until time.Time
}

func (r concurrentLock) RecordLoginSuccess(ctx context.Context, id string, _ admin.LoginHistoryEntry, _ admin.LockoutPolicy, _ time.Time) (*admin.Admin, error) {
	a, err := r.Repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Security.AccountLockedUntil = &r.until
	return a, admin.ErrLockActive
}

func TestSuccessLosesRaceToConcurrentLock(t *testing.T) {
	f := newFixture(t, func(r admin.Repository) admin.Repository {
		return concurrentLock{Repository: r, until: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}
	})
	a := f.provision(t)

	_, err := f.engine.Authenticate(context.Background(), a.Email, password, meta)
	var locked *xerrors.AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 30*time.Minute, locked.RetryAfter)
}

// staleLockRead serves FindByEmail as it looked before another attempt
// engaged the lock.
type staleLockRead struct {
	admin.Repository
}

func (r staleLockRead) FindByEmail(ctx context.Context, email string) (*admin.Admin, error) {
	a, err := r.Repository.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	a.Status = admin.StatusActive
	a.Security.AccountLockedUntil = nil
	a.Security.FailedLoginAttempts = 0
	return a, nil
}

func TestFailureAfterConcurrentLockReportsLock(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	}
	f.advance(time.Minute)

	f.engine.admins = staleLockRead{f.admins}

	_, err := f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	var locked *xerrors.AccountLockedError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 29*time.Minute, locked.RetryAfter)

	got, err := f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Security.FailedLoginAttempts)
}

func TestLongerPasswordSharingPrefixIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	long := strings.Repeat("k", 72)
	a, err := f.engine.Provision(context.Background(), admin.CreateAdminRequest{
		Email:     "long.pass@example.com",
		Password:  long,
		RoleID:    "role_ops",
		FirstName: "Long",
		LastName:  "Pass",
	}, "admin_root")
	require.NoError(t, err)

	_, err = f.engine.Authenticate(context.Background(), a.Email, long+"-suffix", meta)
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)

	_, err = f.engine.Authenticate(context.Background(), a.Email, long, meta)
	require.NoError(t, err)
}

func TestChangePasswordFiresHook(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	require.ErrorIs(t, f.engine.ChangePassword(ctx, a.ID, "wrong-password", "another-passw0rd"), xerrors.ErrInvalidCredentials)
	require.ErrorIs(t, f.engine.ChangePassword(ctx, a.ID, password, password), xerrors.ErrInvalidInput)
	require.ErrorIs(t, f.engine.ChangePassword(ctx, a.ID, password, "short"), xerrors.ErrInvalidInput)

	f.advance(time.Hour)
	require.NoError(t, f.engine.ChangePassword(ctx, a.ID, password, "another-passw0rd"))
	require.Equal(t, []string{a.ID + ":" + ReasonPasswordChanged}, f.hooks)

	got, err := f.admins.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, f.now, *got.Security.PasswordChangedAt)

	_, err = f.engine.Authenticate(ctx, a.Email, "another-passw0rd", meta)
	require.NoError(t, err)
}

func TestPasswordResetIsSingleUse(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	raw, target, err := f.engine.RequestPasswordReset(ctx, "ops.lead@example.com")
	require.NoError(t, err)
	require.Equal(t, a.ID, target.ID)
	require.NotEmpty(t, raw)

	_, _, err = f.engine.RequestPasswordReset(ctx, "ghost@example.com")
	require.ErrorIs(t, err, xerrors.ErrNotFound)

	got, err := f.engine.ResetPassword(ctx, raw, "brand-new-passw0rd")
	require.NoError(t, err)
	require.Equal(t, a.ID, got.ID)
	require.Equal(t, []string{a.ID + ":" + ReasonPasswordReset}, f.hooks)

	_, err = f.engine.ResetPassword(ctx, raw, "yet-another-passw0rd")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestPasswordResetExpires(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t)
	ctx := context.Background()

	raw, _, err := f.engine.RequestPasswordReset(ctx, "ops.lead@example.com")
	require.NoError(t, err)

	f.advance(16 * time.Minute)
	_, err = f.engine.ResetPassword(ctx, raw, "brand-new-passw0rd")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
	require.Empty(t, f.hooks)
}

func TestProvisionValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.provision(t)
	ctx := context.Background()

	req := admin.CreateAdminRequest{Email: "ops.lead@example.com", Password: password, RoleID: "role_ops", FirstName: "Ada", LastName: "Byron"}
	_, err := f.engine.Provision(ctx, req, "admin_root")
	require.ErrorIs(t, err, xerrors.ErrConflict)

	req.Email = "second@example.com"
	req.RoleID = "role_missing"
	_, err = f.engine.Provision(ctx, req, "admin_root")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	req.RoleID = "role_ops"
	req.Language = "xx"
	_, err = f.engine.Provision(ctx, req, "admin_root")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestAdministrativeTransitions(t *testing.T) {
	f := newFixture(t, nil)
	a := f.provision(t)
	ctx := context.Background()

	require.ErrorIs(t, f.engine.SetStatus(ctx, a.ID, admin.StatusLocked, "admin_root"), xerrors.ErrInvalidInput)
	require.ErrorIs(t, f.engine.SoftDelete(ctx, a.ID, a.ID), xerrors.ErrInvalidInput)

	for i := 0; i < 5; i++ {
		_, _ = f.engine.Authenticate(ctx, a.Email, "wrong-password", meta)
	}
	require.NoError(t, f.engine.Unlock(ctx, a.ID, "admin_root"))
	_, err := f.engine.Authenticate(ctx, a.Email, password, meta)
	require.NoError(t, err)

	require.NoError(t, f.engine.SoftDelete(ctx, a.ID, "admin_root"))
	_, err = f.engine.Get(ctx, a.ID)
	require.ErrorIs(t, err, xerrors.ErrNotFound)
	_, err = f.engine.Authenticate(ctx, a.Email, password, meta)
	require.ErrorIs(t, err, xerrors.ErrInvalidCredentials)
	require.Equal(t, []string{a.ID + ":" + ReasonDeleted}, f.hooks)
}
