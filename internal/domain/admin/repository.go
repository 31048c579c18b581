// internal/domain/admin/repository.go
package admin

import (
	"context"
	"time"
)

// Filter narrows List. Soft-deleted admins follow the softdelete scope of ctx.
type Filter struct {
	Status Status
	RoleID string
	Limit  int
	Offset int
}

// Repository persists admins. Every write that touches lockout state is a
// single atomic statement in the backing store.
type Repository interface {
	Create(ctx context.Context, a *Admin) error
	FindByID(ctx context.Context, id string) (*Admin, error)
	FindByEmail(ctx context.Context, email string) (*Admin, error)
	List(ctx context.Context, f Filter) ([]*Admin, error)
	CountByRole(ctx context.Context, roleID string) (int64, error)

	// Login bookkeeping
	RecordLoginFailure(ctx context.Context, id string, entry LoginHistoryEntry, policy LockoutPolicy, now time.Time) (*Admin, error)
	RecordLoginSuccess(ctx context.Context, id string, entry LoginHistoryEntry, policy LockoutPolicy, now time.Time) (*Admin, error)
	AppendLoginHistory(ctx context.Context, id string, entry LoginHistoryEntry, limit int, now time.Time) error

	// Credentials
	UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error
	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*Admin, error)

	// Administration
	UpdateStatus(ctx context.Context, id string, status Status, actor string, now time.Time) error
	Unlock(ctx context.Context, id, actor string, now time.Time) error
	AssignRole(ctx context.Context, id, roleID, actor string, now time.Time) error
	SoftDelete(ctx context.Context, id, actor string, now time.Time) error
}
