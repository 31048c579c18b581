// internal/repository/postgres/admin_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/pkg/softdelete"
)

const adminColumns = `id, email, password_hash, role_id, profile, status, last_login_at, login_history,
	failed_login_attempts, last_failed_login, account_locked_until, password_changed_at,
	password_reset_token, password_reset_expires, metadata,
	created_by, updated_by, is_deleted, deleted_at, deleted_by, created_at, updated_at`

// historyPush prepends the one-element array in $3 to login_history and keeps
// the newest $4 entries.
const historyPush = `(
	SELECT COALESCE(jsonb_agg(h.e ORDER BY h.ord), '[]'::jsonb)
	FROM jsonb_array_elements($3::jsonb || a.login_history) WITH ORDINALITY AS h(e, ord)
	WHERE h.ord <= $4
)`

type AdminRepository struct {
	db *DB
}

var _ admin.Repository = (*AdminRepository)(nil)

func NewAdminRepository(db *DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) scanAdmin(row scanner) (*admin.Admin, error) {
	var (
		a          admin.Admin
		profile    []byte
		history    []byte
		metadata   []byte
		resetToken *string
	)

	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.RoleID, &profile, &a.Status, &a.LastLoginAt, &history,
		&a.Security.FailedLoginAttempts, &a.Security.LastFailedLogin, &a.Security.AccountLockedUntil,
		&a.Security.PasswordChangedAt, &resetToken, &a.Security.PasswordResetExpires, &metadata,
		&a.CreatedBy, &a.UpdatedBy, &a.IsDeleted, &a.DeletedAt, &a.DeletedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}

	a.Security.PasswordResetToken = derefString(resetToken)
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &a.Profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
	}
	a.LoginHistory = []admin.LoginHistoryEntry{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.LoginHistory); err != nil {
			return nil, fmt.Errorf("failed to unmarshal login history: %w", err)
		}
	}
	if a.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AdminRepository) Create(ctx context.Context, a *admin.Admin) error {
	profile, err := marshalJSON(a.Profile)
	if err != nil {
		return err
	}
	if a.LoginHistory == nil {
		a.LoginHistory = []admin.LoginHistoryEntry{}
	}
	history, err := marshalJSON(a.LoginHistory)
	if err != nil {
		return err
	}
	metadata, err := marshalMap(a.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO admins (
			id, email, password_hash, role_id, profile, status, login_history,
			password_changed_at, metadata, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.pool.Exec(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.RoleID, profile, a.Status, history,
		a.Security.PasswordChangedAt, metadata, a.CreatedBy, a.UpdatedBy, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create admin: %w", err))
	}
	return nil
}

func (r *AdminRepository) findOne(ctx context.Context, column string, value interface{}) (*admin.Admin, error) {
	var w where
	w.add(column+" = ?", value)
	w.add(softdelete.Clause(ctx, "is_deleted"))

	query := fmt.Sprintf(`SELECT %s FROM admins %s`, adminColumns, w.String())
	return r.scanAdmin(r.db.pool.QueryRow(ctx, query, w.args...))
}

func (r *AdminRepository) FindByID(ctx context.Context, id string) (*admin.Admin, error) {
	return r.findOne(ctx, "id", id)
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (*admin.Admin, error) {
	return r.findOne(ctx, "email", email)
}

func (r *AdminRepository) List(ctx context.Context, f admin.Filter) ([]*admin.Admin, error) {
	var w where
	w.add(softdelete.Clause(ctx, "is_deleted"))
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.RoleID != "" {
		w.add("role_id = ?", f.RoleID)
	}

	query := fmt.Sprintf(`SELECT %s FROM admins %s ORDER BY created_at, id %s`,
		adminColumns, w.String(), w.paginate(f.Limit, f.Offset))

	rows, err := r.db.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list admins: %w", err))
	}
	defer rows.Close()

	admins := []*admin.Admin{}
	for rows.Next() {
		a, err := r.scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, mapError(rows.Err())
}

func (r *AdminRepository) CountByRole(ctx context.Context, roleID string) (int64, error) {
	var n int64
	err := r.db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM admins WHERE role_id = $1 AND is_deleted = false`, roleID,
	).Scan(&n)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to count admins: %w", err))
	}
	return n, nil
}

func historyEntry(entry admin.LoginHistoryEntry) ([]byte, error) {
	return marshalJSON([]admin.LoginHistoryEntry{entry})
}

// RecordLoginFailure applies the lockout transition in one statement. Every
// SET expression reads the pre-update row, so concurrent failures serialise
// on the row lock and none of them is lost.
func (r *AdminRepository) RecordLoginFailure(ctx context.Context, id string, entry admin.LoginHistoryEntry, policy admin.LockoutPolicy, now time.Time) (*admin.Admin, error) {
	policy = normalizePolicy(policy)
	entry.Success = false
	entryJSON, err := historyEntry(entry)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE admins AS a SET
			login_history = %s,
			failed_login_attempts = CASE
				WHEN a.account_locked_until > $2 THEN a.failed_login_attempts
				WHEN a.account_locked_until IS NOT NULL THEN 1
				ELSE a.failed_login_attempts + 1
			END,
			last_failed_login = CASE
				WHEN a.account_locked_until > $2 THEN a.last_failed_login
				ELSE $2
			END,
			account_locked_until = CASE
				WHEN a.account_locked_until > $2 THEN a.account_locked_until
				WHEN (CASE WHEN a.account_locked_until IS NOT NULL THEN 1 ELSE a.failed_login_attempts + 1 END) >= $5 THEN $6::timestamptz
				ELSE NULL
			END,
			status = CASE
				WHEN a.account_locked_until > $2 THEN a.status
				WHEN (CASE WHEN a.account_locked_until IS NOT NULL THEN 1 ELSE a.failed_login_attempts + 1 END) >= $5
					AND a.status IN ('ACTIVE', 'LOCKED') THEN 'LOCKED'
				WHEN a.account_locked_until IS NOT NULL AND a.status = 'LOCKED' THEN 'ACTIVE'
				ELSE a.status
			END,
			updated_at = $2
		WHERE a.id = $1 AND a.is_deleted = false
		RETURNING %s
	`, historyPush, adminColumns)

	row := r.db.pool.QueryRow(ctx, query, id, now, entryJSON, policy.HistoryLimit, policy.Threshold, now.Add(policy.Duration))
	a, err := r.scanAdmin(row)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to record login failure")
	}
	return a, nil
}

// RecordLoginSuccess only matches while no lock is active. A miss on an
// existing row means a concurrent failure locked the account first.
func (r *AdminRepository) RecordLoginSuccess(ctx context.Context, id string, entry admin.LoginHistoryEntry, policy admin.LockoutPolicy, now time.Time) (*admin.Admin, error) {
	policy = normalizePolicy(policy)
	entry.Success = true
	entry.FailureReason = ""
	entryJSON, err := historyEntry(entry)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE admins AS a SET
			login_history = %s,
			last_login_at = $2,
			failed_login_attempts = 0,
			account_locked_until = NULL,
			status = CASE WHEN a.status = 'LOCKED' THEN 'ACTIVE' ELSE a.status END,
			updated_at = $2
		WHERE a.id = $1 AND a.is_deleted = false
		  AND (a.account_locked_until IS NULL OR a.account_locked_until <= $2)
		RETURNING %s
	`, historyPush, adminColumns)

	a, err := r.scanAdmin(r.db.pool.QueryRow(ctx, query, id, now, entryJSON, policy.HistoryLimit))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, xerrors.Wrap(err, "failed to record login success")
	}

	current, findErr := r.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return current, admin.ErrLockActive
}

func (r *AdminRepository) AppendLoginHistory(ctx context.Context, id string, entry admin.LoginHistoryEntry, limit int, now time.Time) error {
	if limit <= 0 {
		limit = admin.DefaultHistoryLimit
	}
	if entry.Success {
		entry.FailureReason = ""
	}
	entryJSON, err := historyEntry(entry)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE admins AS a SET login_history = %s, updated_at = $2
		WHERE a.id = $1 AND a.is_deleted = false
	`, historyPush)

	return r.execOne(ctx, "append login history", query, id, now, entryJSON, limit)
}

func (r *AdminRepository) UpdatePassword(ctx context.Context, id, passwordHash string, now time.Time) error {
	query := `
		UPDATE admins SET password_hash = $2, password_changed_at = $3,
			password_reset_token = NULL, password_reset_expires = NULL, updated_at = $3
		WHERE id = $1 AND is_deleted = false
	`
	return r.execOne(ctx, "update password", query, id, passwordHash, now)
}

func (r *AdminRepository) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	query := `
		UPDATE admins SET password_reset_token = $2, password_reset_expires = $3
		WHERE id = $1 AND is_deleted = false
	`
	return r.execOne(ctx, "set reset token", query, id, nullString(tokenHash), expiresAt)
}

// ConsumePasswordResetToken swaps the password and clears the token in one
// statement, so a token can be redeemed once.
func (r *AdminRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (*admin.Admin, error) {
	if tokenHash == "" {
		return nil, xerrors.ErrNotFound
	}
	query := fmt.Sprintf(`
		UPDATE admins SET password_hash = $2, password_changed_at = $3,
			password_reset_token = NULL, password_reset_expires = NULL, updated_at = $3
		WHERE password_reset_token = $1 AND password_reset_expires > $3 AND is_deleted = false
		RETURNING %s
	`, adminColumns)

	return r.scanAdmin(r.db.pool.QueryRow(ctx, query, tokenHash, passwordHash, now))
}

func (r *AdminRepository) UpdateStatus(ctx context.Context, id string, status admin.Status, actor string, now time.Time) error {
	query := `UPDATE admins SET status = $2, updated_by = $3, updated_at = $4 WHERE id = $1 AND is_deleted = false`
	return r.execOne(ctx, "update status", query, id, status, actor, now)
}

func (r *AdminRepository) Unlock(ctx context.Context, id, actor string, now time.Time) error {
	query := `
		UPDATE admins SET failed_login_attempts = 0, account_locked_until = NULL,
			status = CASE WHEN status = 'LOCKED' THEN 'ACTIVE' ELSE status END,
			updated_by = $2, updated_at = $3
		WHERE id = $1 AND is_deleted = false
	`
	return r.execOne(ctx, "unlock admin", query, id, actor, now)
}

func (r *AdminRepository) AssignRole(ctx context.Context, id, roleID, actor string, now time.Time) error {
	query := `UPDATE admins SET role_id = $2, updated_by = $3, updated_at = $4 WHERE id = $1 AND is_deleted = false`
	return r.execOne(ctx, "assign role", query, id, roleID, actor, now)
}

func (r *AdminRepository) SoftDelete(ctx context.Context, id, actor string, now time.Time) error {
	query := `
		UPDATE admins SET is_deleted = true, deleted_at = $3, deleted_by = $2, updated_at = $3
		WHERE id = $1 AND is_deleted = false
	`
	return r.execOne(ctx, "delete admin", query, id, actor, now)
}

// execOne runs a single-row write and reports ErrNotFound when nothing matched.
func (r *AdminRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(fmt.Errorf("failed to %s: %w", op, err))
	}
	if result.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func normalizePolicy(p admin.LockoutPolicy) admin.LockoutPolicy {
	def := admin.DefaultLockoutPolicy()
	if p.Threshold <= 0 {
		p.Threshold = def.Threshold
	}
	if p.Duration <= 0 {
		p.Duration = def.Duration
	}
	if p.HistoryLimit <= 0 {
		p.HistoryLimit = def.HistoryLimit
	}
	return p
}
