// internal/repository/postgres/refresh_token_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"backoffice-iam/internal/domain/token"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const refreshTokenColumns = `id, admin_id, token_hash, issued_at, expires_at, ip, user_agent, device_info,
	is_revoked, revoked_at, revoked_by, last_used_at`

type RefreshTokenRepository struct {
	db *DB
}

var _ token.Repository = (*RefreshTokenRepository)(nil)

func NewRefreshTokenRepository(db *DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func scanRefreshToken(row scanner) (*token.RefreshToken, error) {
	var (
		t      token.RefreshToken
		device []byte
	)
	err := row.Scan(
		&t.ID, &t.AdminID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.IP, &t.UserAgent, &device,
		&t.IsRevoked, &t.RevokedAt, &t.RevokedBy, &t.LastUsedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if t.DeviceInfo, err = unmarshalMap(device); err != nil {
		return nil, err
	}
	return &t, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func insertRefreshToken(ctx context.Context, db execer, t *token.RefreshToken) error {
	device, err := marshalMap(t.DeviceInfo)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, admin_id, token_hash, issued_at, expires_at, ip, user_agent, device_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.AdminID, t.TokenHash, t.IssuedAt, t.ExpiresAt, t.IP, t.UserAgent, device)
	if err != nil {
		return mapError(fmt.Errorf("failed to insert refresh token: %w", err))
	}
	return nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *token.RefreshToken) error {
	return insertRefreshToken(ctx, r.db.pool, t)
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*token.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE token_hash = $1`, refreshTokenColumns)
	return scanRefreshToken(r.db.pool.QueryRow(ctx, query, hash))
}

// Rotate holds the old row's lock from the guard check until the replacement
// is committed. A second rotation of the same token waits and then fails the
// guard because it sees the token revoked.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, guard token.Guard, next *token.RefreshToken, now time.Time) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE token_hash = $1 FOR UPDATE`, refreshTokenColumns)
		old, err := scanRefreshToken(tx.QueryRow(ctx, query, oldHash))
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(old.Clone()); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE refresh_tokens SET is_revoked = true, revoked_at = $2, revoked_by = admin_id, last_used_at = $2
			WHERE id = $1
		`, old.ID, now)
		if err != nil {
			return mapError(fmt.Errorf("failed to revoke rotated token: %w", err))
		}
		return insertRefreshToken(ctx, tx, next)
	})
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, hash, revokedBy string, now time.Time) (bool, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, revoked_at = $2, revoked_by = $3
		WHERE token_hash = $1 AND is_revoked = false
	`, hash, now, revokedBy)
	if err != nil {
		return false, mapError(fmt.Errorf("failed to revoke token: %w", err))
	}
	return result.RowsAffected() > 0, nil
}

func (r *RefreshTokenRepository) RevokeAllForAdmin(ctx context.Context, adminID, revokedBy string, now time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `
		UPDATE refresh_tokens SET is_revoked = true, revoked_at = $2, revoked_by = $3
		WHERE admin_id = $1 AND is_revoked = false
	`, adminID, now, revokedBy)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to revoke tokens: %w", err))
	}
	return result.RowsAffected(), nil
}

func (r *RefreshTokenRepository) ListActiveForAdmin(ctx context.Context, adminID string, now time.Time) ([]*token.RefreshToken, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM refresh_tokens
		WHERE admin_id = $1 AND is_revoked = false AND expires_at > $2
		ORDER BY issued_at DESC
	`, refreshTokenColumns)

	rows, err := r.db.pool.Query(ctx, query, adminID, now)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to list tokens: %w", err))
	}
	defer rows.Close()

	tokens := []*token.RefreshToken{}
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, mapError(rows.Err())
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to delete expired tokens: %w", err))
	}
	return result.RowsAffected(), nil
}
