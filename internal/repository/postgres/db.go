// internal/repository/postgres/db.go
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

type DB struct {
	pool *pgxpool.Pool
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

func (db *DB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// WithTx runs fn in a transaction. Any error from fn rolls it back.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Store bundles the repositories over one pool.
type Store struct {
	Admins        *AdminRepository
	Roles         *RoleRepository
	Permissions   *PermissionRepository
	RefreshTokens *RefreshTokenRepository
}

func NewStore(db *DB) *Store {
	return &Store{
		Admins:        NewAdminRepository(db),
		Roles:         NewRoleRepository(db),
		Permissions:   NewPermissionRepository(db),
		RefreshTokens: NewRefreshTokenRepository(db),
	}
}

// mapError turns driver errors into the application taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return xerrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return xerrors.Wrap(xerrors.ErrConflict, pgErr.ConstraintName)
	}
	return xerrors.Storage(err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}
