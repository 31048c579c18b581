// internal/app/storage.go
package app

import (
	"context"
	"fmt"

	"backoffice-iam/internal/config"
	"backoffice-iam/internal/db"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/domain/token"
	"backoffice-iam/internal/repository/memory"
	"backoffice-iam/internal/repository/postgres"

	"go.uber.org/zap"
)

// Repositories is the persistence handle every service is built on.
type Repositories struct {
	Admins        admin.Repository
	Roles         rbac.RoleRepository
	Permissions   rbac.PermissionRepository
	RefreshTokens token.Repository
	close         func()
}

func (r *Repositories) Close() {
	if r.close != nil {
		r.close()
	}
}

// MemoryRepositories keeps everything in process. Data is lost on restart.
func MemoryRepositories() *Repositories {
	store := memory.NewStore()
	return &Repositories{
		Admins:        store.Admins(),
		Roles:         store.Roles(),
		Permissions:   store.Permissions(),
		RefreshTokens: store.RefreshTokens(),
	}
}

// openStorage connects the configured driver. The postgres schema is applied
// on every start.
func openStorage(ctx context.Context, cfg config.AppConfig, logger *zap.Logger) (*Repositories, error) {
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("using in-memory storage, data will not survive a restart")
		return MemoryRepositories(), nil
	case "postgres", "":
		pool, err := db.ConnectDB(ctx, db.PostgresConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
		if err != nil {
			return nil, err
		}
		database := postgres.NewDB(pool)
		if err := database.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("connected to PostgreSQL")

		store := postgres.NewStore(database)
		return &Repositories{
			Admins:        store.Admins,
			Roles:         store.Roles,
			Permissions:   store.Permissions,
			RefreshTokens: store.RefreshTokens,
			close:         pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
