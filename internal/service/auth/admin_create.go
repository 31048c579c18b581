package auth

import (
	"context"
	"errors"
	"fmt"

	"backoffice-iam/internal/config"
	"backoffice-iam/internal/domain/admin"
	xerrors "backoffice-iam/internal/pkg/errors"
	rbacsvc "backoffice-iam/internal/service/rbac"

	"go.uber.org/zap"
)

const systemActor = "system"

// EnsureSuperAdminExists creates the first super admin when no live admin
// holds the SUPER_ADMIN role (called on startup, after the catalog is seeded).
func (s *AuthService) EnsureSuperAdminExists(ctx context.Context, cfg config.SuperAdminConfig) error {
	role, err := s.rbac.GetRoleByName(ctx, rbacsvc.SuperAdminRole)
	if err != nil {
		return fmt.Errorf("failed to load %s role: %w", rbacsvc.SuperAdminRole, err)
	}

	count, err := s.engine.CountByRole(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("failed to check super admin existence: %w", err)
	}
	if count > 0 {
		s.logger.Info("super admin already exists, skipping creation")
		return nil
	}

	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("no super admin exists and SUPER_ADMIN_EMAIL / SUPER_ADMIN_PASSWORD are not set")
	}

	s.logger.Info("creating super admin account", zap.String("email", cfg.Email))

	a, err := s.engine.Provision(ctx, admin.CreateAdminRequest{
		Email:     cfg.Email,
		Password:  cfg.Password,
		RoleID:    role.ID,
		FirstName: cfg.FirstName,
		LastName:  cfg.LastName,
	}, systemActor)
	if errors.Is(err, xerrors.ErrConflict) {
		return fmt.Errorf("email %s already exists but does not hold the %s role", cfg.Email, rbacsvc.SuperAdminRole)
	}
	if err != nil {
		return fmt.Errorf("failed to create super admin: %w", err)
	}

	s.logger.Info("super admin created successfully",
		zap.String("email", a.Email),
		zap.String("admin_id", a.ID),
	)
	return nil
}
