// Package rbac manages roles and permissions, enforces the system entity
// guard on every write path and resolves an admin's effective permissions.
package rbac

import (
	"context"
	"errors"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/metrics"
	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultStorageTimeout = 5 * time.Second

// Cache stores the resolved permission keys of a role, namespaced by a
// generation that InvalidateAll advances.
type Cache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, roleID string) ([]string, bool, error)
	Set(ctx context.Context, gen int64, roleID string, keys []string) error
	InvalidateAll(ctx context.Context) error
}

type Service struct {
	roles   rbac.RoleRepository
	perms   rbac.PermissionRepository
	cache   Cache
	timeout time.Duration
	now     func() time.Time
	audit   audit.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithAuditSink(a audit.Sink) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(roles rbac.RoleRepository, perms rbac.PermissionRepository, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		roles:   roles,
		perms:   perms,
		timeout: DefaultStorageTimeout,
		now:     time.Now,
		audit:   audit.Nop,
		logger:  logger.Named("rbac"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) store(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return xerrors.Storage(fn(ctx))
}

// invalidate drops every cached resolution. A cache outage is logged; entries
// age out on their TTL.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("failed to invalidate permission cache", zap.Error(err))
	}
}

// rejected records a guard refusal before it is returned.
func (s *Service) rejected(ctx context.Context, entity, actor string, err error) error {
	var protected *xerrors.SystemEntityProtectedError
	if errors.As(err, &protected) {
		s.metrics.GuardRejected(entity)
		s.audit.Emit(ctx, audit.Event{
			Name:    audit.SystemEntityProtected,
			AdminID: actor,
			Reason:  protected.Error(),
			At:      s.clock(),
			Fields:  map[string]any{"entity": entity, "id": protected.ID, "op": protected.Op, "fields": protected.Fields},
		})
	}
	return err
}

func newID(prefix string) string { return prefix + uuid.NewString() }
