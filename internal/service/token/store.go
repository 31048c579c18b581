// Package token issues, validates and rotates opaque refresh tokens. Only the
// SHA-256 digest of a token value is ever stored.
package token

import (
	"context"
	"errors"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/token"
	"backoffice-iam/internal/metrics"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/service/credential"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	DefaultTTL            = 7 * 24 * time.Hour
	DefaultStorageTimeout = 5 * time.Second
	valueBytes            = 32
)

// Token results reported to metrics.
const (
	ResultIssued  = "issued"
	ResultRotated = "rotated"
	ResultRevoked = "revoked"
	ResultInvalid = "invalid"
	ResultExpired = "expired"
	ResultStale   = "stale"
)

// AdminFinder loads the owner of a token.
type AdminFinder interface {
	FindByID(ctx context.Context, id string) (*admin.Admin, error)
}

type Store struct {
	tokens  token.Repository
	admins  AdminFinder
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	audit   audit.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithStorageTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithAuditSink(a audit.Sink) Option {
	return func(s *Store) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func NewStore(tokens token.Repository, admins AdminFinder, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		tokens:  tokens,
		admins:  admins,
		ttl:     DefaultTTL,
		timeout: DefaultStorageTimeout,
		now:     time.Now,
		audit:   audit.Nop,
		logger:  logger.Named("refresh_tokens"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) TTL() time.Duration { return s.ttl }

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) store(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return xerrors.Storage(fn(ctx))
}

// Issued pairs the raw value handed to the client with its stored record.
type Issued struct {
	Value string
	Token *token.RefreshToken
}

func (s *Store) mint(adminID string, meta admin.DeviceMeta, now time.Time) (Issued, error) {
	value, err := credential.RandomToken(valueBytes)
	if err != nil {
		return Issued{}, err
	}
	used := now
	return Issued{
		Value: value,
		Token: &token.RefreshToken{
			ID:         "rt_" + ulid.Make().String(),
			AdminID:    adminID,
			TokenHash:  credential.Digest(value),
			IssuedAt:   now,
			ExpiresAt:  now.Add(s.ttl),
			IP:         meta.IP,
			UserAgent:  meta.UserAgent,
			DeviceInfo: meta.Info,
			LastUsedAt: &used,
		},
	}, nil
}

// Issue creates a new token for a. Admins may hold any number of live tokens.
func (s *Store) Issue(ctx context.Context, a *admin.Admin, meta admin.DeviceMeta) (Issued, error) {
	issued, err := s.mint(a.ID, meta, s.clock())
	if err != nil {
		return Issued{}, err
	}
	if err := s.store(ctx, func(ctx context.Context) error { return s.tokens.Create(ctx, issued.Token) }); err != nil {
		return Issued{}, xerrors.Wrap(err, "failed to store refresh token")
	}

	s.metrics.Token(ResultIssued)
	s.audit.Emit(ctx, audit.Event{Name: audit.TokenIssued, AdminID: a.ID, IP: meta.IP, UserAgent: meta.UserAgent,
		At: issued.Token.IssuedAt, Fields: map[string]any{"token_id": issued.Token.ID}})
	return issued, nil
}

// Validate resolves a token value to its owner. It fails with ErrTokenInvalid
// for unknown or revoked tokens, ErrTokenExpired past expiry and
// ErrTokenStale when the owner changed password after issue.
func (s *Store) Validate(ctx context.Context, value string) (*admin.Admin, *token.RefreshToken, error) {
	now := s.clock()
	var (
		t *token.RefreshToken
		a *admin.Admin
	)
	err := s.store(ctx, func(ctx context.Context) (err error) {
		t, a, err = s.lookup(ctx, value)
		return err
	})
	if err == nil {
		err = check(t, a, now)
	}
	if err != nil {
		return nil, nil, s.denied(ctx, t, err)
	}
	return a, t, nil
}

// Rotate revokes the presented token and issues its replacement as one unit.
// A token that fails validation yields no replacement.
func (s *Store) Rotate(ctx context.Context, value string, meta admin.DeviceMeta) (Issued, *admin.Admin, error) {
	now := s.clock()
	var (
		old *token.RefreshToken
		a   *admin.Admin
	)
	err := s.store(ctx, func(ctx context.Context) (err error) {
		old, a, err = s.lookup(ctx, value)
		return err
	})
	if err != nil {
		return Issued{}, nil, s.denied(ctx, old, err)
	}

	next, err := s.mint(a.ID, meta, now)
	if err != nil {
		return Issued{}, nil, err
	}
	guard := func(current *token.RefreshToken) error { return check(current, a, now) }
	err = s.store(ctx, func(ctx context.Context) error {
		return s.tokens.Rotate(ctx, old.TokenHash, guard, next.Token, now)
	})
	if errors.Is(err, xerrors.ErrNotFound) {
		err = xerrors.ErrTokenInvalid
	}
	if err != nil {
		return Issued{}, nil, s.denied(ctx, old, err)
	}

	s.metrics.Token(ResultRotated)
	s.audit.Emit(ctx, audit.Event{Name: audit.TokenRotated, AdminID: a.ID, IP: meta.IP, UserAgent: meta.UserAgent, At: now,
		Fields: map[string]any{"old_token_id": old.ID, "token_id": next.Token.ID}})
	return next, a, nil
}

func (s *Store) lookup(ctx context.Context, value string) (*token.RefreshToken, *admin.Admin, error) {
	if value == "" {
		return nil, nil, xerrors.ErrTokenInvalid
	}
	t, err := s.tokens.FindByHash(ctx, credential.Digest(value))
	if errors.Is(err, xerrors.ErrNotFound) {
		return nil, nil, xerrors.ErrTokenInvalid
	}
	if err != nil {
		return nil, nil, err
	}
	a, err := s.admins.FindByID(ctx, t.AdminID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return t, nil, xerrors.ErrTokenInvalid
	}
	if err != nil {
		return t, nil, err
	}
	return t, a, nil
}

// check classifies t for owner a at now.
func check(t *token.RefreshToken, a *admin.Admin, now time.Time) error {
	switch {
	case t.IsRevoked || t.AdminID != a.ID:
		return xerrors.ErrTokenInvalid
	case t.Expired(now):
		return xerrors.ErrTokenExpired
	case t.Stale(a.Security.PasswordChangedAt):
		return xerrors.ErrTokenStale
	}
	return nil
}

// denied records a refused token. Storage failures pass through untouched.
func (s *Store) denied(ctx context.Context, t *token.RefreshToken, err error) error {
	var name, result string
	switch {
	case errors.Is(err, xerrors.ErrTokenInvalid):
		name, result = audit.TokenInvalid, ResultInvalid
	case errors.Is(err, xerrors.ErrTokenExpired):
		name, result = audit.TokenExpired, ResultExpired
	case errors.Is(err, xerrors.ErrTokenStale):
		name, result = audit.TokenStale, ResultStale
	default:
		s.audit.Emit(ctx, audit.Event{Name: audit.ServerError("refresh token"), Fields: map[string]any{"error": err.Error()}})
		return err
	}

	ev := audit.Event{Name: name, At: s.clock()}
	if t != nil {
		ev.AdminID = t.AdminID
		ev.Fields = map[string]any{"token_id": t.ID}
	}
	s.metrics.Token(result)
	s.audit.Emit(ctx, ev)
	return err
}

// Revoke logs out a single session. Unknown or already revoked values are
// not an error.
func (s *Store) Revoke(ctx context.Context, value, actor string) error {
	if value == "" {
		return nil
	}
	var revoked bool
	err := s.store(ctx, func(ctx context.Context) (err error) {
		revoked, err = s.tokens.Revoke(ctx, credential.Digest(value), actor, s.clock())
		return err
	})
	if err != nil {
		return xerrors.Wrap(err, "failed to revoke refresh token")
	}
	if revoked {
		s.metrics.Token(ResultRevoked)
	}
	return nil
}

// RevokeAll revokes every live token of adminID.
func (s *Store) RevokeAll(ctx context.Context, adminID, actor string) (int64, error) {
	now := s.clock()
	var n int64
	err := s.store(ctx, func(ctx context.Context) (err error) {
		n, err = s.tokens.RevokeAllForAdmin(ctx, adminID, actor, now)
		return err
	})
	if err != nil {
		return 0, xerrors.Wrap(err, "failed to revoke refresh tokens")
	}
	s.metrics.Tokens(ResultRevoked, n)
	s.audit.Emit(ctx, audit.Event{Name: audit.TokensRevoked, AdminID: adminID, At: now,
		Fields: map[string]any{"count": n, "actor": actor}})
	return n, nil
}

func (s *Store) ListActive(ctx context.Context, adminID string) ([]*token.RefreshToken, error) {
	var out []*token.RefreshToken
	err := s.store(ctx, func(ctx context.Context) (err error) {
		out, err = s.tokens.ListActiveForAdmin(ctx, adminID, s.clock())
		return err
	})
	return out, err
}

// PurgeExpired deletes tokens whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := s.store(ctx, func(ctx context.Context) (err error) {
		n, err = s.tokens.DeleteExpired(ctx, s.clock())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.metrics.Purged(n)
	return n, nil
}

// RunJanitor purges expired tokens every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("refresh token janitor started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh token janitor stopped")
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("failed to purge expired refresh tokens", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
