package memory

import (
	"context"
	"sort"
	"time"

	"backoffice-iam/internal/domain/token"
	xerrors "backoffice-iam/internal/pkg/errors"
)

type RefreshTokenRepository struct {
	s *Store
}

var _ token.Repository = (*RefreshTokenRepository)(nil)

// byHash returns the stored pointer. Callers hold s.mu.
func (r *RefreshTokenRepository) byHash(hash string) *token.RefreshToken {
	for _, t := range r.s.tokens {
		if t.TokenHash == hash {
			return t
		}
	}
	return nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, t *token.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.tokens[t.ID]; ok || r.byHash(t.TokenHash) != nil {
		return xerrors.ErrConflict
	}
	r.s.tokens[t.ID] = t.Clone()
	return nil
}

func (r *RefreshTokenRepository) FindByHash(ctx context.Context, hash string) (*token.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t := r.byHash(hash)
	if t == nil {
		return nil, xerrors.ErrNotFound
	}
	return t.Clone(), nil
}

func (r *RefreshTokenRepository) Rotate(ctx context.Context, oldHash string, guard token.Guard, next *token.RefreshToken, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	old := r.byHash(oldHash)
	if old == nil {
		return xerrors.ErrNotFound
	}
	if guard != nil {
		if err := guard(old.Clone()); err != nil {
			return err
		}
	}
	if _, ok := r.s.tokens[next.ID]; ok || r.byHash(next.TokenHash) != nil {
		return xerrors.ErrConflict
	}

	revokedAt := now
	old.IsRevoked = true
	old.RevokedAt = &revokedAt
	old.RevokedBy = old.AdminID
	old.LastUsedAt = &revokedAt
	r.s.tokens[next.ID] = next.Clone()
	return nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, hash, revokedBy string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t := r.byHash(hash)
	if t == nil || t.IsRevoked {
		return false, nil
	}
	revoke(t, revokedBy, now)
	return true, nil
}

func (r *RefreshTokenRepository) RevokeAllForAdmin(ctx context.Context, adminID, revokedBy string, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, t := range r.s.tokens {
		if t.AdminID == adminID && !t.IsRevoked {
			revoke(t, revokedBy, now)
			n++
		}
	}
	return n, nil
}

func revoke(t *token.RefreshToken, by string, now time.Time) {
	revokedAt := now
	t.IsRevoked = true
	t.RevokedAt = &revokedAt
	t.RevokedBy = by
}

func (r *RefreshTokenRepository) ListActiveForAdmin(ctx context.Context, adminID string, now time.Time) ([]*token.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*token.RefreshToken
	for _, t := range r.s.tokens {
		if t.AdminID == adminID && !t.IsRevoked && !t.Expired(now) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, t := range r.s.tokens {
		if !t.ExpiresAt.After(before) {
			delete(r.s.tokens, id)
			n++
		}
	}
	return n, nil
}
