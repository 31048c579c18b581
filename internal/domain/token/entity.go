// Package token models refresh tokens.
package token

import (
	"context"
	"time"
)

// RefreshToken stores only the SHA-256 of the opaque value handed to clients.
type RefreshToken struct {
	ID         string         `json:"token_id"`
	AdminID    string         `json:"admin_id"`
	TokenHash  string         `json:"-"`
	IssuedAt   time.Time      `json:"issued_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	DeviceInfo map[string]any `json:"device_info,omitempty"`
	IsRevoked  bool           `json:"is_revoked"`
	RevokedAt  *time.Time     `json:"revoked_at,omitempty"`
	RevokedBy  string         `json:"revoked_by,omitempty"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Stale reports whether the token predates the owner's last password change.
func (t *RefreshToken) Stale(passwordChangedAt *time.Time) bool {
	return passwordChangedAt != nil && t.IssuedAt.Before(*passwordChangedAt)
}

func (t *RefreshToken) Clone() *RefreshToken {
	if t == nil {
		return nil
	}
	c := *t
	if t.DeviceInfo != nil {
		c.DeviceInfo = make(map[string]any, len(t.DeviceInfo))
		for k, v := range t.DeviceInfo {
			c.DeviceInfo[k] = v
		}
	}
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		c.RevokedAt = &v
	}
	if t.LastUsedAt != nil {
		v := *t.LastUsedAt
		c.LastUsedAt = &v
	}
	return &c
}

// Guard inspects the locked old token inside a rotation.
type Guard func(old *RefreshToken) error

type Repository interface {
	Create(ctx context.Context, t *RefreshToken) error
	FindByHash(ctx context.Context, hash string) (*RefreshToken, error)
	// Rotate locks the token with oldHash, runs guard, revokes it and inserts
	// next as one unit. Nothing is written when guard fails.
	Rotate(ctx context.Context, oldHash string, guard Guard, next *RefreshToken, now time.Time) error
	Revoke(ctx context.Context, hash, revokedBy string, now time.Time) (bool, error)
	RevokeAllForAdmin(ctx context.Context, adminID, revokedBy string, now time.Time) (int64, error)
	ListActiveForAdmin(ctx context.Context, adminID string, now time.Time) ([]*RefreshToken, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
