// Package session keeps short-lived session state in Redis: revoked access
// tokens and attempt counters.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "iam:denylist"

// Denylist rejects access tokens before their natural expiry. Entries live
// only as long as an access token can.
type Denylist struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewDenylist builds a denylist whose entries outlive any access token issued
// with accessTTL.
func NewDenylist(client redis.UniversalClient, accessTTL time.Duration) *Denylist {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &Denylist{client: client, ttl: accessTTL}
}

func (d *Denylist) tokenKey(jti string) string {
	return fmt.Sprintf("%s:jti:%s", denylistPrefix, jti)
}

func (d *Denylist) adminKey(adminID string) string {
	return fmt.Sprintf("%s:admin:%s", denylistPrefix, adminID)
}

// RevokeToken denies one access token until expiresAt.
func (d *Denylist) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.tokenKey(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to deny token: %w", err)
	}
	return nil
}

// RevokeAdmin denies every access token of adminID issued before the second of at.
func (d *Denylist) RevokeAdmin(ctx context.Context, adminID string, at time.Time) error {
	if err := d.client.Set(ctx, d.adminKey(adminID), at.Unix(), d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to deny admin tokens: %w", err)
	}
	return nil
}

// Revoked reports whether the token jti, issued to adminID at issuedAt, has
// been denied.
func (d *Denylist) Revoked(ctx context.Context, jti, adminID string, issuedAt time.Time) (bool, error) {
	vals, err := d.client.MGet(ctx, d.tokenKey(jti), d.adminKey(adminID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read denylist: %w", err)
	}
	if vals[0] != nil {
		return true, nil
	}
	if vals[1] == nil {
		return false, nil
	}
	raw, ok := vals[1].(string)
	if !ok {
		return false, errors.New("unexpected denylist value")
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("corrupt denylist entry: %w", err)
	}
	// JWT iat has second precision. Tokens signed within the cutoff second
	// survive so a sign in right after the revocation stays usable.
	return issuedAt.Unix() < cutoff, nil
}
