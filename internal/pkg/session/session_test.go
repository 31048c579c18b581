package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func unreachable() redis.UniversalClient {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
}

func TestKeys(t *testing.T) {
	t.Parallel()

	d := NewDenylist(nil, 0)
	require.Equal(t, 15*time.Minute, d.ttl)
	require.Equal(t, "iam:denylist:jti:01J", d.tokenKey("01J"))
	require.Equal(t, "iam:denylist:admin:admin_1", d.adminKey("admin_1"))

	l := NewLimiter(nil, "forgot_password", 3, time.Hour)
	require.Equal(t, "ratelimit:forgot_password:a@example.com", l.key("a@example.com"))
}

func TestRedisOutageSurfacesAsError(t *testing.T) {
	t.Parallel()

	client := unreachable()
	defer client.Close()
	ctx := context.Background()

	_, err := NewDenylist(client, time.Minute).Revoked(ctx, "jti", "admin_1", time.Now())
	require.Error(t, err)

	allowed, _, err := NewLimiter(client, "login", 5, time.Minute).Allow(ctx, "1.2.3.4")
	require.Error(t, err)
	require.False(t, allowed)
}

func TestRevokeExpiredTokenIsNoop(t *testing.T) {
	t.Parallel()

	// No round trip happens, so the unreachable client is never dialled.
	d := NewDenylist(unreachable(), time.Minute)
	require.NoError(t, d.RevokeToken(context.Background(), "jti", time.Now().Add(-time.Second)))
}
