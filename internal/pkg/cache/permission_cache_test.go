package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*PermissionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewPermissionCache(client, time.Minute), mr
}

func TestRoleKeyIsGenerationScoped(t *testing.T) {
	c := NewPermissionCache(nil, 0)
	require.Equal(t, 5*time.Minute, c.ttl)
	require.Equal(t, "iam:role_perms:0:role_1", c.roleKey(0, "role_1"))
	require.NotEqual(t, c.roleKey(0, "role_1"), c.roleKey(1, "role_1"))
}

func TestSetThenGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.Zero(t, gen)

	_, ok, err := c.Get(ctx, gen, "role_1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, gen, "role_1", []string{"ROLES:READ"}))
	keys, ok, err := c.Get(ctx, gen, "role_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"ROLES:READ"}, keys)

	require.NoError(t, c.Set(ctx, gen, "role_empty", nil))
	keys, ok, err = c.Get(ctx, gen, "role_empty")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, keys)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, gen, "role_1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInvalidateAllRetiresEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 0, "role_1", []string{"ROLES:READ"}))
	require.NoError(t, c.InvalidateAll(ctx))

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), gen)

	_, ok, err := c.Get(ctx, gen, "role_1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetAfterInvalidateStaysRetired(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	// a resolver pins the generation and misses
	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	_, ok, err := c.Get(ctx, gen, "role_1")
	require.NoError(t, err)
	require.False(t, ok)

	// a write commits and invalidates before the resolver stores its result
	require.NoError(t, c.InvalidateAll(ctx))
	require.NoError(t, c.Set(ctx, gen, "role_1", []string{"ROLES:DELETE"}))

	current, err := c.Generation(ctx)
	require.NoError(t, err)
	_, ok, err = c.Get(ctx, current, "role_1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnreachableRedisReportsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewPermissionCache(client, time.Minute)
	ctx := context.Background()

	_, err := c.Generation(ctx)
	require.Error(t, err)
	_, ok, err := c.Get(ctx, 0, "role_1")
	require.Error(t, err)
	require.False(t, ok)
	require.Error(t, c.Set(ctx, 0, "role_1", []string{"ROLES:READ"}))
	require.Error(t, c.InvalidateAll(ctx))
}
