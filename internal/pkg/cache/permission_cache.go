// internal/pkg/cache/permission_cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "iam:role_perms"
	generationKey = keyPrefix + ":gen"
)

// PermissionCache keeps the resolved permission keys of each role in Redis.
// Entries are namespaced by a generation counter, so InvalidateAll is one
// INCR instead of a keyspace scan.
type PermissionCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewPermissionCache(client redis.UniversalClient, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PermissionCache{client: client, ttl: ttl}
}

// Generation returns the current namespace. Callers read it before loading
// anything they intend to cache and hand it back to Get and Set, so an
// InvalidateAll that lands in between retires what they store.
func (c *PermissionCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

func (c *PermissionCache) roleKey(gen int64, roleID string) string {
	return fmt.Sprintf("%s:%d:%s", keyPrefix, gen, roleID)
}

// Get returns the keys cached for roleID under gen. A miss is (nil, false, nil).
func (c *PermissionCache) Get(ctx context.Context, gen int64, roleID string) ([]string, bool, error) {
	data, err := c.client.Get(ctx, c.roleKey(gen, roleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read role permissions: %w", err)
	}

	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal role permissions: %w", err)
	}
	return keys, true, nil
}

// Set stores keys under gen. Writing under a retired generation is harmless,
// nothing reads it again.
func (c *PermissionCache) Set(ctx context.Context, gen int64, roleID string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal role permissions: %w", err)
	}
	if err := c.client.Set(ctx, c.roleKey(gen, roleID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store role permissions: %w", err)
	}
	return nil
}

// InvalidateAll retires every cached role at once. Old entries expire on
// their own TTL.
func (c *PermissionCache) InvalidateAll(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
