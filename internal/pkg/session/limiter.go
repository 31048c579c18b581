package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is a fixed-window attempt counter shared by every replica.
type Limiter struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

func NewLimiter(client redis.UniversalClient, prefix string, max int64, window time.Duration) *Limiter {
	return &Limiter{client: client, prefix: prefix, max: max, window: window}
}

func (l *Limiter) key(subject string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.prefix, subject)
}

// Allow counts one attempt for subject. When the window is exhausted it
// returns false and the time left in the window.
func (l *Limiter) Allow(ctx context.Context, subject string) (bool, time.Duration, error) {
	key := l.key(subject)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment %s attempts: %w", l.prefix, err)
	}
	// Set expiration on first attempt
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set %s window: %w", l.prefix, err)
		}
	}
	if count <= l.max {
		return true, 0, nil
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// Reset clears the counter for subject.
func (l *Limiter) Reset(ctx context.Context, subject string) error {
	return l.client.Del(ctx, l.key(subject)).Err()
}
