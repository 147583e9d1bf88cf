// internal/adapter/ratelimit/redis.go

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter enforces a fixed-window message rate per user per zone.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit messages per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the user may send another message in the zone.
func (l *RedisLimiter) Allow(ctx context.Context, userID, zoneID string) (bool, error) {
	key := fmt.Sprintf("chat:rl:%s:%s", zoneID, userID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("error incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("error setting rate limit expiry: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}
