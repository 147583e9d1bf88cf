// internal/adapter/cache/precheck_cache.go

package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"geowhisper/internal/domain/chat"
)

// PreCheckCache stores pre-check verdicts in Redis keyed by content hash.
// Cache failures are treated as misses.
type PreCheckCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPreCheckCache creates a cache with the given entry TTL.
func NewPreCheckCache(client *redis.Client, ttl time.Duration) *PreCheckCache {
	return &PreCheckCache{
		client: client,
		ttl:    ttl,
	}
}

// Get looks up a cached verdict for the content key.
func (c *PreCheckCache) Get(ctx context.Context, key string) (*chat.PreCheckResult, bool) {
	data, err := c.client.Get(ctx, "chat:precheck:"+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("Pre-check cache read failed: %v", err)
		}
		return nil, false
	}

	var result chat.PreCheckResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false
	}
	return &result, true
}

// Set stores a verdict for the content key.
func (c *PreCheckCache) Set(ctx context.Context, key string, result chat.PreCheckResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, "chat:precheck:"+key, data, c.ttl).Err(); err != nil {
		log.Printf("Pre-check cache write failed: %v", err)
	}
}
