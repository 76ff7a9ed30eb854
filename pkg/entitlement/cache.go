package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wodworks/coachkit/pkg/ledger"
	"github.com/wodworks/coachkit/pkg/plans"
)

// UsageCache caches current-period usage counts for the advisory check. Keys
// embed the period start, so entries self-partition at month boundaries.
type UsageCache interface {
	Get(ctx context.Context, key string) (int64, bool)
	Set(ctx context.Context, key string, used int64) error
}

// NoOpCache disables caching; every check reads the ledger directly.
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, key string) (int64, bool) { return 0, false }
func (NoOpCache) Set(ctx context.Context, key string, used int64) error {
	return nil
}

// redisCache keeps usage counts in Redis with a short TTL. The TTL bounds
// staleness instead of explicit invalidation: usage records are written
// asynchronously anyway, so the ledger read itself is already approximate.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache returns a UsageCache over the given client. ttl defaults to
// 30 seconds when zero.
func NewRedisCache(client *redis.Client, ttl time.Duration) UsageCache {
	if client == nil {
		panic("entitlement: redis client is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) Get(ctx context.Context, key string) (int64, bool) {
	used, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		// Misses and transport errors are the same to the caller: re-read.
		return 0, false
	}
	return used, true
}

func (c *redisCache) Set(ctx context.Context, key string, used int64) error {
	return c.client.Set(ctx, key, used, c.ttl).Err()
}

func usageCacheKey(userID uuid.UUID, category plans.Category, p ledger.Period) string {
	return fmt.Sprintf("coachkit:usage:%s:%s:%s", userID, category, p.Start.Format("2006-01"))
}
