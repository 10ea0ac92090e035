package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache backs the ephemeral cache with Redis, for fleets of orchestrator
// processes that want to share control-plane rate limits. Every key carries
// its own TTL so entries self-expire without an orchestrator-managed sweep.
type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Cache backed by an existing go-redis client. prefix
// namespaces keys so multiple orchestrators can share one Redis instance.
func NewRedis(client *redis.Client, prefix string) Cache {
	return &redisCache{client: client, prefix: prefix}
}

func (c *redisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}
