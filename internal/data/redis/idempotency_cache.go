// Package redis provides the Redis-backed idempotency cache used by the
// settlement service to short-circuit replayed intents. The ledger's unique
// (wallet_id, idempotency_key) index remains the source of truth; the cache
// only saves a database round trip on the hot path.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/marketplace-settlement/internal/config"
)

// IdempotencyCache maps intent idempotency keys to the serialized outcome of
// the first execution.
type IdempotencyCache struct {
	client *goredis.Client
	prefix string
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, logger *slog.Logger, cfg *config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Connected to Redis", "addr", cfg.Addr)
	return client, nil
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache
func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "settlement:idempotency:",
	}
}

// Get retrieves a cached intent result by idempotency key.
// Returns nil, nil if the key does not exist.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set stores an intent result in the idempotency cache with TTL
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := c.client.Set(ctx, c.prefix+key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
