package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a Redis implementation of the VerdictCache interface.
// Expiry is delegated to key TTLs.
type RedisCache struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisCache creates a new Redis cache and verifies the connection
func NewRedisCache(ctx context.Context, client *redis.Client, prefix string, logger *zap.Logger) (*RedisCache, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Get retrieves a cached verdict
func (c *RedisCache) Get(ctx context.Context, key string) (*core.CachedVerdict, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	entry, err := decodeVerdict(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}
	return entry, nil
}

// Set stores a verdict until its expiry
func (c *RedisCache) Set(ctx context.Context, entry *core.CachedVerdict) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	payload, err := encodeVerdict(entry)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	if err := c.client.Set(ctx, c.key(entry.Key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Delete removes a cached verdict
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup is a no-op: Redis evicts expired keys itself
func (c *RedisCache) Cleanup(ctx context.Context) error {
	return nil
}

// Stop closes the Redis client
func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", zap.Error(err))
	}
}
