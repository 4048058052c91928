// Package cache keeps BI tool table metadata in Redis between requests.
// Field metadata changes rarely but is fetched on every count, preview and
// export, so a short TTL saves most metadata round trips.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/pkg/logger"
)

const keyPrefix = "listbuilder:meta:"

// Connect opens a Redis client for cfg and pings it. It returns nil when
// Redis is disabled or unreachable; callers run without a cache then.
func Connect(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled || cfg.Addr == "" {
		logger.Info("Redis not configured, metadata cache disabled")
		return nil
	}

	var client *redis.Client
	if opts, err := redis.ParseURL(cfg.Addr); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis connection failed, metadata cache disabled", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}

	logger.Info("Redis connected", "addr", cfg.Addr)
	return client
}

// MetadataCache stores JSON-encoded metadata with a fixed TTL. A nil
// *MetadataCache or nil client is a cache that always misses.
type MetadataCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMetadataCache wraps client.
func NewMetadataCache(client *redis.Client, ttl time.Duration) *MetadataCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &MetadataCache{client: client, ttl: ttl}
}

// Get decodes the cached value for key into dst and reports a hit.
func (c *MetadataCache) Get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.client == nil {
		return false
	}
	b, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Metadata cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		logger.Warn("Metadata cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value under key. Failures are logged and ignored.
func (c *MetadataCache) Set(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Metadata cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, b, c.ttl).Err(); err != nil {
		logger.Warn("Metadata cache write failed", "key", key, "error", err)
	}
}

// Ping checks the Redis connection. A disabled cache is always healthy.
func (c *MetadataCache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}
