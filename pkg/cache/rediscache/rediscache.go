package rediscache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asakaida/yakuwari/pkg/cache"
)

// Cache implements the cache.Cache interface backed by Redis.
// All keys are namespaced with a configurable prefix so that Clear
// only touches this cache's entries.
type Cache struct {
	client *redis.Client
	prefix string

	hits      uint64
	misses    uint64
	keysAdded uint64
}

// Config holds configuration for the Redis cache.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password is the optional Redis password.
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix is prepended to every key. Defaults to "yakuwari:".
	KeyPrefix string
}

// New creates a new Redis cache and verifies the connection.
func New(ctx context.Context, config *Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "yakuwari:"
	}

	return &Cache{client: client, prefix: prefix}, nil
}

// NewWithClient wraps an existing Redis client. Used in tests and by
// callers that manage their own client lifecycle.
func NewWithClient(client *redis.Client, keyPrefix string) *Cache {
	if keyPrefix == "" {
		keyPrefix = "yakuwari:"
	}
	return &Cache{client: client, prefix: keyPrefix}
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Get retrieves a value from Redis.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		// Treat connection errors the same as a miss: callers fall back
		// to rebuilding from the database.
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	atomic.AddUint64(&c.hits, 1)
	return value, true
}

// Set stores a value in Redis with TTL. A zero TTL means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}
	atomic.AddUint64(&c.keysAdded, 1)
	return nil
}

// Delete removes a value from Redis.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Clear removes all entries under this cache's prefix.
func (c *Cache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Metrics returns cache statistics.
func (c *Cache) Metrics() *cache.Metrics {
	return &cache.Metrics{
		Hits:      atomic.LoadUint64(&c.hits),
		Misses:    atomic.LoadUint64(&c.misses),
		KeysAdded: atomic.LoadUint64(&c.keysAdded),
	}
}
