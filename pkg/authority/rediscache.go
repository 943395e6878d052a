package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a Cache backed by Redis. Expiry is delegated to Redis
// TTLs. Entries are written by the local process only, so under multiple
// instances a write on one instance can leave another instance's view
// stale for up to the TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and returns a cache with the given
// TTL.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// NewRedisCacheWithClient wraps an existing client, mainly for tests.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Close closes the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying Redis client, mainly for health checks.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) key(principal string) string {
	return "authority:assignment:" + principal
}

// Get returns the cached assignment for a principal. Redis errors and
// corrupt payloads are reported as misses; the cache is never a source
// of truth.
func (c *RedisCache) Get(ctx context.Context, principal string) (*Assignment, bool) {
	data, err := c.client.Get(ctx, c.key(principal)).Result()
	if err != nil {
		return nil, false
	}

	var a Assignment
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		// Corrupt entry; drop it so the next resolve repopulates.
		c.client.Del(ctx, c.key(principal))
		return nil, false
	}
	return &a, true
}

// Set stores the assignment with the cache TTL. Failures are ignored.
func (c *RedisCache) Set(ctx context.Context, principal string, assignment Assignment) {
	if c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(assignment)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(principal), data, c.ttl)
}

// Invalidate removes the entry unconditionally.
func (c *RedisCache) Invalidate(ctx context.Context, principal string) {
	c.client.Del(ctx, c.key(principal))
}
