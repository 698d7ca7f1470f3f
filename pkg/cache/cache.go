// Package cache provides a JSON value cache with per-entry TTLs, backed by
// Redis when one is configured and by process memory otherwise
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores JSON-encodable values with a time to live
type Cache interface {
	// Get decodes the cached value for key into dest. It reports false on a
	// miss or when the entry has expired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set stores value under key for ttl
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Invalidate removes key
	Invalidate(ctx context.Context, key string) error
}

type entry struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
	TTL       time.Duration   `json:"ttl"`
}

func (e entry) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.UpdatedAt) > e.TTL
}

func newEntry(value any, ttl time.Duration, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache value: %w", err)
	}

	return json.Marshal(entry{Value: raw, UpdatedAt: now, TTL: ttl})
}

// RedisCache keeps entries in Redis under a key prefix
type RedisCache struct {
	redisClient *redis.Client
	keyPrefix   string
	now         func() time.Time
}

// NewRedisCache creates a Redis-backed cache. Keys are stored as
// <prefix>:cache:<key>.
func NewRedisCache(redisClient *redis.Client, prefix string) *RedisCache {
	return &RedisCache{
		redisClient: redisClient,
		keyPrefix:   prefix + ":cache:",
		now:         time.Now,
	}
}

// Get implements Cache
func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	fullKey := c.keyPrefix + key

	data, err := c.redisClient.Get(ctx, fullKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read cache key %s: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}

	if e.expired(c.now()) {
		_ = c.redisClient.Del(ctx, fullKey)
		return false, nil
	}

	if err := json.Unmarshal(e.Value, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache value %s: %w", key, err)
	}

	return true, nil
}

// Set implements Cache
func (c *RedisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := newEntry(value, ttl, c.now())
	if err != nil {
		return err
	}

	return c.redisClient.Set(ctx, c.keyPrefix+key, data, ttl).Err()
}

// Invalidate implements Cache
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.redisClient.Del(ctx, c.keyPrefix+key).Err()
}

// MemoryCache keeps entries in process memory
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string][]byte),
		now:     time.Now,
	}
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	data, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		return false, nil
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}

	if e.expired(c.now()) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()

		return false, nil
	}

	if err := json.Unmarshal(e.Value, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache value %s: %w", key, err)
	}

	return true, nil
}

// Set implements Cache
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	data, err := newEntry(value, ttl, c.now())
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = data

	return nil
}

// Invalidate implements Cache
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)

	return nil
}

// Verify interface compliance at compile time
var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
