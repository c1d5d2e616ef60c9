package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("edgewriter/cache")

// RedisCache stores entries as JSON strings with a TTL
type RedisCache struct {
	rdb       *redis.Client
	prefix    string
	duration  time.Duration
	hitCount  atomic.Int64
	missCount atomic.Int64
}

// NewRedisCache connects to addr and verifies the connection
func NewRedisCache(ctx context.Context, addr, prefix string, duration time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewRedisCacheWithClient(rdb, prefix, duration), nil
}

// NewRedisCacheWithClient wraps an existing client
func NewRedisCacheWithClient(rdb *redis.Client, prefix string, duration time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix, duration: duration}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Get retrieves an entry from redis
func (c *RedisCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	ctx, span := tracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			c.missCount.Add(1)
			return nil, ErrCacheMiss
		}
		span.RecordError(err)
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling cache entry: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	entry.AccessedAt = time.Now()
	entry.AccessCount++
	c.hitCount.Add(1)
	return &entry, nil
}

// Set stores an entry with the cache duration as TTL
func (c *RedisCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	ctx, span := tracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", c.duration.Milliseconds()),
		))
	defer span.End()

	now := time.Now()
	stored := *entry
	stored.Key = key
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(c.duration)
	stored.AccessedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return c.rdb.Set(ctx, c.key(key), data, c.duration).Err()
}

// Delete removes an entry
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// Exists checks if an entry exists
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("checking cache entry: %w", err)
	}
	return n > 0, nil
}

// Clear deletes every key under the prefix
func (c *RedisCache) Clear(ctx context.Context) error {
	keys, err := c.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("deleting cache entries: %w", err)
		}
	}
	c.hitCount.Store(0)
	c.missCount.Store(0)
	return nil
}

// GetStats counts keys under the prefix
func (c *RedisCache) GetStats(ctx context.Context) (*Stats, error) {
	keys, err := c.scan(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		TotalEntries: len(keys),
		HitCount:     c.hitCount.Load(),
		MissCount:    c.missCount.Load(),
	}
	if total := stats.HitCount + stats.MissCount; total > 0 {
		stats.HitRate = float64(stats.HitCount) / float64(total)
	}
	return stats, nil
}

func (c *RedisCache) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning cache keys: %w", err)
	}
	return keys, nil
}

// Close closes the redis connection
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
