package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/safetycheck/safetycheck/internal/models"
)

const redisKeyPrefix = "safetycheck:result:"

// RedisCache is the shared result cache backend for multi-instance
// deployments. TTL expiry is delegated to Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration

	counters
}

// NewRedisCache connects to Redis and verifies the connection before
// returning a usable cache.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Lookup fetches and decodes a cached result. A decode failure is treated as
// a miss and the corrupt entry is dropped.
func (c *RedisCache) Lookup(ctx context.Context, fingerprint string) (*models.SafetyAnalysisResult, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		return nil, false, nil
	}
	if err != nil {
		c.recordMiss()
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var result models.SafetyAnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.client.Del(ctx, redisKeyPrefix+fingerprint)
		c.recordMiss()
		return nil, false, nil
	}

	c.recordHit()
	return &result, true, nil
}

// Store serializes the result and writes it with the configured TTL.
func (c *RedisCache) Store(ctx context.Context, fingerprint string, result *models.SafetyAnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	if err := c.client.Set(ctx, redisKeyPrefix+fingerprint, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Clear removes every result entry under the cache's key prefix, leaving
// unrelated keys in the same database untouched.
func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
