package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 24 * time.Hour

func redisKey(fp Fingerprint, kind Kind) string {
	return "scry:cache:" + string(kind) + ":" + string(fp)
}

// RedisCache is a ResultCache shared between processes. Entries expire after
// the configured TTL instead of being pruned by the reaper.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisClient creates a Redis client with conservative timeouts.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
	})
}

// NewRedisCache creates a RedisCache. A non-positive ttl uses 24h.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Lookup implements ResultCache.
func (c *RedisCache) Lookup(ctx context.Context, fp Fingerprint, kind Kind) (string, bool, error) {
	val, err := c.client.Get(ctx, redisKey(fp, kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s cache entry: %w", kind, err)
	}
	return val, true, nil
}

// Store implements ResultCache.
func (c *RedisCache) Store(ctx context.Context, fp Fingerprint, kind Kind, artifact string) error {
	if artifact == "" {
		return ErrEmptyArtifact
	}
	if err := c.client.Set(ctx, redisKey(fp, kind), artifact, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s cache entry: %w", kind, err)
	}
	return nil
}

var _ ResultCache = (*RedisCache)(nil)
