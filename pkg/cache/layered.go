package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: Memory, L2: Redis).
type LayeredCache struct {
	memCache   *MemoryCache
	redisCache *RedisCache
}

// NewLayeredCache creates a layered cache with memory and Redis.
func NewLayeredCache(redisCache *RedisCache, opts ...MemoryOption) *LayeredCache {
	return &LayeredCache{
		memCache:   NewMemoryCache(opts...),
		redisCache: redisCache,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// Write-through: Redis first, then memory
	if err := lc.redisCache.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.memCache.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw string
	if err := lc.redisCache.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, raw, 0)
	return decode([]byte(raw), dest)
}

func (lc *LayeredCache) MSet(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	if err := lc.redisCache.MSet(ctx, values, expiration); err != nil {
		return err
	}
	_ = lc.memCache.MSet(ctx, values, expiration)
	return nil
}

// MGet reads from L1 and falls back to Redis for the keys it misses.
func (lc *LayeredCache) MGet(ctx context.Context, keys ...string) (map[string]string, error) {
	results, _ := lc.memCache.MGet(ctx, keys...)
	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := results[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return results, nil
	}

	fromRedis, err := lc.redisCache.MGet(ctx, missing...)
	if err != nil {
		return nil, err
	}
	for k, v := range fromRedis {
		results[k] = v
		_ = lc.memCache.Set(ctx, k, v, 0)
	}
	return results, nil
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.redisCache.Close()
}
