package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// scanBatch is the COUNT hint for SCAN and the max keys per DEL.
const scanBatch = 100

// RedisConfig holds connection parameters for a Redis cache.
type RedisConfig struct {
	Addrs    []string
	Password string
	DB       int
}

// RedisCache implements Backend via rueidis. Redis expires keys itself.
type RedisCache struct {
	client rueidis.Client
}

// NewRedisCache creates a Redis cache via rueidis.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client rueidis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Ping checks connectivity.
func (r *RedisCache) Ping(ctx context.Context) error {
	cmd := r.client.B().Ping().Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *RedisCache) Close() {
	r.client.Close()
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	cmd := r.client.B().Get().Key(key).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set stores value with millisecond expiry. Redis rejects a zero expiry, so
// shorter ttls are raised to one millisecond.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	cmd := r.client.B().Set().Key(key).Value(rueidis.BinaryString(value)).Px(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteByPattern scans with MATCH and deletes each page of keys.
func (r *RedisCache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	err := r.scan(ctx, pattern, func(keys []string) error {
		cmd := r.client.B().Del().Key(keys...).Build()
		n, err := r.client.Do(ctx, cmd).AsInt64()
		if err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		deleted += n
		return nil
	})
	return deleted, err
}

func (r *RedisCache) Stats(ctx context.Context, pattern string) (Stats, error) {
	stats := Stats{Backend: "redis"}
	err := r.scan(ctx, pattern, func(keys []string) error {
		stats.Entries += int64(len(keys))
		return nil
	})
	return stats, err
}

func (r *RedisCache) scan(ctx context.Context, pattern string, page func([]string) error) error {
	var cursor uint64
	for {
		cmd := r.client.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()
		res, err := r.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(res.Elements) > 0 {
			if err := page(res.Elements); err != nil {
				return err
			}
		}
		cursor = res.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
