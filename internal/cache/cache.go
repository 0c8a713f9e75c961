package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrCacheMiss is returned when a key is not found in cache
	ErrCacheMiss = errors.New("cache miss")
	// ErrCacheExpired is returned when a cached value has expired
	ErrCacheExpired = errors.New("cache expired")
)

// Backend is a key/value store with per-entry TTL and glob deletion.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteByPattern removes keys matching a glob where * matches any run of characters.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	Stats(ctx context.Context, pattern string) (Stats, error)
}

// Stats describes the entries matching a pattern.
type Stats struct {
	Backend string `json:"backend"`
	Entries int64  `json:"entries"`
	Expired int64  `json:"expired"`
}

// Cache puts a failure boundary around a Backend: read and write errors are
// logged and reported as a miss or a false, never surfaced to the caller.
type Cache struct {
	backend Backend
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) *Cache {
	return &Cache{backend: backend, logger: logger.With("component", "cache")}
}

// Get returns ErrCacheMiss for absent, expired and unreadable entries alike.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, ErrCacheMiss), errors.Is(err, ErrCacheExpired):
		return nil, ErrCacheMiss
	default:
		c.logger.WarnContext(ctx, "cache read failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, ErrCacheMiss
	}
}

// Set reports whether the value was stored.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// DeleteByPattern is an explicit operator action, so its errors are returned.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	n, err := c.backend.DeleteByPattern(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("delete %q: %w", pattern, err)
	}
	c.logger.InfoContext(ctx, "cache entries deleted",
		slog.String("pattern", pattern),
		slog.Int64("count", n),
	)
	return n, nil
}

func (c *Cache) Stats(ctx context.Context, pattern string) (Stats, error) {
	return c.backend.Stats(ctx, pattern)
}

// GetJSON decodes a cached JSON value into v. Undecodable entries count as a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.WarnContext(ctx, "cached value is not valid json",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ErrCacheMiss
	}
	return nil
}

// SetJSON encodes v and stores it.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.WarnContext(ctx, "cache value not serializable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return c.Set(ctx, key, raw, ttl)
}
