// Package cache provides a small key/value cache abstraction with in-process and
// Redis backends. Callers own invalidation; entries also expire after their TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Store is a byte-level cache.
type Store interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Invalidate removes keys and bumps their generation. Missing keys are
	// not an error.
	Invalidate(ctx context.Context, keys ...string) error
	// Generation returns the number of times key has been invalidated.
	Generation(ctx context.Context, key string) (uint64, error)
	// SetIfGeneration stores value only while key's generation still equals
	// gen, and reports whether it wrote.
	SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, gen uint64) (bool, error)
}

// JSON is a typed view over a Store that encodes values as JSON.
type JSON[V any] struct {
	store   Store
	ttl     time.Duration
	metrics *Metrics
	name    string
}

// NewJSON creates a typed cache. name labels the metrics; metrics may be nil.
func NewJSON[V any](store Store, name string, ttl time.Duration, metrics *Metrics) *JSON[V] {
	return &JSON[V]{store: store, ttl: ttl, metrics: metrics, name: name}
}

// Get decodes the cached value. An undecodable entry is treated as a miss.
func (c *JSON[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.observe("error")
		return zero, false, err
	}
	if !ok {
		c.observe("miss")
		return zero, false, nil
	}
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		c.observe("miss")
		return zero, false, nil
	}
	c.observe("hit")
	return v, true, nil
}

// Set encodes and stores v with the cache's TTL.
func (c *JSON[V]) Set(ctx context.Context, key string, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.store.Set(ctx, key, raw, c.ttl)
}

// Invalidate removes keys from the underlying store.
func (c *JSON[V]) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.store.Invalidate(ctx, keys...)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// The result is not cached when key was invalidated while load ran, so a
// write that lands during the load is never masked by the older value.
// Store errors degrade to calling load; they are never returned.
func (c *JSON[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok, err := c.Get(ctx, key); err == nil && ok {
		return v, nil
	}
	gen, genErr := c.store.Generation(ctx, key)
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if genErr != nil {
		c.observe("store_error")
		slog.WarnContext(ctx, "cache generation unavailable, result not cached",
			slog.String("cache", c.name), slog.String("key", key), slog.String("error", genErr.Error()))
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.observe("store_error")
		slog.WarnContext(ctx, "failed to encode cache value",
			slog.String("cache", c.name), slog.String("key", key), slog.String("error", err.Error()))
		return v, nil
	}
	written, err := c.store.SetIfGeneration(ctx, key, raw, c.ttl, gen)
	switch {
	case err != nil:
		c.observe("store_error")
		slog.WarnContext(ctx, "failed to write cache entry",
			slog.String("cache", c.name), slog.String("key", key), slog.String("error", err.Error()))
	case !written:
		c.observe("stale")
	}
	return v, nil
}

func (c *JSON[V]) observe(result string) {
	if c.metrics != nil {
		c.metrics.IncRequests(c.name, result)
	}
}
