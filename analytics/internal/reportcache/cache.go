// Package reportcache is the read-model cache for analytics reports. A cache
// outage degrades to computing fresh on every request; it never fails a
// report that the owning services can still answer.
package reportcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"securities-sales-crm/shared/logx"
	"securities-sales-crm/shared/metricsx"
)

// Backend is the subset of the redis cache client the report cache needs.
// cachex.Client satisfies it; tests use an in-memory map.
type Backend interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Cache struct {
	Logger  logx.Logger
	Backend Backend
}

// GetOrCompute returns the cached report when present and unexpired,
// otherwise computes it, stores the result, and returns it. Backend errors on
// either side are logged and absorbed: the caller always gets a computed
// report unless compute itself fails.
func (c *Cache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (any, error)) (json.RawMessage, error) {
	var cached json.RawMessage
	found, err := c.Backend.GetJSON(ctx, key, &cached)
	if err != nil {
		c.Logger.Warn(ctx, "report_cache_read_failed", "cache read failed, computing fresh",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	if found {
		metricsx.IncCacheHit(key)
		return cached, nil
	}
	metricsx.IncCacheMiss(key)

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	if err := c.Backend.SetJSON(ctx, key, json.RawMessage(raw), ttl); err != nil {
		c.Logger.Warn(ctx, "report_cache_write_failed", "cache write failed, serving computed value",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return raw, nil
}

// Invalidate drops the key unconditionally. Deleting an absent key is a
// no-op, so invalidation is idempotent under event redelivery.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.Backend.Delete(ctx, key)
}
