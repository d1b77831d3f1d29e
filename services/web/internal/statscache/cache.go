// Package statscache caches per-user completion stats (progress, engagement,
// and the completions list) with explicit invalidation.
package statscache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/metrics"
	"github.com/example/anitrack/internal/platform/redisconn"
)

// Cache stores JSON-encodable values by key. Implementations must be safe
// for concurrent use.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	Invalidate(ctx context.Context, keys ...string) error
	InvalidatePrefix(ctx context.Context, prefix string) error
	// Generation changes whenever key is invalidated.
	Generation(key string) uint64
	// SetIfCurrent stores v only if key's generation is still gen.
	SetIfCurrent(ctx context.Context, key string, v any, gen uint64) (bool, error)
}

// NewCache returns a Redis cache when redisURL is set and reachable, else a
// bounded in-memory LRU. The returned name is the backend label for metrics.
func NewCache(ctx context.Context, redisURL string, size int, ttl time.Duration, log *zap.Logger) (Cache, string, func()) {
	if strings.TrimSpace(redisURL) != "" {
		client, err := redisconn.Open(ctx, redisURL)
		if err == nil {
			log.Info("stats cache: redis")
			return NewRedis(client, ttl), "redis", func() { _ = client.Close() }
		}
		log.Warn("redis unavailable, falling back to in-memory stats cache", zap.Error(err))
	}
	log.Info("stats cache: memory", zap.Int("size", size), zap.Duration("ttl", ttl))
	return NewMemory(size, ttl), "memory", func() {}
}

type instrumented struct {
	Cache
	backend string
	m       *metrics.Metrics
}

// WithMetrics counts hits and misses of c under the given backend label.
func WithMetrics(c Cache, backend string, m *metrics.Metrics) Cache {
	if m == nil {
		return c
	}
	return instrumented{Cache: c, backend: backend, m: m}
}

func (c instrumented) Get(ctx context.Context, key string, dst any) (bool, error) {
	ok, err := c.Cache.Get(ctx, key, dst)
	if err == nil {
		if ok {
			c.m.CacheHit(c.backend)
		} else {
			c.m.CacheMiss(c.backend)
		}
	}
	return ok, err
}
