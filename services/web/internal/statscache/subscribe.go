package statscache

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/events"
)

// Apply evicts the keys and prefix carried by a cache.stats.invalidate event.
func Apply(ctx context.Context, c Cache, ev events.Event) error {
	if keys := ev.Strings("keys"); len(keys) > 0 {
		if err := c.Invalidate(ctx, keys...); err != nil {
			return err
		}
	}
	if prefix := ev.String("prefix"); prefix != "" {
		return c.InvalidatePrefix(ctx, prefix)
	}
	return nil
}

// Subscribe keeps c in step with invalidations broadcast by other instances.
func Subscribe(nc *nats.Conn, c Cache, log *zap.Logger) (*nats.Subscription, error) {
	return nc.Subscribe(events.SubjectStatsInvalidate, func(m *nats.Msg) {
		ev, err := events.Decode(m.Data)
		if err != nil {
			log.Warn("stats cache: bad invalidation", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := Apply(ctx, c, ev); err != nil {
			log.Warn("stats cache: invalidation failed", zap.Error(err))
		}
	})
}
