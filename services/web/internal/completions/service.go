package completions

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/example/anitrack/internal/statskeys"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/statscache"
	"github.com/example/anitrack/services/web/internal/store"
)

const fillTimeout = 10 * time.Second

// Service reads completion stats through the cache. Concurrent misses for
// the same key share one store query.
type Service struct {
	completions store.Completions
	reviews     store.Reviews
	cache       statscache.Cache
	log         *zap.Logger
	group       singleflight.Group
}

func NewService(completions store.Completions, reviews store.Reviews, cache statscache.Cache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{completions: completions, reviews: reviews, cache: cache, log: log}
}

// load returns the cached value for key or fills it from fetch. fresh evicts
// the entry and starts a new fill instead of joining one in flight. A fill
// overtaken by an invalidation is returned but not cached. Cache errors
// degrade to a direct read.
func load[T any](ctx context.Context, s *Service, key string, fresh bool, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.cache != nil {
		if fresh {
			if err := s.cache.Invalidate(ctx, key); err != nil {
				s.log.Warn("stats cache evict failed", zap.String("key", key), zap.Error(err))
			}
		} else {
			var v T
			ok, err := s.cache.Get(ctx, key, &v)
			if err != nil {
				s.log.Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
			} else if ok {
				return v, nil
			}
		}
	}
	var seen uint64
	if s.cache != nil {
		seen = s.cache.Generation(key)
	}
	if fresh {
		s.group.Forget(key)
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case res := <-s.group.DoChan(key, func() (any, error) { return s.fill(ctx, key, fetchAny(fetch)) }):
			if res.Err != nil {
				return zero, res.Err
			}
			f := res.Val.(filled)
			// Joined a fill that began before an invalidation this caller already saw.
			if f.gen < seen && attempt == 0 {
				s.group.Forget(key)
				continue
			}
			return f.val.(T), nil
		}
	}
}

type filled struct {
	val any
	gen uint64
}

func fetchAny[T any](fetch func(context.Context) (T, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) { return fetch(ctx) }
}

// fill fetches key and caches the value unless key was invalidated while the
// fetch ran.
func (s *Service) fill(ctx context.Context, key string, fetch func(context.Context) (any, error)) (filled, error) {
	var gen uint64
	if s.cache != nil {
		gen = s.cache.Generation(key)
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
	defer cancel()
	v, err := fetch(fctx)
	if err != nil {
		return filled{}, err
	}
	if s.cache != nil {
		stored, err := s.cache.SetIfCurrent(fctx, key, v, gen)
		switch {
		case err != nil:
			s.log.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
		case !stored:
			s.log.Debug("stats cache fill superseded", zap.String("key", key))
		}
	}
	return filled{val: v, gen: gen}, nil
}

func (s *Service) Progress(ctx context.Context, userID string, kind media.Kind, mediaID string, fresh bool) (store.Progress, error) {
	key := statskeys.Progress(userID, string(kind), mediaID)
	p, err := load(ctx, s, key, fresh, func(ctx context.Context) (store.Progress, error) {
		return s.completions.Progress(ctx, userID, kind, mediaID)
	})
	if err != nil {
		return store.Progress{}, fmt.Errorf("progress: %w", err)
	}
	return p, nil
}

func (s *Service) Engagement(ctx context.Context, userID string, kind media.Kind, mediaID string, fresh bool) (store.Engagement, error) {
	key := statskeys.Engagement(userID, string(kind), mediaID)
	e, err := load(ctx, s, key, fresh, func(ctx context.Context) (store.Engagement, error) {
		return s.reviews.Engagement(ctx, userID, kind, mediaID)
	})
	if err != nil {
		return store.Engagement{}, fmt.Errorf("engagement: %w", err)
	}
	return e, nil
}

// All returns every completion row of the user, unfiltered.
func (s *Service) All(ctx context.Context, userID string, fresh bool) ([]Item, error) {
	items, err := load(ctx, s, statskeys.List(userID), fresh, func(ctx context.Context) ([]Item, error) {
		rows, err := s.completions.List(ctx, userID)
		if err != nil {
			return nil, err
		}
		out := make([]Item, 0, len(rows))
		for _, r := range rows {
			out = append(out, FromRow(r))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("completions: %w", err)
	}
	return items, nil
}

// List applies q to the user's rows.
func (s *Service) List(ctx context.Context, userID string, q Query, fresh bool) ([]Item, error) {
	items, err := s.All(ctx, userID, fresh)
	if err != nil {
		return nil, err
	}
	return Apply(items, q), nil
}

// Summary counts the user's rows per bucket option for the filter UI.
func Summary(items []Item) map[string]int {
	out := make(map[string]int, len(BucketOptions))
	for _, opt := range BucketOptions {
		b, _ := ParseBucket(opt)
		n := 0
		for _, it := range items {
			if b.Contains(it.Percent) {
				n++
			}
		}
		out[opt] = n
	}
	return out
}
