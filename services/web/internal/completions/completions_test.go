package completions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/anitrack/internal/statskeys"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/statscache"
	"github.com/example/anitrack/services/web/internal/store"
)

func TestPercent(t *testing.T) {
	require.Equal(t, 0, Percent(3, 0))
	require.Equal(t, 33, Percent(1, 3))
	require.Equal(t, 66, Percent(2, 3))
	require.Equal(t, 100, Percent(12, 12))
	require.Equal(t, 100, Percent(15, 12))
	require.Equal(t, 0, Percent(-1, 12))
}

func TestParseBucket(t *testing.T) {
	b, ok := ParseBucket("40-49")
	require.True(t, ok)
	require.Equal(t, 40, *b.MinPct)
	require.Equal(t, 49, *b.MaxPct)

	b, ok = ParseBucket("100")
	require.True(t, ok)
	require.Equal(t, 100, *b.MinPct)
	require.Equal(t, 100, *b.MaxPct)

	b, ok = ParseBucket("all")
	require.True(t, ok)
	require.Nil(t, b.MinPct)
	require.Nil(t, b.MaxPct)

	for _, bad := range []string{"garbage", "-5", "50-40", "0-101", "10-", "1-2-3"} {
		b, ok := ParseBucket(bad)
		require.False(t, ok, bad)
		require.Equal(t, Bucket{}, b, bad)
	}
}

func TestBucketOptionsRoundTrip(t *testing.T) {
	require.Len(t, BucketOptions, 12)
	for _, opt := range BucketOptions {
		b, ok := ParseBucket(opt)
		require.True(t, ok, opt)
		require.Equal(t, opt, b.String())
	}
}

func TestBucketContains(t *testing.T) {
	b, _ := ParseBucket("40-49")
	require.True(t, b.Contains(40))
	require.True(t, b.Contains(49))
	require.False(t, b.Contains(50))
	require.True(t, Bucket{}.Contains(0))
}

func TestCompare_TotalOrder(t *testing.T) {
	now := time.Now()
	items := []Item{
		{MediaID: "a", Kind: media.KindAnime, Title: "Alpha", Percent: 50, UpdatedAt: now},
		{MediaID: "b", Kind: media.KindAnime, Title: "alpha", Percent: 50, UpdatedAt: now},
		{MediaID: "c", Kind: media.KindManga, Title: "Beta", Percent: 10, UpdatedAt: now.Add(time.Minute)},
		{MediaID: "a", Kind: media.KindManga, Title: "Alpha", Percent: 50, UpdatedAt: now},
	}
	keys := []SortKey{SortPctDesc, SortPctAsc, SortTitleAsc, SortTitleDesc, SortRecent}
	for _, k := range keys {
		for i, a := range items {
			for j, b := range items {
				ab, ba := Compare(k, a, b), Compare(k, b, a)
				require.Equal(t, -ab, ba, "antisymmetry %s %d %d", k, i, j)
				if i != j {
					require.NotZero(t, ab, "distinct items must not tie under %s", k)
				}
			}
		}
	}
}

func TestCompare_PctInverse(t *testing.T) {
	hi := Item{MediaID: "x", Title: "Zed", Percent: 90}
	lo := Item{MediaID: "y", Title: "Abe", Percent: 10}
	require.Negative(t, Compare(SortPctDesc, hi, lo))
	require.Positive(t, Compare(SortPctAsc, hi, lo))

	// Equal percent falls back to the same title tiebreak in both directions.
	a := Item{MediaID: "1", Title: "Abe", Percent: 40}
	b := Item{MediaID: "2", Title: "Zed", Percent: 40}
	require.Negative(t, Compare(SortPctDesc, a, b))
	require.Negative(t, Compare(SortPctAsc, a, b))
}

func TestApply(t *testing.T) {
	items := []Item{
		{MediaID: "1", Kind: media.KindAnime, Title: "Frieren", Percent: 45},
		{MediaID: "2", Kind: media.KindAnime, Title: "Mushishi", Percent: 100},
		{MediaID: "3", Kind: media.KindManga, Title: "Frieren", Percent: 42},
		{MediaID: "4", Kind: media.KindAnime, Title: "Monster", Percent: 41},
	}
	b, _ := ParseBucket("40-49")

	got := Apply(items, Query{Bucket: b, Sort: SortTitleAsc})
	require.Len(t, got, 3)
	require.Equal(t, "1", got[0].MediaID)
	require.Equal(t, "3", got[1].MediaID)
	require.Equal(t, "4", got[2].MediaID)

	got = Apply(items, Query{Kind: media.KindAnime, Search: "fRIE"})
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].MediaID)

	require.Equal(t, "1", items[0].MediaID, "input must not be reordered")
}

func TestPage(t *testing.T) {
	items := make([]Item, 5)
	for i := range items {
		items[i].MediaID = string(rune('a' + i))
	}
	page, next, err := Page(items, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	page, next, err = Page(items, next, 2)
	require.NoError(t, err)
	require.Equal(t, "c", page[0].MediaID)

	page, next, err = Page(items, next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Empty(t, next)

	_, _, err = Page(items, "%%%", 2)
	require.ErrorIs(t, err, ErrBadCursor)
}

func TestSummary(t *testing.T) {
	items := []Item{{Percent: 0}, {Percent: 45}, {Percent: 100}}
	s := Summary(items)
	require.Equal(t, 3, s["all"])
	require.Equal(t, 1, s["0-9"])
	require.Equal(t, 1, s["40-49"])
	require.Equal(t, 1, s["100"])
}

// countingCompletions blocks every read on gate before querying, and the
// first read on hold after querying.
type countingCompletions struct {
	store.Completions
	calls atomic.Int32
	gate  chan struct{}
	hold  chan struct{}
}

func (c *countingCompletions) Progress(ctx context.Context, userID string, kind media.Kind, mediaID string) (store.Progress, error) {
	n := c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	p, err := c.Completions.Progress(ctx, userID, kind, mediaID)
	if c.hold != nil && n == 1 {
		<-c.hold
	}
	return p, err
}

func watchEpisode(t *testing.T, s store.Stores, u store.Profile, m store.MediaItem, number int) {
	t.Helper()
	ctx := context.Background()
	ep, err := s.Media.CreateUnit(ctx, store.Unit{Kind: media.KindAnime, MediaID: m.ID, Number: number})
	require.NoError(t, err)
	_, err = s.Marks.Set(ctx, store.Mark{UserID: u.ID, TargetType: media.TargetAnimeEpisode, TargetID: ep.ID, Mark: store.MarkWatched})
	require.NoError(t, err)
}

func seeded(t *testing.T) (store.Stores, store.Profile, store.MediaItem) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStores()
	u, err := s.Profiles.Create(ctx, store.Profile{Username: "alice"})
	require.NoError(t, err)
	m, err := s.Media.CreateMedia(ctx, store.MediaItem{Kind: media.KindAnime, Slug: "frieren", Title: "Frieren", Units: 28})
	require.NoError(t, err)
	ep, err := s.Media.CreateUnit(ctx, store.Unit{Kind: media.KindAnime, MediaID: m.ID, Number: 1})
	require.NoError(t, err)
	_, err = s.Marks.Set(ctx, store.Mark{UserID: u.ID, TargetType: media.TargetAnimeEpisode, TargetID: ep.ID, Mark: store.MarkWatched})
	require.NoError(t, err)
	return s, u, m
}

func TestService_ProgressCachedAndFresh(t *testing.T) {
	ctx := context.Background()
	s, u, m := seeded(t)
	counting := &countingCompletions{Completions: s.Completions}
	cache := statscache.NewMemory(16, time.Minute)
	svc := NewService(counting, s.Reviews, cache, nil)

	p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, store.Progress{Current: 1, Total: 28}, p)

	_, err = svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, counting.calls.Load())

	_, err = svc.Progress(ctx, u.ID, media.KindAnime, m.ID, true)
	require.NoError(t, err)
	require.EqualValues(t, 2, counting.calls.Load())
}

func TestService_ConcurrentMissesShareQuery(t *testing.T) {
	ctx := context.Background()
	s, u, m := seeded(t)
	counting := &countingCompletions{Completions: s.Completions, gate: make(chan struct{})}
	svc := NewService(counting, s.Reviews, statscache.NewMemory(16, time.Minute), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return counting.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(counting.gate)
	wg.Wait()
	require.EqualValues(t, 1, counting.calls.Load())
}

func TestService_CanceledCallerReturnsPromptly(t *testing.T) {
	s, u, m := seeded(t)
	counting := &countingCompletions{Completions: s.Completions, gate: make(chan struct{})}
	defer close(counting.gate)
	svc := NewService(counting, s.Reviews, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_ListAndEngagement(t *testing.T) {
	ctx := context.Background()
	s, u, m := seeded(t)
	_, err := s.Reviews.Create(ctx, store.Review{UserID: u.ID, Kind: media.KindAnime, MediaID: m.ID, Content: "great"})
	require.NoError(t, err)
	svc := NewService(s.Completions, s.Reviews, statscache.NewMemory(16, time.Minute), nil)

	e, err := svc.Engagement(ctx, u.ID, media.KindAnime, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, 1, e.Reviewed)

	all, _ := ParseBucket("all")
	items, err := svc.List(ctx, u.ID, Query{Bucket: all, Sort: SortPctDesc}, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 3, items[0].Percent)
	require.Equal(t, "frieren", items[0].Slug)
}

func TestService_InvalidateDuringFillIsNotCached(t *testing.T) {
	ctx := context.Background()
	s, u, m := seeded(t)
	counting := &countingCompletions{Completions: s.Completions, hold: make(chan struct{})}
	cache := statscache.NewMemory(16, time.Minute)
	svc := NewService(counting, s.Reviews, cache, nil)

	first := make(chan store.Progress, 1)
	go func() {
		p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
		assert.NoError(t, err)
		first <- p
	}()
	require.Eventually(t, func() bool { return counting.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	watchEpisode(t, s, u, m, 2)
	require.NoError(t, cache.Invalidate(ctx, statskeys.For(u.ID, string(media.KindAnime), m.ID)...))
	close(counting.hold)
	require.Equal(t, 1, (<-first).Current)

	p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, store.Progress{Current: 2, Total: 28}, p)
	require.EqualValues(t, 2, counting.calls.Load())

	p, err = svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, 2, p.Current)
	require.EqualValues(t, 2, counting.calls.Load())
}

func TestService_ReaderAfterInvalidateSkipsOlderFill(t *testing.T) {
	ctx := context.Background()
	s, u, m := seeded(t)
	counting := &countingCompletions{Completions: s.Completions, hold: make(chan struct{})}
	cache := statscache.NewMemory(16, time.Minute)
	svc := NewService(counting, s.Reviews, cache, nil)

	first := make(chan store.Progress, 1)
	go func() {
		p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
		assert.NoError(t, err)
		first <- p
	}()
	require.Eventually(t, func() bool { return counting.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	watchEpisode(t, s, u, m, 2)
	require.NoError(t, cache.Invalidate(ctx, statskeys.For(u.ID, string(media.KindAnime), m.ID)...))

	second := make(chan store.Progress, 1)
	go func() {
		p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
		assert.NoError(t, err)
		second <- p
	}()
	time.Sleep(20 * time.Millisecond)
	close(counting.hold)

	require.Equal(t, 1, (<-first).Current)
	require.Equal(t, 2, (<-second).Current)
}

func TestService_FreshDoesNotJoinInFlightFill(t *testing.T) {
	ctx := context.Background()
	s, u, m := seeded(t)
	counting := &countingCompletions{Completions: s.Completions, hold: make(chan struct{})}
	cache := statscache.NewMemory(16, time.Minute)
	svc := NewService(counting, s.Reviews, cache, nil)

	first := make(chan store.Progress, 1)
	go func() {
		p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
		assert.NoError(t, err)
		first <- p
	}()
	require.Eventually(t, func() bool { return counting.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	watchEpisode(t, s, u, m, 2)
	p, err := svc.Progress(ctx, u.ID, media.KindAnime, m.ID, true)
	require.NoError(t, err)
	require.Equal(t, 2, p.Current)

	close(counting.hold)
	require.Equal(t, 1, (<-first).Current)

	p, err = svc.Progress(ctx, u.ID, media.KindAnime, m.ID, false)
	require.NoError(t, err)
	require.Equal(t, 2, p.Current)
	require.EqualValues(t, 2, counting.calls.Load())
}
