package statscache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/internal/platform/metrics"
	"github.com/example/anitrack/internal/statskeys"
)

type progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)

	require.NoError(t, c.Set(ctx, "u1:anime:a1:progress", progress{3, 12}))

	var got progress
	ok, err := c.Get(ctx, "u1:anime:a1:progress", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, progress{3, 12}, got)

	ok, err = c.Get(ctx, "missing", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2, time.Minute)

	require.NoError(t, c.Set(ctx, "a", 1))
	require.NoError(t, c.Set(ctx, "b", 2))

	var v int
	ok, _ := c.Get(ctx, "a", &v)
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", 3))
	require.Equal(t, 2, c.Len())

	ok, _ = c.Get(ctx, "b", &v)
	require.False(t, ok, "b was least recently used")
	ok, _ = c.Get(ctx, "a", &v)
	require.True(t, ok)
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v"))
	now = now.Add(59 * time.Second)
	var s string
	ok, _ := c.Get(ctx, "k", &s)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	ok, _ = c.Get(ctx, "k", &s)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestMemory_InvalidateAndPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)
	for _, k := range append(statskeys.For("u1", "anime", "a1"), statskeys.Progress("u2", "anime", "a1")) {
		require.NoError(t, c.Set(ctx, k, 1))
	}

	require.NoError(t, c.Invalidate(ctx, statskeys.Progress("u1", "anime", "a1")))
	require.Equal(t, 3, c.Len())

	require.NoError(t, c.InvalidatePrefix(ctx, statskeys.UserPrefix("u1")))
	require.Equal(t, 1, c.Len())

	var v int
	ok, _ := c.Get(ctx, statskeys.Progress("u2", "anime", "a1"), &v)
	require.True(t, ok, "other users keep their entries")
}

func TestApply_Event(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)
	require.NoError(t, c.Set(ctx, "u1:anime:a1:progress", 1))
	require.NoError(t, c.Set(ctx, "u1:list", 1))
	require.NoError(t, c.Set(ctx, "u9:list", 1))

	ev := events.Event{Properties: map[string]any{
		"keys":   []any{"u1:anime:a1:progress"},
		"prefix": "u1:",
	}}
	require.NoError(t, Apply(ctx, c, ev))
	require.Equal(t, 1, c.Len())
}

func TestMemory_SetIfCurrentSkipsAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, time.Minute)
	key := statskeys.Progress("u1", "anime", "a1")

	gen := c.Generation(key)
	require.NoError(t, c.Invalidate(ctx, key))
	require.Greater(t, c.Generation(key), gen)

	stored, err := c.SetIfCurrent(ctx, key, progress{1, 28}, gen)
	require.NoError(t, err)
	require.False(t, stored)
	var got progress
	ok, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err = c.SetIfCurrent(ctx, key, progress{2, 28}, c.Generation(key))
	require.NoError(t, err)
	require.True(t, stored)
	ok, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, progress{2, 28}, got)

	gen = c.Generation(key)
	require.NoError(t, c.InvalidatePrefix(ctx, statskeys.UserPrefix("u1")))
	stored, err = c.SetIfCurrent(ctx, key, progress{1, 28}, gen)
	require.NoError(t, err)
	require.False(t, stored)
}

func TestWithMetrics_ForwardsGenerations(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(10, time.Minute)
	c := WithMetrics(mem, "memory", metrics.New("statscache-test"))

	gen := c.Generation("k")
	require.NoError(t, c.Invalidate(ctx, "k"))
	require.Equal(t, mem.Generation("k"), c.Generation("k"))
	stored, err := c.SetIfCurrent(ctx, "k", 1, gen)
	require.NoError(t, err)
	require.False(t, stored)
}
