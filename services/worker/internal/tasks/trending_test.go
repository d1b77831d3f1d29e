package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/trending"
)

type fakeSource struct {
	err   error
	since []time.Time
}

func (f *fakeSource) Trending(_ context.Context, kind string, since time.Time, limit int) ([]trending.Entry, error) {
	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	return []trending.Entry{{Kind: kind, MediaID: kind + "-1", Title: "Top", Loggers: limit}}, nil
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps map[string]trending.Snapshot
}

func (m *memSnapshots) Write(_ context.Context, s trending.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.Kind] = s
	return nil
}

func (m *memSnapshots) Read(_ context.Context, kind string) (trending.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[kind]
	return s, ok, nil
}

func newTask(t *testing.T, src trending.Source, snaps *memSnapshots) *TrendingTask {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := &trending.Refresher{
		Source: src, Snapshots: snaps, Window: 24 * time.Hour, Limit: 5,
		Log: zap.NewNop(), Now: func() time.Time { return now },
	}
	task, err := NewTrendingTask(r, "*/15 * * * *", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestRunOnce_WritesEveryKind(t *testing.T) {
	src := &fakeSource{}
	snaps := &memSnapshots{snaps: map[string]trending.Snapshot{}}
	task := newTask(t, src, snaps)

	if err := task.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, kind := range trending.Kinds {
		s, ok := snaps.snaps[kind]
		if !ok {
			t.Fatalf("no snapshot for %s", kind)
		}
		if len(s.Entries) != 1 || s.Entries[0].Loggers != 5 {
			t.Fatalf("%s entries = %+v", kind, s.Entries)
		}
		if s.Window != "24h0m0s" {
			t.Fatalf("window = %q", s.Window)
		}
	}
	want := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	for _, since := range src.since {
		if !since.Equal(want) {
			t.Fatalf("since = %v, want %v", since, want)
		}
	}
}

func TestRunOnce_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	snaps := &memSnapshots{snaps: map[string]trending.Snapshot{}}
	task := newTask(t, src, snaps)

	if err := task.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(snaps.snaps) != 0 {
		t.Fatalf("snapshots written on failure: %v", snaps.snaps)
	}
}

func TestNewTrendingTask_BadSpec(t *testing.T) {
	r := &trending.Refresher{Log: zap.NewNop()}
	if _, err := NewTrendingTask(r, "every now and then", zap.NewNop()); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	snaps := &memSnapshots{snaps: map[string]trending.Snapshot{}}
	task := newTask(t, &fakeSource{}, snaps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	snaps.mu.Lock()
	defer snaps.mu.Unlock()
	if len(snaps.snaps) != len(trending.Kinds) {
		t.Fatalf("startup refresh wrote %d snapshots", len(snaps.snaps))
	}
}
