package evictor

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/internal/statskeys"
)

type fakeRedis struct {
	mu     sync.Mutex
	keys   map[string]bool
	delErr error
	dels   int
}

func newFakeRedis(keys ...string) *fakeRedis {
	f := &fakeRedis{keys: map[string]bool{}}
	for _, k := range keys {
		f.keys[statskeys.Redis(k)] = true
	}
	return f
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dels++
	if f.delErr != nil {
		return redis.NewIntResult(0, f.delErr)
	}
	n := 0
	for _, k := range keys {
		if f.keys[k] {
			delete(f.keys, k)
			n++
		}
	}
	return redis.NewIntResult(int64(n), nil)
}

func (f *fakeRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(match, "*")
	var out []string
	for k := range f.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return redis.NewScanCmdResult(out, 0, nil)
}

func (f *fakeRedis) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[statskeys.Redis(key)]
}

func envelope(t *testing.T, userID string, props map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(events.Event{
		EventID: "e1", EventName: events.SubjectMarkChanged, UserID: userID,
		OccurredAt: time.Now().UTC(), Properties: props,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandle_EvictsMediaKeys(t *testing.T) {
	rdb := newFakeRedis(append(statskeys.For("u1", "anime", "a1"), statskeys.Progress("u1", "anime", "a2"))...)
	e := &Evictor{Redis: rdb, Log: zap.NewNop()}

	got := e.Handle(context.Background(), events.SubjectMarkChanged, envelope(t, "u1", map[string]any{"kind": "anime", "media_id": "a1"}))
	if got != Ack {
		t.Fatalf("outcome = %v, want ack", got)
	}
	for _, k := range statskeys.For("u1", "anime", "a1") {
		if rdb.has(k) {
			t.Fatalf("%s still cached", k)
		}
	}
	if !rdb.has(statskeys.Progress("u1", "anime", "a2")) {
		t.Fatal("unrelated media evicted")
	}
}

func TestHandle_NoMediaEvictsUser(t *testing.T) {
	rdb := newFakeRedis(statskeys.Progress("u1", "anime", "a1"), statskeys.List("u1"), statskeys.List("u2"))
	e := &Evictor{Redis: rdb, Log: zap.NewNop()}

	if got := e.Handle(context.Background(), events.SubjectLogCreated, envelope(t, "u1", nil)); got != Ack {
		t.Fatalf("outcome = %v, want ack", got)
	}
	if rdb.has(statskeys.List("u1")) || rdb.has(statskeys.Progress("u1", "anime", "a1")) {
		t.Fatal("user keys survived")
	}
	if !rdb.has(statskeys.List("u2")) {
		t.Fatal("other user evicted")
	}
}

func TestHandle_RedisFailureNaks(t *testing.T) {
	rdb := newFakeRedis()
	rdb.delErr = errors.New("connection refused")
	e := &Evictor{Redis: rdb, Log: zap.NewNop()}

	got := e.Handle(context.Background(), events.SubjectReviewCreated, envelope(t, "u1", map[string]any{"kind": "manga", "media_id": "m1"}))
	if got != Nak {
		t.Fatalf("outcome = %v, want nak", got)
	}
}

func TestHandle_BadEventsTerminate(t *testing.T) {
	e := &Evictor{Redis: newFakeRedis(), Log: zap.NewNop()}
	ctx := context.Background()

	if got := e.Handle(ctx, events.SubjectMarkChanged, []byte("{not json")); got != Term {
		t.Fatalf("garbage: outcome = %v, want term", got)
	}
	if got := e.Handle(ctx, events.SubjectMarkChanged, envelope(t, "", map[string]any{"kind": "anime"})); got != Term {
		t.Fatalf("no user: outcome = %v, want term", got)
	}
}

type fakeFetcher struct {
	batches [][]*nats.Msg
	calls   int
	cancel  context.CancelFunc
}

func (f *fakeFetcher) Fetch(int, ...nats.PullOpt) ([]*nats.Msg, error) {
	f.calls++
	if len(f.batches) == 0 {
		f.cancel()
		return nil, nats.ErrTimeout
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func TestConsumer_RunProcessesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := newFakeRedis(statskeys.For("u1", "anime", "a1")...)
	msgs := []*nats.Msg{
		{Subject: events.SubjectMarkChanged, Data: envelope(t, "u1", map[string]any{"kind": "anime", "media_id": "a1"})},
		{Subject: events.SubjectLogCreated, Data: envelope(t, "u2", map[string]any{"kind": "anime", "media_id": "a1"})},
	}
	f := &fakeFetcher{batches: [][]*nats.Msg{msgs}, cancel: cancel}
	c := &Consumer{sub: f, evictor: &Evictor{Redis: rdb, Log: zap.NewNop()}, batchSize: 10, wait: time.Millisecond, log: zap.NewNop()}

	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if rdb.dels != 2 {
		t.Fatalf("del calls = %d, want 2", rdb.dels)
	}
	if rdb.has(statskeys.List("u1")) {
		t.Fatal("u1 list still cached")
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Ack: "ack", Nak: "nak", Term: "term"} {
		if o.String() != want {
			t.Fatalf("%d.String() = %q", o, o.String())
		}
	}
}
