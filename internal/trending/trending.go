// Package trending ranks titles by distinct loggers in a rolling window.
// The worker refreshes Redis snapshots on a schedule; readers fall back to
// querying the source directly when no snapshot exists.
package trending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var Kinds = []string{"anime", "manga"}

type Entry struct {
	Kind      string `json:"kind"`
	MediaID   string `json:"media_id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	PosterURL string `json:"poster_url,omitempty"`
	Loggers   int    `json:"loggers"`
}

// Sort orders by loggers descending, then title and id ascending.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Loggers != b.Loggers {
			return a.Loggers > b.Loggers
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.MediaID < b.MediaID
	})
}

type Source interface {
	Trending(ctx context.Context, kind string, since time.Time, limit int) ([]Entry, error)
}

// PostgresSource queries logs joined to the media tables.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

var mediaTables = map[string]string{"anime": "anime", "manga": "manga"}

func (s *PostgresSource) Trending(ctx context.Context, kind string, since time.Time, limit int) ([]Entry, error) {
	table, ok := mediaTables[kind]
	if !ok {
		return nil, fmt.Errorf("trending: unknown kind %q", kind)
	}
	q := `SELECT m.id, m.slug, m.title, m.poster_url, count(DISTINCT l.user_id)::int AS loggers
	      FROM logs l JOIN ` + table + ` m ON m.id = l.media_id
	      WHERE l.kind = $1 AND l.logged_at >= $2
	      GROUP BY m.id, m.slug, m.title, m.poster_url
	      ORDER BY loggers DESC, m.title ASC, m.id ASC
	      LIMIT $3`
	rows, err := s.pool.Query(ctx, q, kind, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		e := Entry{Kind: kind}
		if err := rows.Scan(&e.MediaID, &e.Slug, &e.Title, &e.PosterURL, &e.Loggers); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type Snapshot struct {
	Kind       string    `json:"kind"`
	ComputedAt time.Time `json:"computed_at"`
	Window     string    `json:"window"`
	Entries    []Entry   `json:"entries"`
}

func Key(kind string) string {
	return "trending:" + kind
}

// Snapshots stores one JSON snapshot per kind in Redis.
type Snapshots struct {
	Client redis.Cmdable
	TTL    time.Duration
}

func (s *Snapshots) Write(ctx context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, Key(snap.Kind), b, s.TTL).Err()
}

func (s *Snapshots) Read(ctx context.Context, kind string) (Snapshot, bool, error) {
	val, err := s.Client.Get(ctx, Key(kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

type SnapshotStore interface {
	Write(ctx context.Context, snap Snapshot) error
	Read(ctx context.Context, kind string) (Snapshot, bool, error)
}

// Refresher recomputes every kind and writes snapshots.
type Refresher struct {
	Source    Source
	Snapshots SnapshotStore
	Window    time.Duration
	Limit     int
	Log       *zap.Logger
	Now       func() time.Time
}

func (r *Refresher) Run(ctx context.Context) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	at := now().UTC()
	var errs []error
	for _, kind := range Kinds {
		entries, err := r.Source.Trending(ctx, kind, at.Add(-r.Window), r.Limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		snap := Snapshot{Kind: kind, ComputedAt: at, Window: r.Window.String(), Entries: entries}
		if err := r.Snapshots.Write(ctx, snap); err != nil {
			errs = append(errs, fmt.Errorf("%s: write: %w", kind, err))
			continue
		}
		r.Log.Info("trending snapshot written", zap.String("kind", kind), zap.Int("entries", len(entries)))
	}
	return errors.Join(errs...)
}

// Reader serves snapshots and falls back to the live source.
type Reader struct {
	Snapshots SnapshotStore
	Source    Source
	Window    time.Duration
	Log       *zap.Logger
}

// Get returns entries and where they came from: "snapshot" or "live".
func (r *Reader) Get(ctx context.Context, kind string, limit int) ([]Entry, string, error) {
	if r.Snapshots != nil {
		snap, ok, err := r.Snapshots.Read(ctx, kind)
		switch {
		case err != nil:
			r.Log.Warn("trending snapshot read failed", zap.String("kind", kind), zap.Error(err))
		case ok:
			entries := snap.Entries
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			if entries == nil {
				entries = []Entry{}
			}
			return entries, "snapshot", nil
		}
	}
	entries, err := r.Source.Trending(ctx, kind, time.Now().UTC().Add(-r.Window), limit)
	if err != nil {
		return nil, "", err
	}
	return entries, "live", nil
}
