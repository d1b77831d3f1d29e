package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/anitrack/internal/trending"
	"github.com/example/anitrack/services/web/internal/media"
)

// ─── reviews ────────────────────────────────────────────────────────────────

type memReviews struct{ db *MemoryDB }

func (s memReviews) Create(_ context.Context, r Review) (Review, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r.ID = uuid.NewString()
	r.CreatedAt = s.db.stamp()
	s.db.reviews[r.ID] = r
	r.Username = s.db.username(r.UserID)
	return r, nil
}

func (s memReviews) ByID(_ context.Context, id string) (Review, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	r, ok := s.db.reviews[id]
	if !ok {
		return Review{}, ErrNotFound
	}
	r.Username = s.db.username(r.UserID)
	return r, nil
}

func sameUnit(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s memReviews) list(filter func(Review) bool, viewerID string, limit int) []Review {
	limit = ClampLimit(limit)
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []Review{}
	for _, r := range s.db.reviews {
		if !filter(r) || !media.VisibleTo(r.Visibility, r.UserID, viewerID) {
			continue
		}
		r.Username = s.db.username(r.UserID)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s memReviews) ListForMedia(_ context.Context, kind media.Kind, mediaID string, unitID *string, viewerID string, limit int) ([]Review, error) {
	return s.list(func(r Review) bool {
		return r.Kind == kind && r.MediaID == mediaID && sameUnit(r.UnitID, unitID)
	}, viewerID, limit), nil
}

func (s memReviews) ListByUser(_ context.Context, userID, viewerID string, limit int) ([]Review, error) {
	return s.list(func(r Review) bool { return r.UserID == userID }, viewerID, limit), nil
}

func (s memReviews) Engagement(_ context.Context, userID string, kind media.Kind, mediaID string) (Engagement, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.engagement(userID, kind, mediaID), nil
}

// ─── logs ───────────────────────────────────────────────────────────────────

type memLogs struct{ db *MemoryDB }

func (s memLogs) Create(_ context.Context, l LogEntry) (LogEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	l.ID = uuid.NewString()
	if l.LoggedAt.IsZero() {
		l.LoggedAt = s.db.stamp()
	}
	l.LoggedAt = l.LoggedAt.UTC()
	l.MediaSlug, l.MediaTitle = "", ""
	s.db.logs[l.ID] = l
	return s.db.withMedia(l), nil
}

func (db *MemoryDB) withMedia(l LogEntry) LogEntry {
	m := db.media[l.Kind][l.MediaID]
	l.MediaSlug = m.Slug
	l.MediaTitle = m.Title
	return l
}

func (s memLogs) ListByUser(_ context.Context, userID, viewerID, cursor string, limit int) ([]LogEntry, string, error) {
	limit = ClampLimit(limit)
	var (
		hasCursor bool
		ct        time.Time
		cid       string
	)
	if cursor != "" {
		t, id, err := parseCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		ct, cid, hasCursor = t, id, true
	}
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []LogEntry{}
	for _, l := range s.db.logs {
		if l.UserID != userID || !media.VisibleTo(l.Visibility, l.UserID, viewerID) {
			continue
		}
		if hasCursor && !olderThanCursor(l.LoggedAt, l.ID, ct, cid) {
			continue
		}
		out = append(out, s.db.withMedia(l))
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].LoggedAt, out[i].ID, out[j].LoggedAt, out[j].ID)
	})
	next := ""
	if len(out) > limit {
		last := out[limit-1]
		next = encodeCursor(last.LoggedAt, last.ID)
		out = out[:limit]
	}
	return out, next, nil
}

func (s memLogs) ListForMedia(_ context.Context, userID string, kind media.Kind, mediaID string) ([]LogEntry, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []LogEntry{}
	for _, l := range s.db.logs {
		if l.UserID == userID && l.Kind == kind && l.MediaID == mediaID {
			out = append(out, s.db.withMedia(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].LoggedAt, out[i].ID, out[j].LoggedAt, out[j].ID)
	})
	return out, nil
}

// ─── marks ──────────────────────────────────────────────────────────────────

type memMarks struct{ db *MemoryDB }

func (s memMarks) Set(_ context.Context, m Mark) (Mark, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m.CreatedAt = s.db.stamp()
	s.db.marks[markKey{m.UserID, m.TargetType, m.TargetID, m.Mark}] = m
	return m, nil
}

func (s memMarks) Clear(_ context.Context, userID string, targetType media.TargetType, targetID, mark string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.marks, markKey{userID, targetType, targetID, mark})
	return nil
}

func sortMarks(ms []Mark) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].TargetType != ms[j].TargetType {
			return ms[i].TargetType < ms[j].TargetType
		}
		if ms[i].TargetID != ms[j].TargetID {
			return ms[i].TargetID < ms[j].TargetID
		}
		return ms[i].Mark < ms[j].Mark
	})
}

func (s memMarks) ForTarget(_ context.Context, userID string, targetType media.TargetType, targetID string) ([]Mark, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []Mark{}
	for k, m := range s.db.marks {
		if k.userID == userID && k.targetType == targetType && k.targetID == targetID {
			out = append(out, m)
		}
	}
	sortMarks(out)
	return out, nil
}

func (s memMarks) ForUserMedia(_ context.Context, userID string, kind media.Kind, mediaID string) ([]Mark, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []Mark{}
	for k, m := range s.db.marks {
		if k.userID == userID && s.db.markMedia(k) == mediaKey(kind, mediaID) {
			out = append(out, m)
		}
	}
	sortMarks(out)
	return out, nil
}

// markMedia resolves the "kind:id" of the media entity a mark belongs to.
func (db *MemoryDB) markMedia(k markKey) string {
	if k.targetType.IsUnit() {
		u, ok := db.units[k.targetID]
		if !ok {
			return ""
		}
		return mediaKey(u.Kind, u.MediaID)
	}
	return mediaKey(k.targetType.Kind(), k.targetID)
}

// ─── completions ────────────────────────────────────────────────────────────

type memCompletions struct{ db *MemoryDB }

func (db *MemoryDB) totalUnits(kind media.Kind, mediaID string) int {
	if m, ok := db.media[kind][mediaID]; ok && m.Units > 0 {
		return m.Units
	}
	n := 0
	for _, u := range db.units {
		if u.Kind == kind && u.MediaID == mediaID {
			n++
		}
	}
	return n
}

func (db *MemoryDB) progress(userID string, kind media.Kind, mediaID string) Progress {
	total := db.totalUnits(kind, mediaID)
	if _, ok := db.marks[markKey{userID, kind.SeriesTarget(), mediaID, MarkWatched}]; ok {
		return ResolveProgress(total, 0, true)
	}
	seen := make(map[string]bool)
	for k := range db.marks {
		if k.userID != userID || k.mark != MarkWatched || k.targetType != kind.UnitTarget() {
			continue
		}
		if u, ok := db.units[k.targetID]; ok && u.MediaID == mediaID {
			seen[u.ID] = true
		}
	}
	for _, l := range db.logs {
		if l.UserID == userID && l.Kind == kind && l.MediaID == mediaID && l.UnitID != nil {
			seen[*l.UnitID] = true
		}
	}
	return ResolveProgress(total, len(seen), false)
}

func (db *MemoryDB) engagement(userID string, kind media.Kind, mediaID string) Engagement {
	var e Engagement
	for _, r := range db.reviews {
		if r.UserID == userID && r.Kind == kind && r.MediaID == mediaID {
			e.Reviewed++
		}
	}
	want := mediaKey(kind, mediaID)
	for k := range db.marks {
		if k.userID == userID && k.mark == MarkRating && db.markMedia(k) == want {
			e.Rated++
		}
	}
	return e
}

func (s memCompletions) Progress(_ context.Context, userID string, kind media.Kind, mediaID string) (Progress, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if _, ok := s.db.media[kind][mediaID]; !ok {
		return Progress{}, ErrNotFound
	}
	return s.db.progress(userID, kind, mediaID), nil
}

func (s memCompletions) List(_ context.Context, userID string) ([]CompletionRow, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	touched := make(map[string]time.Time)
	touch := func(key string, at time.Time) {
		if key == "" {
			return
		}
		if cur, ok := touched[key]; !ok || at.After(cur) {
			touched[key] = at
		}
	}
	for k, m := range s.db.marks {
		if k.userID == userID {
			touch(s.db.markMedia(k), m.CreatedAt)
		}
	}
	for _, l := range s.db.logs {
		if l.UserID == userID {
			touch(mediaKey(l.Kind, l.MediaID), l.LoggedAt)
		}
	}
	for _, r := range s.db.reviews {
		if r.UserID == userID {
			touch(mediaKey(r.Kind, r.MediaID), r.CreatedAt)
		}
	}

	out := []CompletionRow{}
	for key, at := range touched {
		kindStr, id, _ := strings.Cut(key, ":")
		kind := media.Kind(kindStr)
		m, ok := s.db.media[kind][id]
		if !ok {
			continue
		}
		p := s.db.progress(userID, kind, id)
		e := s.db.engagement(userID, kind, id)
		out = append(out, CompletionRow{
			Kind: kind, MediaID: id, Slug: m.Slug, Title: m.Title, PosterURL: m.PosterURL,
			Current: p.Current, Total: p.Total, Reviewed: e.Reviewed, Rated: e.Rated,
			UpdatedAt: at,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].UpdatedAt, out[i].MediaID, out[j].UpdatedAt, out[j].MediaID)
	})
	return out, nil
}

// ─── trending ───────────────────────────────────────────────────────────────

type memTrending struct{ db *MemoryDB }

func (s memTrending) Trending(_ context.Context, kind string, since time.Time, limit int) ([]trending.Entry, error) {
	limit = ClampLimit(limit)
	k := media.Kind(kind)
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	users := make(map[string]map[string]bool)
	for _, l := range s.db.logs {
		if l.Kind != k || l.LoggedAt.Before(since) {
			continue
		}
		if users[l.MediaID] == nil {
			users[l.MediaID] = make(map[string]bool)
		}
		users[l.MediaID][l.UserID] = true
	}
	out := []trending.Entry{}
	for id, u := range users {
		m, ok := s.db.media[k][id]
		if !ok {
			continue
		}
		out = append(out, trending.Entry{
			Kind: kind, MediaID: id, Slug: m.Slug, Title: m.Title, PosterURL: m.PosterURL, Loggers: len(u),
		})
	}
	trending.Sort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
