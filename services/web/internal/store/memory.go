package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/anitrack/services/web/internal/media"
)

type markKey struct {
	userID     string
	targetType media.TargetType
	targetID   string
	mark       string
}

// MemoryDB is a development-only in-memory backend. All stores returned by
// Stores share one set of tables so cross-table reads behave like the SQL joins.
type MemoryDB struct {
	mu   sync.RWMutex
	now  func() time.Time
	last time.Time

	profiles  map[string]Profile
	media     map[media.Kind]map[string]MediaItem
	units     map[string]Unit
	tags      map[string][]string
	backdrops map[string][]Backdrop
	links     map[string]ExternalLink
	posts     map[string]Post
	likes     map[string]map[string]time.Time
	comments  map[string]Comment
	reviews   map[string]Review
	logs      map[string]LogEntry
	marks     map[markKey]Mark
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		now:       time.Now,
		profiles:  make(map[string]Profile),
		media:     map[media.Kind]map[string]MediaItem{media.KindAnime: {}, media.KindManga: {}},
		units:     make(map[string]Unit),
		tags:      make(map[string][]string),
		backdrops: make(map[string][]Backdrop),
		links:     make(map[string]ExternalLink),
		posts:     make(map[string]Post),
		likes:     make(map[string]map[string]time.Time),
		comments:  make(map[string]Comment),
		reviews:   make(map[string]Review),
		logs:      make(map[string]LogEntry),
		marks:     make(map[markKey]Mark),
	}
}

// NewMemoryStores is shorthand for NewMemoryDB().Stores().
func NewMemoryStores() Stores {
	return NewMemoryDB().Stores()
}

func (db *MemoryDB) Stores() Stores {
	return Stores{
		Profiles:    memProfiles{db},
		Media:       memMedia{db},
		Posts:       memPosts{db},
		Reviews:     memReviews{db},
		Logs:        memLogs{db},
		Marks:       memMarks{db},
		Completions: memCompletions{db},
		Trending:    memTrending{db},
	}
}

// stamp returns a strictly increasing UTC timestamp. Callers hold db.mu.
func (db *MemoryDB) stamp() time.Time {
	t := db.now().UTC()
	if !t.After(db.last) {
		t = db.last.Add(time.Microsecond)
	}
	db.last = t
	return t
}

func mediaKey(kind media.Kind, id string) string {
	return string(kind) + ":" + id
}

// newerFirst orders (t, id) pairs descending.
func newerFirst(at time.Time, aid string, bt time.Time, bid string) bool {
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return aid > bid
}

// olderThanCursor reports whether (t, id) sorts after the cursor position.
func olderThanCursor(t time.Time, id string, ct time.Time, cid string) bool {
	if !t.Equal(ct) {
		return t.Before(ct)
	}
	return id < cid
}

// ─── profiles ───────────────────────────────────────────────────────────────

type memProfiles struct{ db *MemoryDB }

func (s memProfiles) Create(_ context.Context, p Profile) (Profile, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, existing := range s.db.profiles {
		if existing.Username == p.Username {
			return Profile{}, ErrConflict
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Role == "" {
		p.Role = "user"
	}
	p.CreatedAt = s.db.stamp()
	s.db.profiles[p.ID] = p
	return p, nil
}

func (s memProfiles) ByID(_ context.Context, id string) (Profile, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	p.PasswordHash = ""
	return p, nil
}

func (s memProfiles) ByUsername(ctx context.Context, username string) (Profile, error) {
	p, err := s.ByLogin(ctx, username)
	p.PasswordHash = ""
	return p, err
}

func (s memProfiles) ByLogin(_ context.Context, login string) (Profile, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, p := range s.db.profiles {
		if p.Username == login {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (db *MemoryDB) username(userID string) string {
	return db.profiles[userID].Username
}

// ─── media ──────────────────────────────────────────────────────────────────

type memMedia struct{ db *MemoryDB }

func (s memMedia) BySlug(_ context.Context, kind media.Kind, slug string) (MediaItem, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, m := range s.db.media[kind] {
		if m.Slug == slug {
			return m, nil
		}
	}
	return MediaItem{}, ErrNotFound
}

func (s memMedia) ByID(_ context.Context, kind media.Kind, id string) (MediaItem, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	m, ok := s.db.media[kind][id]
	if !ok {
		return MediaItem{}, ErrNotFound
	}
	return m, nil
}

func (s memMedia) Unit(_ context.Context, kind media.Kind, mediaID string, number int) (Unit, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, u := range s.db.units {
		if u.Kind == kind && u.MediaID == mediaID && u.Number == number {
			return u, nil
		}
	}
	return Unit{}, ErrNotFound
}

func (s memMedia) UnitByID(_ context.Context, kind media.Kind, unitID string) (Unit, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.units[unitID]
	if !ok || u.Kind != kind {
		return Unit{}, ErrNotFound
	}
	return u, nil
}

func (s memMedia) Tags(_ context.Context, kind media.Kind, mediaID string) ([]string, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := append([]string{}, s.db.tags[mediaKey(kind, mediaID)]...)
	sort.Strings(out)
	return out, nil
}

func (s memMedia) Backdrops(_ context.Context, kind media.Kind, mediaID string) ([]Backdrop, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return append([]Backdrop{}, s.db.backdrops[mediaKey(kind, mediaID)]...), nil
}

func (s memMedia) UpsertExternalLink(_ context.Context, l ExternalLink) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.media[media.KindAnime][l.AnimeID]; !ok {
		return ErrNotFound
	}
	l.MatchedAt = s.db.stamp()
	s.db.links[l.AnimeID+"|"+l.Source] = l
	return nil
}

func (s memMedia) SetLegacyExternalID(_ context.Context, animeID, source, externalID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.media[media.KindAnime][animeID]
	if !ok {
		return ErrNotFound
	}
	switch source {
	case "tmdb":
		m.TMDBID = externalID
	case "tvdb":
		m.TVDBID = externalID
	default:
		return ErrNotFound
	}
	s.db.media[media.KindAnime][animeID] = m
	return nil
}

func (s memMedia) ExternalLinks(_ context.Context, animeID string) ([]ExternalLink, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []ExternalLink{}
	for _, l := range s.db.links {
		if l.AnimeID == animeID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s memMedia) CreateMedia(_ context.Context, m MediaItem) (MediaItem, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	table, ok := s.db.media[m.Kind]
	if !ok {
		return MediaItem{}, ErrNotFound
	}
	for _, existing := range table {
		if existing.Slug == m.Slug {
			return MediaItem{}, ErrConflict
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	table[m.ID] = m
	return m, nil
}

func (s memMedia) CreateUnit(_ context.Context, u Unit) (Unit, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.media[u.Kind][u.MediaID]; !ok {
		return Unit{}, ErrNotFound
	}
	for _, existing := range s.db.units {
		if existing.Kind == u.Kind && existing.MediaID == u.MediaID && existing.Number == u.Number {
			return Unit{}, ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.db.units[u.ID] = u
	return u, nil
}

func (s memMedia) AddTags(_ context.Context, kind media.Kind, mediaID string, tags ...string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := mediaKey(kind, mediaID)
	seen := make(map[string]bool, len(s.db.tags[key]))
	for _, t := range s.db.tags[key] {
		seen[t] = true
	}
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && !seen[t] {
			s.db.tags[key] = append(s.db.tags[key], t)
			seen[t] = true
		}
	}
	return nil
}

func (s memMedia) AddBackdrop(_ context.Context, kind media.Kind, mediaID string, b Backdrop) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	key := mediaKey(kind, mediaID)
	s.db.backdrops[key] = append(s.db.backdrops[key], b)
	return nil
}
