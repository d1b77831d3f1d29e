// Package pages assembles the data behind detail, profile and activity
// pages. Every page resolves its subject first, then loads independent
// sections in parallel; a failed section is reported by name and leaves the
// rest of the page intact.
package pages

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/internal/slug"
	"github.com/example/anitrack/services/web/internal/completions"
	"github.com/example/anitrack/services/web/internal/feed"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/stars"
	"github.com/example/anitrack/services/web/internal/store"
)

const (
	reviewsOnPage = 20
	postsOnPage   = 10
	backdropPool  = 5
	hiResWidth    = 1280
)

type Service struct {
	stores      store.Stores
	feed        *feed.Service
	completions *completions.Service
	events      *events.Publisher
	log         *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(s store.Stores, f *feed.Service, c *completions.Service, pub *events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		stores: s, feed: f, completions: c, events: pub, log: log,
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// sections collects per-section failures of one page load.
type sections struct {
	mu   sync.Mutex
	errs map[string]string
	log  *zap.Logger
}

func (s *sections) fail(name string, err error) error {
	if err == nil {
		return nil
	}
	s.log.Warn("page section failed", zap.String("section", name), zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errs == nil {
		s.errs = make(map[string]string)
	}
	s.errs[name] = err.Error()
	return nil
}

// run executes fns in parallel and returns the section errors, or the
// request's own error when it was canceled.
func (s *Service) run(ctx context.Context, fns map[string]func(context.Context) error) (map[string]string, error) {
	sec := &sections{log: s.log}
	g, gctx := errgroup.WithContext(ctx)
	for name, fn := range fns {
		g.Go(func() error { return sec.fail(name, fn(gctx)) })
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sec.errs, nil
}

func (s *Service) pageViewed(viewerID, page string, props map[string]any) {
	if props == nil {
		props = map[string]any{}
	}
	props["page"] = page
	s.events.Publish(events.SubjectPageViewed, viewerID, props)
}

// ─── reviews with stars ─────────────────────────────────────────────────────

// Review decorates a review with its rating in half stars.
type Review struct {
	store.Review
	HalfStars *int              `json:"half_stars,omitempty"`
	StarFills *[stars.Count]int `json:"star_fills,omitempty"`
}

func WithStars(rs []store.Review) []Review {
	out := make([]Review, len(rs))
	for i, r := range rs {
		out[i] = Review{Review: r}
		if r.Rating != nil {
			h := stars.RatingToHalfStars(*r.Rating)
			fills := stars.Fills(h)
			out[i].HalfStars = &h
			out[i].StarFills = &fills
		}
	}
	return out
}

// ─── media page ─────────────────────────────────────────────────────────────

// Viewer is the signed-in viewer's own state on a page.
type Viewer struct {
	Marks      []store.Mark      `json:"marks"`
	Logs       []store.LogEntry  `json:"logs"`
	Progress   *store.Progress   `json:"progress,omitempty"`
	Engagement *store.Engagement `json:"engagement,omitempty"`
}

type MediaPage struct {
	Media    store.MediaItem   `json:"media"`
	Tags     []string          `json:"tags"`
	Backdrop string            `json:"backdrop,omitempty"`
	Reviews  []Review          `json:"reviews"`
	Posts    []feed.Item       `json:"posts"`
	Viewer   *Viewer           `json:"viewer,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// ErrMediaNotFound carries the kind for the "<kind> not found" message.
type ErrMediaNotFound struct{ Kind media.Kind }

func (e ErrMediaNotFound) Error() string { return string(e.Kind) + " not found" }
func (e ErrMediaNotFound) Is(target error) bool {
	return target == store.ErrNotFound
}

func (s *Service) resolve(ctx context.Context, kind media.Kind, slugOrID string) (store.MediaItem, error) {
	m, err := s.stores.Media.BySlug(ctx, kind, slugOrID)
	if errors.Is(err, store.ErrNotFound) {
		return store.MediaItem{}, ErrMediaNotFound{Kind: kind}
	}
	if err != nil {
		return store.MediaItem{}, fmt.Errorf("resolve %s: %w", kind, err)
	}
	m.PosterURL = media.NormalizeImageURL(m.PosterURL, "w500")
	return m, nil
}

func (s *Service) MediaPage(ctx context.Context, kind media.Kind, slugStr, viewerID string) (MediaPage, error) {
	m, err := s.resolve(ctx, kind, slugStr)
	if err != nil {
		return MediaPage{}, err
	}
	page := MediaPage{Media: m, Tags: []string{}, Reviews: []Review{}, Posts: []feed.Item{}}
	var viewer Viewer

	fns := map[string]func(context.Context) error{
		"tags": func(ctx context.Context) error {
			tags, err := s.stores.Media.Tags(ctx, kind, m.ID)
			if err == nil {
				page.Tags = tags
			}
			return err
		},
		"reviews": func(ctx context.Context) error {
			rs, err := s.stores.Reviews.ListForMedia(ctx, kind, m.ID, nil, viewerID, reviewsOnPage)
			if err == nil {
				page.Reviews = WithStars(rs)
			}
			return err
		},
		"posts": func(ctx context.Context) error {
			p, err := s.feed.ForMedia(ctx, kind, m.ID, viewerID, postsOnPage)
			if err == nil {
				page.Posts = p.Items
			}
			return err
		},
		"backdrop": func(ctx context.Context) error {
			url, err := s.Backdrop(ctx, kind, m.ID)
			page.Backdrop = url
			return err
		},
	}
	if viewerID != "" {
		fns["marks"] = func(ctx context.Context) error {
			ms, err := s.stores.Marks.ForUserMedia(ctx, viewerID, kind, m.ID)
			viewer.Marks = ms
			return err
		}
		fns["logs"] = func(ctx context.Context) error {
			ls, err := s.stores.Logs.ListForMedia(ctx, viewerID, kind, m.ID)
			viewer.Logs = ls
			return err
		}
		fns["progress"] = func(ctx context.Context) error {
			p, err := s.completions.Progress(ctx, viewerID, kind, m.ID, false)
			if err == nil {
				viewer.Progress = &p
			}
			return err
		}
		fns["engagement"] = func(ctx context.Context) error {
			e, err := s.completions.Engagement(ctx, viewerID, kind, m.ID, false)
			if err == nil {
				viewer.Engagement = &e
			}
			return err
		}
	}

	page.Errors, err = s.run(ctx, fns)
	if err != nil {
		return MediaPage{}, err
	}
	if viewerID != "" {
		if viewer.Marks == nil {
			viewer.Marks = []store.Mark{}
		}
		if viewer.Logs == nil {
			viewer.Logs = []store.LogEntry{}
		}
		page.Viewer = &viewer
	}
	s.pageViewed(viewerID, "media", map[string]any{"kind": string(kind), "media_id": m.ID})
	return page, nil
}

// ─── unit page ──────────────────────────────────────────────────────────────

type UnitPage struct {
	Media   store.MediaItem   `json:"media"`
	Unit    store.Unit        `json:"unit"`
	Prev    *int              `json:"prev,omitempty"`
	Next    *int              `json:"next,omitempty"`
	Reviews []Review          `json:"reviews"`
	Marks   []store.Mark      `json:"marks,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func (s *Service) UnitPage(ctx context.Context, kind media.Kind, slugStr string, number int, viewerID string) (UnitPage, error) {
	m, err := s.resolve(ctx, kind, slugStr)
	if err != nil {
		return UnitPage{}, err
	}
	u, err := s.stores.Media.Unit(ctx, kind, m.ID, number)
	if errors.Is(err, store.ErrNotFound) {
		return UnitPage{}, fmt.Errorf("%s %d: %w", kind.Unit(), number, store.ErrNotFound)
	}
	if err != nil {
		return UnitPage{}, err
	}
	page := UnitPage{Media: m, Unit: u, Reviews: []Review{}}
	if number > 1 {
		prev := number - 1
		page.Prev = &prev
	}
	if m.Units == 0 || number < m.Units {
		next := number + 1
		page.Next = &next
	}

	fns := map[string]func(context.Context) error{
		"reviews": func(ctx context.Context) error {
			rs, err := s.stores.Reviews.ListForMedia(ctx, kind, m.ID, &u.ID, viewerID, reviewsOnPage)
			if err == nil {
				page.Reviews = WithStars(rs)
			}
			return err
		},
	}
	if viewerID != "" {
		fns["marks"] = func(ctx context.Context) error {
			ms, err := s.stores.Marks.ForTarget(ctx, viewerID, kind.UnitTarget(), u.ID)
			page.Marks = ms
			return err
		}
	}
	page.Errors, err = s.run(ctx, fns)
	if err != nil {
		return UnitPage{}, err
	}
	s.pageViewed(viewerID, "unit", map[string]any{"kind": string(kind), "media_id": m.ID, "unit_id": u.ID})
	return page, nil
}

// ─── backdrop ───────────────────────────────────────────────────────────────

// PickBackdrop ranks candidates by high resolution, vote average and width,
// then picks uniformly among the best few. ok is false without candidates.
func PickBackdrop(candidates []store.Backdrop, rng *rand.Rand) (string, bool) {
	pool := make([]store.Backdrop, 0, len(candidates))
	for _, c := range candidates {
		if c.URL != "" {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return "", false
	}
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		ah, bh := a.Width >= hiResWidth, b.Width >= hiResWidth
		if ah != bh {
			return ah
		}
		if a.VoteAverage != b.VoteAverage {
			return a.VoteAverage > b.VoteAverage
		}
		return a.Width > b.Width
	})
	if len(pool) > backdropPool {
		pool = pool[:backdropPool]
	}
	pick := pool[rng.IntN(len(pool))]
	return media.NormalizeImageURL(pick.URL, "original"), true
}

// Backdrop picks a random high quality backdrop, "" when there is none.
func (s *Service) Backdrop(ctx context.Context, kind media.Kind, mediaID string) (string, error) {
	cands, err := s.stores.Media.Backdrops(ctx, kind, mediaID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	url, _ := PickBackdrop(cands, s.rng)
	return url, nil
}

// BackdropBySlug resolves the slug first so a missing entity is a 404.
func (s *Service) BackdropBySlug(ctx context.Context, kind media.Kind, slugStr string) (string, error) {
	m, err := s.resolve(ctx, kind, slugStr)
	if err != nil {
		return "", err
	}
	return s.Backdrop(ctx, kind, m.ID)
}

// ─── profile ────────────────────────────────────────────────────────────────

type ProfilePage struct {
	Profile   store.Profile     `json:"profile"`
	Tracked   int               `json:"tracked"`
	Completed int               `json:"completed"`
	Buckets   map[string]int    `json:"buckets"`
	Reviews   []Review          `json:"reviews"`
	Errors    map[string]string `json:"errors,omitempty"`
}

var ErrUserNotFound = fmt.Errorf("user %w", store.ErrNotFound)

// User resolves a username case-insensitively.
func (s *Service) User(ctx context.Context, username string) (store.Profile, error) {
	p, err := s.stores.Profiles.ByUsername(ctx, slug.CanonicalUsername(username))
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, ErrUserNotFound
	}
	return p, err
}

func (s *Service) Profile(ctx context.Context, username, viewerID string) (ProfilePage, error) {
	p, err := s.User(ctx, username)
	if err != nil {
		return ProfilePage{}, err
	}
	p.Role = ""
	page := ProfilePage{Profile: p, Buckets: map[string]int{}, Reviews: []Review{}}
	fns := map[string]func(context.Context) error{
		"completions": func(ctx context.Context) error {
			items, err := s.completions.All(ctx, p.ID, false)
			if err != nil {
				return err
			}
			page.Tracked = len(items)
			page.Buckets = completions.Summary(items)
			page.Completed = page.Buckets["100"]
			return nil
		},
		"reviews": func(ctx context.Context) error {
			rs, err := s.stores.Reviews.ListByUser(ctx, p.ID, viewerID, reviewsOnPage)
			if err == nil {
				page.Reviews = WithStars(rs)
			}
			return err
		},
	}
	page.Errors, err = s.run(ctx, fns)
	if err != nil {
		return ProfilePage{}, err
	}
	s.pageViewed(viewerID, "profile", map[string]any{"profile_id": p.ID})
	return page, nil
}

// ─── activity ───────────────────────────────────────────────────────────────

type ActivityEntry struct {
	Type   string          `json:"type"`
	At     string          `json:"at"`
	Log    *store.LogEntry `json:"log,omitempty"`
	Review *Review         `json:"review,omitempty"`
	Post   *store.Post     `json:"post,omitempty"`
}

type Activity struct {
	User    store.Profile     `json:"user"`
	Entries []ActivityEntry   `json:"entries"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type timed struct {
	entry ActivityEntry
	at    int64
	id    string
}

// Activity merges a user's logs, reviews and posts, newest first. Private
// logs and reviews are hidden from everyone but the owner.
func (s *Service) Activity(ctx context.Context, username, viewerID string, limit int) (Activity, error) {
	p, err := s.User(ctx, username)
	if err != nil {
		return Activity{}, err
	}
	limit = store.ClampLimit(limit)

	var (
		mu  sync.Mutex
		all []timed
	)
	add := func(t timed) {
		mu.Lock()
		all = append(all, t)
		mu.Unlock()
	}
	fns := map[string]func(context.Context) error{
		"logs": func(ctx context.Context) error {
			ls, _, err := s.stores.Logs.ListByUser(ctx, p.ID, viewerID, "", limit)
			for i := range ls {
				l := ls[i]
				add(timed{ActivityEntry{Type: "log", At: l.LoggedAt.Format(rfc3339ms), Log: &l}, l.LoggedAt.UnixNano(), l.ID})
			}
			return err
		},
		"reviews": func(ctx context.Context) error {
			rs, err := s.stores.Reviews.ListByUser(ctx, p.ID, viewerID, limit)
			for _, r := range WithStars(rs) {
				add(timed{ActivityEntry{Type: "review", At: r.CreatedAt.Format(rfc3339ms), Review: &r}, r.CreatedAt.UnixNano(), r.ID})
			}
			return err
		},
		"posts": func(ctx context.Context) error {
			ps, _, err := s.stores.Posts.ListByUser(ctx, p.ID, "", limit)
			for i := range ps {
				post := ps[i]
				add(timed{ActivityEntry{Type: "post", At: post.CreatedAt.Format(rfc3339ms), Post: &post}, post.CreatedAt.UnixNano(), post.ID})
			}
			return err
		},
	}
	errs, err := s.run(ctx, fns)
	if err != nil {
		return Activity{}, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].at != all[j].at {
			return all[i].at > all[j].at
		}
		return all[i].id > all[j].id
	})
	if len(all) > limit {
		all = all[:limit]
	}
	entries := make([]ActivityEntry, len(all))
	for i, t := range all {
		entries[i] = t.entry
	}
	p.Role = ""
	return Activity{User: p, Entries: entries, Errors: errs}, nil
}

const rfc3339ms = "2006-01-02T15:04:05.000Z07:00"
