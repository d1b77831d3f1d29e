package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/anitrack/internal/statskeys"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/statscache"
	"github.com/example/anitrack/services/web/internal/store"
)

type env struct {
	svc   *Service
	s     store.Stores
	cache *statscache.Memory
	user  string
	other string
	show  store.MediaItem
	ep    store.Unit
	book  store.MediaItem
}

func newEnv(t *testing.T) env {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStores()
	u, _ := s.Profiles.Create(ctx, store.Profile{Username: "alice"})
	o, _ := s.Profiles.Create(ctx, store.Profile{Username: "bob"})
	show, err := s.Media.CreateMedia(ctx, store.MediaItem{Kind: media.KindAnime, Slug: "mushishi", Title: "Mushishi", Units: 26})
	if err != nil {
		t.Fatalf("create media: %v", err)
	}
	ep, err := s.Media.CreateUnit(ctx, store.Unit{Kind: media.KindAnime, MediaID: show.ID, Number: 1})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	book, _ := s.Media.CreateMedia(ctx, store.MediaItem{Kind: media.KindManga, Slug: "vagabond", Title: "Vagabond"})
	cache := statscache.NewMemory(64, time.Minute)
	return env{
		svc: NewService(s, cache, nil, nil), s: s, cache: cache,
		user: u.ID, other: o.ID, show: show, ep: ep, book: book,
	}
}

func intp(v int) *int { return &v }

func isField(err error, field string) bool {
	var fe *FieldError
	return errors.As(err, &fe) && fe.Field == field && errors.Is(err, ErrInvalid)
}

func TestSetMark_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		in    MarkInput
		field string
	}{
		{"bad target", MarkInput{TargetType: "movie", TargetID: e.show.ID, Mark: "liked"}, "target_type"},
		{"bad mark", MarkInput{TargetType: "anime", TargetID: e.show.ID, Mark: "loved"}, "mark"},
		{"rating without stars", MarkInput{TargetType: "anime", TargetID: e.show.ID, Mark: "rating"}, "stars"},
		{"stars out of range", MarkInput{TargetType: "anime", TargetID: e.show.ID, Mark: "rating", Stars: intp(11)}, "stars"},
		{"stars on non-rating", MarkInput{TargetType: "anime", TargetID: e.show.ID, Mark: "liked", Stars: intp(3)}, "stars"},
		{"missing target", MarkInput{TargetType: "anime", Mark: "liked"}, "target_id"},
	}
	for _, c := range cases {
		if _, err := e.svc.SetMark(ctx, e.user, c.in); !isField(err, c.field) {
			t.Errorf("%s: expected %s field error, got %v", c.name, c.field, err)
		}
	}
	if _, err := e.svc.SetMark(ctx, "", MarkInput{TargetType: "anime", TargetID: e.show.ID, Mark: "liked"}); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if _, err := e.svc.SetMark(ctx, e.user, MarkInput{TargetType: "anime_episode", TargetID: "nope", Mark: "watched"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown unit, got %v", err)
	}
}

func TestSetMark_InvalidatesStats(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	key := statskeys.Progress(e.user, "anime", e.show.ID)
	_ = e.cache.Set(ctx, key, store.Progress{Current: 0, Total: 26})
	_ = e.cache.Set(ctx, statskeys.List(e.user), []string{})

	if _, err := e.svc.SetMark(ctx, e.user, MarkInput{TargetType: "anime_episode", TargetID: e.ep.ID, Mark: "watched"}); err != nil {
		t.Fatalf("set mark: %v", err)
	}
	var p store.Progress
	if ok, _ := e.cache.Get(ctx, key, &p); ok {
		t.Fatal("expected progress entry to be evicted")
	}
	var list []string
	if ok, _ := e.cache.Get(ctx, statskeys.List(e.user), &list); ok {
		t.Fatal("expected list entry to be evicted")
	}

	if err := e.svc.ClearMark(ctx, e.user, MarkInput{TargetType: "anime_episode", TargetID: e.ep.ID, Mark: "watched"}); err != nil {
		t.Fatalf("clear mark: %v", err)
	}
	marks, _ := e.svc.Marks(ctx, e.user, media.KindAnime, e.show.ID)
	if len(marks) != 0 {
		t.Fatalf("expected marks cleared, got %d", len(marks))
	}
}

func TestLog_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.svc.Log(ctx, e.user, LogInput{Kind: "film", MediaID: e.show.ID}); !isField(err, "kind") {
		t.Fatalf("expected kind error, got %v", err)
	}
	if _, err := e.svc.Log(ctx, e.user, LogInput{Kind: "anime", MediaID: e.show.ID, Rating: intp(101)}); !isField(err, "rating") {
		t.Fatalf("expected rating error, got %v", err)
	}
	if _, err := e.svc.Log(ctx, e.user, LogInput{Kind: "anime", MediaID: e.show.ID, Visibility: "secret"}); !isField(err, "visibility") {
		t.Fatalf("expected visibility error, got %v", err)
	}
	other, _ := e.s.Media.CreateMedia(ctx, store.MediaItem{Kind: media.KindAnime, Slug: "other", Title: "Other"})
	if _, err := e.svc.Log(ctx, e.user, LogInput{Kind: "anime", MediaID: other.ID, UnitID: &e.ep.ID}); !isField(err, "unit_id") {
		t.Fatalf("expected unit_id error, got %v", err)
	}
	if _, err := e.svc.Log(ctx, e.user, LogInput{Kind: "manga", MediaID: e.show.ID}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for kind mismatch, got %v", err)
	}
}

func TestLog_LinksOwnReviewOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	theirs, err := e.svc.Review(ctx, e.other, ReviewInput{Kind: "anime", MediaID: e.show.ID, Content: "meh"})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if _, err := e.svc.Log(ctx, e.user, LogInput{Kind: "anime", MediaID: e.show.ID, ReviewID: &theirs.ID}); !errors.Is(err, store.ErrNotFoundOrForbidden) {
		t.Fatalf("expected ErrNotFoundOrForbidden, got %v", err)
	}

	mine, _ := e.svc.Review(ctx, e.user, ReviewInput{Kind: "anime", MediaID: e.show.ID, Rating: intp(90)})
	l, err := e.svc.Log(ctx, e.user, LogInput{Kind: "anime", MediaID: e.show.ID, UnitID: &e.ep.ID, ReviewID: &mine.ID, Note: "  lovely  "})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if l.ReviewID == nil || *l.ReviewID != mine.ID || l.Note != "lovely" || l.Visibility != media.VisibilityPublic {
		t.Fatalf("unexpected log %+v", l)
	}

	entries, _, _ := e.svc.Journal(ctx, e.user, "", "", 10)
	if len(entries) != 1 || entries[0].MediaTitle != "Mushishi" {
		t.Fatalf("unexpected journal %+v", entries)
	}
}

func TestReview_AuthorLikedSnapshot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.svc.SetMark(ctx, e.user, MarkInput{TargetType: "anime", TargetID: e.show.ID, Mark: "liked"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	r, err := e.svc.Review(ctx, e.user, ReviewInput{Kind: "anime", MediaID: e.show.ID, Content: "great", ContainsSpoilers: true})
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !r.AuthorLiked || !r.ContainsSpoilers {
		t.Fatalf("expected liked snapshot and spoiler flag, got %+v", r)
	}

	// The episode itself was not liked.
	r, _ = e.svc.Review(ctx, e.user, ReviewInput{Kind: "anime", MediaID: e.show.ID, UnitID: &e.ep.ID, Content: "ep"})
	if r.AuthorLiked {
		t.Fatal("expected unit review to not inherit the series like")
	}

	if _, err := e.svc.Review(ctx, e.user, ReviewInput{Kind: "anime", MediaID: e.show.ID}); !isField(err, "content") {
		t.Fatalf("expected empty review to be rejected, got %v", err)
	}

	series, _ := e.svc.Reviews(ctx, media.KindAnime, e.show.ID, nil, "", 10)
	if len(series) != 1 {
		t.Fatalf("expected one series review, got %d", len(series))
	}
}
