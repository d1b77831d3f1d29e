package pages

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/example/anitrack/services/web/internal/completions"
	"github.com/example/anitrack/services/web/internal/feed"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/statscache"
	"github.com/example/anitrack/services/web/internal/store"
)

type failingTags struct{ store.Media }

func (failingTags) Tags(context.Context, media.Kind, string) ([]string, error) {
	return nil, errors.New("tags down")
}

func newService(s store.Stores) *Service {
	c := completions.NewService(s.Completions, s.Reviews, statscache.NewMemory(32, time.Minute), nil)
	return NewService(s, feed.NewService(s.Posts, nil, nil), c, nil, nil)
}

type world struct {
	s     store.Stores
	alice store.Profile
	bob   store.Profile
	show  store.MediaItem
	ep    store.Unit
}

func newWorld(t *testing.T) world {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStores()
	alice, _ := s.Profiles.Create(ctx, store.Profile{Username: "alice"})
	bob, _ := s.Profiles.Create(ctx, store.Profile{Username: "bob"})
	show, err := s.Media.CreateMedia(ctx, store.MediaItem{Kind: media.KindAnime, Slug: "frieren", Title: "Frieren", Units: 2, PosterURL: "/poster.jpg"})
	if err != nil {
		t.Fatalf("create media: %v", err)
	}
	ep, _ := s.Media.CreateUnit(ctx, store.Unit{Kind: media.KindAnime, MediaID: show.ID, Number: 1})
	_, _ = s.Media.CreateUnit(ctx, store.Unit{Kind: media.KindAnime, MediaID: show.ID, Number: 2})
	_ = s.Media.AddTags(ctx, media.KindAnime, show.ID, "fantasy")
	_ = s.Media.AddBackdrop(ctx, media.KindAnime, show.ID, store.Backdrop{URL: "/b.jpg", Width: 1920, VoteAverage: 5})
	return world{s: s, alice: alice, bob: bob, show: show, ep: ep}
}

func TestPickBackdrop(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	if _, ok := PickBackdrop(nil, rng); ok {
		t.Fatal("expected no pick without candidates")
	}

	cands := []store.Backdrop{
		{URL: "/low.jpg", Width: 800, VoteAverage: 10},
		{URL: "/a.jpg", Width: 1920, VoteAverage: 5},
		{URL: "/b.jpg", Width: 1920, VoteAverage: 4},
		{URL: "/c.jpg", Width: 3840, VoteAverage: 4},
		{URL: "/d.jpg", Width: 1280, VoteAverage: 3},
		{URL: "/e.jpg", Width: 1280, VoteAverage: 2},
		{URL: "/f.jpg", Width: 1280, VoteAverage: 1},
	}
	for i := 0; i < 200; i++ {
		url, ok := PickBackdrop(cands, rng)
		if !ok {
			t.Fatal("expected a pick")
		}
		if !strings.HasPrefix(url, "https://image.tmdb.org/t/p/original/") {
			t.Fatalf("expected normalized original url, got %q", url)
		}
		if strings.HasSuffix(url, "/low.jpg") || strings.HasSuffix(url, "/f.jpg") {
			t.Fatalf("picked outside the top pool: %q", url)
		}
	}
}

func TestMediaPage_NotFound(t *testing.T) {
	w := newWorld(t)
	_, err := newService(w.s).MediaPage(context.Background(), media.KindManga, "frieren", "")
	if !errors.Is(err, store.ErrNotFound) || err.Error() != "manga not found" {
		t.Fatalf("expected manga not found, got %v", err)
	}
}

func TestMediaPage_Sections(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	rating := 85
	_, _ = w.s.Reviews.Create(ctx, store.Review{UserID: w.bob.ID, Kind: media.KindAnime, MediaID: w.show.ID, Rating: &rating, Content: "good", Visibility: media.VisibilityPublic})
	_, _ = w.s.Reviews.Create(ctx, store.Review{UserID: w.bob.ID, Kind: media.KindAnime, MediaID: w.show.ID, Content: "hidden", Visibility: media.VisibilityPrivate})
	_, _ = w.s.Marks.Set(ctx, store.Mark{UserID: w.alice.ID, TargetType: media.TargetAnimeEpisode, TargetID: w.ep.ID, Mark: store.MarkWatched})

	page, err := newService(w.s).MediaPage(ctx, media.KindAnime, "frieren", w.alice.ID)
	if err != nil {
		t.Fatalf("media page: %v", err)
	}
	if len(page.Tags) != 1 || page.Backdrop == "" || page.Errors != nil {
		t.Fatalf("unexpected page %+v", page)
	}
	if len(page.Reviews) != 1 || page.Reviews[0].HalfStars == nil || *page.Reviews[0].HalfStars != 9 {
		t.Fatalf("expected one public review with 9 half stars, got %+v", page.Reviews)
	}
	if page.Viewer == nil || page.Viewer.Progress == nil || page.Viewer.Progress.Current != 1 || len(page.Viewer.Marks) != 1 {
		t.Fatalf("unexpected viewer state %+v", page.Viewer)
	}

	anon, _ := newService(w.s).MediaPage(ctx, media.KindAnime, "frieren", "")
	if anon.Viewer != nil {
		t.Fatal("expected no viewer section for anonymous viewer")
	}
}

func TestMediaPage_SectionFailureIsolated(t *testing.T) {
	w := newWorld(t)
	s := w.s
	s.Media = failingTags{w.s.Media}
	page, err := newService(s).MediaPage(context.Background(), media.KindAnime, "frieren", "")
	if err != nil {
		t.Fatalf("media page: %v", err)
	}
	if page.Errors["tags"] == "" {
		t.Fatalf("expected tags section error, got %v", page.Errors)
	}
	if page.Backdrop == "" || page.Tags == nil {
		t.Fatalf("expected other sections intact, got %+v", page)
	}
}

func TestUnitPage(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	svc := newService(w.s)

	page, err := svc.UnitPage(ctx, media.KindAnime, "frieren", 2, "")
	if err != nil {
		t.Fatalf("unit page: %v", err)
	}
	if page.Prev == nil || *page.Prev != 1 || page.Next != nil {
		t.Fatalf("unexpected navigation prev=%v next=%v", page.Prev, page.Next)
	}
	if _, err := svc.UnitPage(ctx, media.KindAnime, "frieren", 7, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActivity_MergedAndFiltered(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, _ = w.s.Logs.Create(ctx, store.LogEntry{UserID: w.alice.ID, Kind: media.KindAnime, MediaID: w.show.ID, Visibility: media.VisibilityPublic})
	_, _ = w.s.Reviews.Create(ctx, store.Review{UserID: w.alice.ID, Kind: media.KindAnime, MediaID: w.show.ID, Content: "secret", Visibility: media.VisibilityPrivate})
	_, _ = w.s.Posts.Create(ctx, store.Post{UserID: w.alice.ID, Content: "hello"})
	svc := newService(w.s)

	act, err := svc.Activity(ctx, "Alice", w.bob.ID, 10)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(act.Entries) != 2 || act.Entries[0].Type != "post" || act.Entries[1].Type != "log" {
		t.Fatalf("unexpected entries for other viewer %+v", act.Entries)
	}

	own, _ := svc.Activity(ctx, "alice", w.alice.ID, 10)
	if len(own.Entries) != 3 {
		t.Fatalf("expected owner to see 3 entries, got %d", len(own.Entries))
	}

	if _, err := svc.Activity(ctx, "nobody", "", 10); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfile(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	_, _ = w.s.Marks.Set(ctx, store.Mark{UserID: w.alice.ID, TargetType: media.TargetAnime, TargetID: w.show.ID, Mark: store.MarkWatched})

	page, err := newService(w.s).Profile(ctx, "ALICE", "")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if page.Tracked != 1 || page.Completed != 1 || page.Profile.Username != "alice" {
		t.Fatalf("unexpected profile page %+v", page)
	}
}
