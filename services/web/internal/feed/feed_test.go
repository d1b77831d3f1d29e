package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/example/anitrack/services/web/internal/store"
)

type failingCounts struct {
	store.Posts
}

func (failingCounts) LikeCounts(context.Context, []string) (map[string]int, error) {
	return nil, errors.New("boom")
}

func setup(t *testing.T) (*Service, store.Stores, string, string) {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStores()
	alice, err := s.Profiles.Create(ctx, store.Profile{Username: "alice"})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := s.Profiles.Create(ctx, store.Profile{Username: "bob"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	return NewService(s.Posts, nil, nil), s, alice.ID, bob.ID
}

func TestCompose_RejectsWhitespace(t *testing.T) {
	svc, s, alice, _ := setup(t)
	ctx := context.Background()

	if _, err := svc.Compose(ctx, alice, "   \n\t", "", ""); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	posts, _, _ := s.Posts.List(ctx, "", 10)
	if len(posts) != 0 {
		t.Fatalf("expected no write, got %d posts", len(posts))
	}
	if _, err := svc.Compose(ctx, "", "hello", "", ""); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}

	item, err := svc.Compose(ctx, alice, "  hello  ", "", "")
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if item.Content != "hello" {
		t.Fatalf("expected trimmed content, got %q", item.Content)
	}
}

func TestToggleLike(t *testing.T) {
	svc, _, alice, bob := setup(t)
	ctx := context.Background()
	post, _ := svc.Compose(ctx, alice, "hello", "", "")

	if _, err := svc.ToggleLike(ctx, "", post.ID, true); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}

	st, err := svc.ToggleLike(ctx, bob, post.ID, true)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !st.Liked || st.Likes != 1 {
		t.Fatalf("expected liked with 1, got %+v", st)
	}
	st, _ = svc.ToggleLike(ctx, bob, post.ID, true)
	if st.Likes != 1 {
		t.Fatalf("expected repeated like to stay at 1, got %d", st.Likes)
	}

	st, _ = svc.ToggleLike(ctx, bob, post.ID, false)
	if st.Liked || st.Likes != 0 {
		t.Fatalf("expected unliked with 0, got %+v", st)
	}
	st, _ = svc.ToggleLike(ctx, bob, post.ID, false)
	if st.Likes != 0 {
		t.Fatalf("expected count to never go negative, got %d", st.Likes)
	}

	if _, err := svc.ToggleLike(ctx, bob, "missing", true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPage_Decorated(t *testing.T) {
	svc, _, alice, bob := setup(t)
	ctx := context.Background()
	p1, _ := svc.Compose(ctx, alice, "first", "", "")
	p2, _ := svc.Compose(ctx, alice, "second", "", "")
	_, _ = svc.ToggleLike(ctx, bob, p1.ID, true)
	_, _ = svc.Reply(ctx, bob, p1.ID, nil, "nice")

	page, err := svc.Page(ctx, bob, "", 10)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != p2.ID {
		t.Fatalf("expected newest first, got %+v", page.Items)
	}
	first := page.Items[1]
	if first.Likes != 1 || !first.LikedByViewer || first.Replies != 1 {
		t.Fatalf("unexpected counters %+v", first)
	}
	if page.Errors != nil {
		t.Fatalf("expected no section errors, got %v", page.Errors)
	}

	anon, _ := svc.Page(ctx, "", "", 10)
	if anon.Items[1].LikedByViewer {
		t.Fatal("anonymous viewer cannot have liked a post")
	}
}

func TestPage_SectionFailureDegrades(t *testing.T) {
	_, s, alice, _ := setup(t)
	ctx := context.Background()
	svc := NewService(failingCounts{s.Posts}, nil, nil)
	p, _ := svc.Compose(ctx, alice, "hello", "", "")
	_, _ = svc.Reply(ctx, alice, p.ID, nil, "self reply")

	page, err := svc.Page(ctx, alice, "", 10)
	if err != nil {
		t.Fatalf("page should not fail on count errors: %v", err)
	}
	if page.Errors["likes"] == "" {
		t.Fatalf("expected likes section error, got %v", page.Errors)
	}
	if page.Items[0].Likes != 0 || page.Items[0].Replies != 1 {
		t.Fatalf("expected zero likes and intact replies, got %+v", page.Items[0])
	}
}

func TestEditDelete_OwnerOnly(t *testing.T) {
	svc, _, alice, bob := setup(t)
	ctx := context.Background()
	p, _ := svc.Compose(ctx, alice, "hello", "", "")

	if _, err := svc.Edit(ctx, bob, p.ID, "mine now"); !errors.Is(err, store.ErrNotFoundOrForbidden) {
		t.Fatalf("expected ErrNotFoundOrForbidden, got %v", err)
	}
	if _, err := svc.Edit(ctx, alice, p.ID, " "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if err := svc.Delete(ctx, bob, p.ID); !errors.Is(err, store.ErrNotFoundOrForbidden) {
		t.Fatalf("expected ErrNotFoundOrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, alice, p.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
}

func TestThread(t *testing.T) {
	svc, _, alice, bob := setup(t)
	ctx := context.Background()
	p, _ := svc.Compose(ctx, alice, "hello", "", "")
	root, _ := svc.Reply(ctx, bob, p.ID, nil, "root")
	pid := root.ID
	_, _ = svc.Reply(ctx, alice, p.ID, &pid, "child")
	_, _ = svc.Reply(ctx, alice, p.ID, nil, "second root")

	nodes, err := svc.Thread(ctx, p.ID)
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	if len(nodes) != 2 || len(nodes[0].Replies) != 1 || nodes[0].Replies[0].Content != "child" {
		t.Fatalf("unexpected thread shape %+v", nodes)
	}
	if _, err := svc.Thread(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
