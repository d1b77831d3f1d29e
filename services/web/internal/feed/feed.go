// Package feed serves the social post feed: pages decorated with like and
// reply counts, composing and editing posts, likes and comment threads.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
)

const MaxContentRunes = 2000

var (
	ErrEmptyContent   = errors.New("content is empty")
	ErrContentTooLong = errors.New("content is too long")
	ErrAuthRequired   = errors.New("sign in required")
)

// Item is a post with its derived counters for one viewer.
type Item struct {
	store.Post
	Likes         int  `json:"likes"`
	LikedByViewer bool `json:"liked_by_viewer"`
	Replies       int  `json:"replies"`
}

// Page is one page of the feed. Errors names the sections that failed to
// load; their counters are reported as zero.
type Page struct {
	Items      []Item            `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}

type LikeState struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"`
	Likes  int    `json:"likes"`
}

type Service struct {
	posts  store.Posts
	events *events.Publisher
	log    *zap.Logger
}

func NewService(posts store.Posts, pub *events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{posts: posts, events: pub, log: log}
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return "", ErrContentTooLong
	}
	return content, nil
}

// Page returns the global feed, newest first.
func (s *Service) Page(ctx context.Context, viewerID, cursor string, limit int) (Page, error) {
	posts, next, err := s.posts.List(ctx, cursor, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list posts: %w", err)
	}
	items, sectionErrs := s.Decorate(ctx, viewerID, posts)
	return Page{Items: items, NextCursor: next, Errors: sectionErrs}, nil
}

// UserPage returns one author's posts.
func (s *Service) UserPage(ctx context.Context, userID, viewerID, cursor string, limit int) (Page, error) {
	posts, next, err := s.posts.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list user posts: %w", err)
	}
	items, sectionErrs := s.Decorate(ctx, viewerID, posts)
	return Page{Items: items, NextCursor: next, Errors: sectionErrs}, nil
}

// ForMedia returns recent posts attached to a media entity.
func (s *Service) ForMedia(ctx context.Context, kind media.Kind, mediaID, viewerID string, limit int) (Page, error) {
	posts, err := s.posts.ListForMedia(ctx, kind, mediaID, limit)
	if err != nil {
		return Page{}, fmt.Errorf("list media posts: %w", err)
	}
	items, sectionErrs := s.Decorate(ctx, viewerID, posts)
	return Page{Items: items, Errors: sectionErrs}, nil
}

// Decorate loads like counts, the viewer's likes and reply counts in
// parallel. A failed section leaves its counters at zero.
func (s *Service) Decorate(ctx context.Context, viewerID string, posts []store.Post) ([]Item, map[string]string) {
	items := make([]Item, len(posts))
	ids := make([]string, len(posts))
	for i, p := range posts {
		items[i] = Item{Post: p}
		ids[i] = p.ID
	}
	if len(posts) == 0 {
		return items, nil
	}

	var (
		likes   map[string]int
		liked   map[string]bool
		replies map[string]int
		mu      sync.Mutex
		failed  map[string]string
	)
	section := func(name string, err error) error {
		if err != nil {
			s.log.Warn("feed section failed", zap.String("section", name), zap.Error(err))
			mu.Lock()
			if failed == nil {
				failed = make(map[string]string)
			}
			failed[name] = err.Error()
			mu.Unlock()
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		likes, err = s.posts.LikeCounts(gctx, ids)
		return section("likes", err)
	})
	if viewerID != "" {
		g.Go(func() error {
			var err error
			liked, err = s.posts.LikedBy(gctx, viewerID, ids)
			return section("liked", err)
		})
	}
	g.Go(func() error {
		var err error
		replies, err = s.posts.ReplyCounts(gctx, ids)
		return section("replies", err)
	})
	_ = g.Wait()

	for i := range items {
		id := items[i].ID
		items[i].Likes = likes[id]
		items[i].LikedByViewer = liked[id]
		items[i].Replies = replies[id]
	}
	return items, failed
}

// Compose creates a post, optionally attached to a media entity.
func (s *Service) Compose(ctx context.Context, userID, content string, kind media.Kind, mediaID string) (Item, error) {
	if userID == "" {
		return Item{}, ErrAuthRequired
	}
	content, err := cleanContent(content)
	if err != nil {
		return Item{}, err
	}
	p, err := s.posts.Create(ctx, store.Post{UserID: userID, Content: content, MediaKind: kind, MediaID: mediaID})
	if err != nil {
		return Item{}, fmt.Errorf("create post: %w", err)
	}
	s.events.Publish(events.SubjectPostCreated, userID, map[string]any{"post_id": p.ID})
	return Item{Post: p}, nil
}

func (s *Service) Edit(ctx context.Context, userID, postID, content string) (store.Post, error) {
	if userID == "" {
		return store.Post{}, ErrAuthRequired
	}
	content, err := cleanContent(content)
	if err != nil {
		return store.Post{}, err
	}
	return s.posts.Update(ctx, postID, userID, content)
}

func (s *Service) Delete(ctx context.Context, userID, postID string) error {
	if userID == "" {
		return ErrAuthRequired
	}
	return s.posts.Delete(ctx, postID, userID)
}

// ToggleLike sets the viewer's like and returns the count recomputed from
// the likes table.
func (s *Service) ToggleLike(ctx context.Context, viewerID, postID string, like bool) (LikeState, error) {
	if viewerID == "" {
		return LikeState{}, ErrAuthRequired
	}
	var err error
	if like {
		err = s.posts.Like(ctx, postID, viewerID)
	} else {
		err = s.posts.Unlike(ctx, postID, viewerID)
	}
	if err != nil {
		return LikeState{}, err
	}
	counts, err := s.posts.LikeCounts(ctx, []string{postID})
	if err != nil {
		return LikeState{}, fmt.Errorf("count likes: %w", err)
	}
	n := counts[postID]
	if n < 0 {
		n = 0
	}
	if like {
		s.events.Publish(events.SubjectPostLiked, viewerID, map[string]any{"post_id": postID})
	}
	return LikeState{PostID: postID, Liked: like, Likes: n}, nil
}

// Reply adds a comment. parentID nil makes a root-level reply.
func (s *Service) Reply(ctx context.Context, userID, postID string, parentID *string, content string) (store.Comment, error) {
	if userID == "" {
		return store.Comment{}, ErrAuthRequired
	}
	content, err := cleanContent(content)
	if err != nil {
		return store.Comment{}, err
	}
	if parentID != nil && strings.TrimSpace(*parentID) == "" {
		parentID = nil
	}
	return s.posts.CreateComment(ctx, store.Comment{PostID: postID, UserID: userID, ParentID: parentID, Content: content})
}

// Node is a comment with its replies, oldest first.
type Node struct {
	store.Comment
	Replies []*Node `json:"replies"`
}

// Thread returns the comment tree of a post. Comments whose parent is
// missing are promoted to the root.
func (s *Service) Thread(ctx context.Context, postID string) ([]*Node, error) {
	if _, err := s.posts.ByID(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.posts.Comments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("comments: %w", err)
	}
	return BuildThread(comments), nil
}

func BuildThread(comments []store.Comment) []*Node {
	nodes := make(map[string]*Node, len(comments))
	for _, c := range comments {
		nodes[c.ID] = &Node{Comment: c, Replies: []*Node{}}
	}
	roots := []*Node{}
	for _, c := range comments {
		n := nodes[c.ID]
		if c.ParentID != nil {
			if parent, ok := nodes[*c.ParentID]; ok {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}
