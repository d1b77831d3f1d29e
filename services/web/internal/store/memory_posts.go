package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/example/anitrack/services/web/internal/media"
)

type memPosts struct{ db *MemoryDB }

func (s memPosts) withAuthor(p Post) Post {
	prof := s.db.profiles[p.UserID]
	p.Username = prof.Username
	p.AvatarURL = prof.AvatarURL
	return p
}

func (s memPosts) Create(_ context.Context, p Post) (Post, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p.ID = uuid.NewString()
	p.CreatedAt = s.db.stamp()
	p.UpdatedAt = nil
	s.db.posts[p.ID] = p
	return s.withAuthor(p), nil
}

func (s memPosts) ByID(_ context.Context, id string) (Post, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	p, ok := s.db.posts[id]
	if !ok {
		return Post{}, ErrNotFound
	}
	return s.withAuthor(p), nil
}

func (s memPosts) Update(_ context.Context, postID, userID, content string) (Post, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.posts[postID]
	if !ok || p.UserID != userID {
		return Post{}, ErrNotFoundOrForbidden
	}
	now := s.db.stamp()
	p.Content = content
	p.UpdatedAt = &now
	s.db.posts[postID] = p
	return s.withAuthor(p), nil
}

func (s memPosts) Delete(_ context.Context, postID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.posts[postID]
	if !ok || p.UserID != userID {
		return ErrNotFoundOrForbidden
	}
	delete(s.db.posts, postID)
	delete(s.db.likes, postID)
	for id, c := range s.db.comments {
		if c.PostID == postID {
			delete(s.db.comments, id)
		}
	}
	return nil
}

func (s memPosts) page(filter func(Post) bool, cursor string, limit int) ([]Post, string, error) {
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
	var all []Post
	for _, p := range s.db.posts {
		if !filter(p) {
			continue
		}
		if hasCursor && !olderThanCursor(p.CreatedAt, p.ID, ct, cid) {
			continue
		}
		all = append(all, s.withAuthor(p))
	}
	sort.Slice(all, func(i, j int) bool {
		return newerFirst(all[i].CreatedAt, all[i].ID, all[j].CreatedAt, all[j].ID)
	})
	next := ""
	if len(all) > limit {
		last := all[limit-1]
		next = encodeCursor(last.CreatedAt, last.ID)
		all = all[:limit]
	}
	if all == nil {
		all = []Post{}
	}
	return all, next, nil
}

func (s memPosts) List(_ context.Context, cursor string, limit int) ([]Post, string, error) {
	return s.page(func(Post) bool { return true }, cursor, limit)
}

func (s memPosts) ListByUser(_ context.Context, userID, cursor string, limit int) ([]Post, string, error) {
	return s.page(func(p Post) bool { return p.UserID == userID }, cursor, limit)
}

func (s memPosts) ListForMedia(_ context.Context, kind media.Kind, mediaID string, limit int) ([]Post, error) {
	out, _, err := s.page(func(p Post) bool { return p.MediaKind == kind && p.MediaID == mediaID }, "", limit)
	return out, err
}

func (s memPosts) Like(_ context.Context, postID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.posts[postID]; !ok {
		return ErrNotFound
	}
	if s.db.likes[postID] == nil {
		s.db.likes[postID] = make(map[string]time.Time)
	}
	if _, ok := s.db.likes[postID][userID]; !ok {
		s.db.likes[postID][userID] = s.db.stamp()
	}
	return nil
}

func (s memPosts) Unlike(_ context.Context, postID, userID string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	delete(s.db.likes[postID], userID)
	return nil
}

func (s memPosts) LikeCounts(_ context.Context, postIDs []string) (map[string]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make(map[string]int, len(postIDs))
	for _, id := range postIDs {
		out[id] = len(s.db.likes[id])
	}
	return out, nil
}

func (s memPosts) LikedBy(_ context.Context, userID string, postIDs []string) (map[string]bool, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make(map[string]bool, len(postIDs))
	if userID == "" {
		return out, nil
	}
	for _, id := range postIDs {
		if _, ok := s.db.likes[id][userID]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s memPosts) ReplyCounts(_ context.Context, postIDs []string) (map[string]int, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := make(map[string]int, len(postIDs))
	want := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		out[id] = 0
		want[id] = true
	}
	for _, c := range s.db.comments {
		if c.ParentID == nil && want[c.PostID] {
			out[c.PostID]++
		}
	}
	return out, nil
}

func (s memPosts) CreateComment(_ context.Context, c Comment) (Comment, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.posts[c.PostID]; !ok {
		return Comment{}, ErrNotFound
	}
	if c.ParentID != nil {
		parent, ok := s.db.comments[*c.ParentID]
		if !ok || parent.PostID != c.PostID {
			return Comment{}, ErrNotFound
		}
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.db.stamp()
	s.db.comments[c.ID] = c
	c.Username = s.db.username(c.UserID)
	return c, nil
}

func (s memPosts) Comments(_ context.Context, postID string) ([]Comment, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	out := []Comment{}
	for _, c := range s.db.comments {
		if c.PostID == postID {
			c.Username = s.db.username(c.UserID)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
