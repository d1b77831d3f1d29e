// Package store defines persistence contracts for the web service, with
// Postgres implementations for production and in-memory ones for development
// and tests. Ownership is enforced inside the queries: a write against a row
// the caller does not own behaves exactly like a write against a missing row.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/anitrack/internal/trending"
	"github.com/example/anitrack/services/web/internal/media"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrNotFoundOrForbidden = errors.New("not found or not owned by user")
	ErrConflict            = errors.New("conflict")
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	AvatarURL    string    `json:"avatar_url"`
	Role         string    `json:"role,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// MediaItem is one anime or manga. Units is the episode or chapter count,
// zero when unknown.
type MediaItem struct {
	Kind      media.Kind `json:"kind"`
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	Year      int        `json:"year,omitempty"`
	Units     int        `json:"units,omitempty"`
	PosterURL string     `json:"poster_url,omitempty"`
	TMDBID    string     `json:"tmdb_id,omitempty"`
	TVDBID    string     `json:"tvdb_id,omitempty"`
}

// Unit is one episode or chapter.
type Unit struct {
	Kind    media.Kind `json:"kind"`
	ID      string     `json:"id"`
	MediaID string     `json:"media_id"`
	Number  int        `json:"number"`
	Title   string     `json:"title,omitempty"`
}

type Backdrop struct {
	URL         string  `json:"url"`
	Width       int     `json:"width"`
	VoteAverage float64 `json:"vote_average"`
}

type ExternalLink struct {
	AnimeID    string    `json:"anime_id"`
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Year       int       `json:"year,omitempty"`
	Episodes   int       `json:"episodes,omitempty"`
	Confidence int       `json:"confidence"`
	MatchedAt  time.Time `json:"matched_at"`
}

type Post struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Content   string     `json:"content"`
	MediaKind media.Kind `json:"media_kind,omitempty"`
	MediaID   string     `json:"media_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ParentID  *string   `json:"parent_comment_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Review struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Username         string           `json:"username,omitempty"`
	Kind             media.Kind       `json:"kind"`
	MediaID          string           `json:"media_id"`
	UnitID           *string          `json:"unit_id,omitempty"`
	Rating           *int             `json:"rating,omitempty"`
	Content          string           `json:"content"`
	ContainsSpoilers bool             `json:"contains_spoilers"`
	Visibility       media.Visibility `json:"visibility"`
	AuthorLiked      bool             `json:"author_liked"`
	CreatedAt        time.Time        `json:"created_at"`
}

type LogEntry struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user_id"`
	Kind       media.Kind       `json:"kind"`
	MediaID    string           `json:"media_id"`
	MediaSlug  string           `json:"media_slug,omitempty"`
	MediaTitle string           `json:"media_title,omitempty"`
	UnitID     *string          `json:"unit_id,omitempty"`
	Rating     *int             `json:"rating,omitempty"`
	Note       string           `json:"note"`
	Visibility media.Visibility `json:"visibility"`
	Liked      bool             `json:"liked"`
	LoggedAt   time.Time        `json:"logged_at"`
	ReviewID   *string          `json:"review_id,omitempty"`
}

const (
	MarkWatched   = "watched"
	MarkLiked     = "liked"
	MarkWatchlist = "watchlist"
	MarkRating    = "rating"
)

func ValidMark(m string) bool {
	switch m {
	case MarkWatched, MarkLiked, MarkWatchlist, MarkRating:
		return true
	}
	return false
}

type Mark struct {
	UserID     string           `json:"user_id"`
	TargetType media.TargetType `json:"target_type"`
	TargetID   string           `json:"target_id"`
	Mark       string           `json:"mark"`
	Stars      *int             `json:"stars,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ResolveProgress applies the series-level watched mark and caps current at total.
func ResolveProgress(total, seen int, seriesWatched bool) Progress {
	if seriesWatched {
		return Progress{Current: total, Total: total}
	}
	if total > 0 && seen > total {
		seen = total
	}
	return Progress{Current: seen, Total: total}
}

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

type Engagement struct {
	Reviewed int `json:"reviewed"`
	Rated    int `json:"rated"`
}

// CompletionRow is the per-user summary of one media entity the user has
// touched through a mark, log or review.
type CompletionRow struct {
	Kind      media.Kind `json:"kind"`
	MediaID   string     `json:"media_id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	PosterURL string     `json:"poster_url,omitempty"`
	Current   int        `json:"current"`
	Total     int        `json:"total"`
	Reviewed  int        `json:"reviewed"`
	Rated     int        `json:"rated"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type Profiles interface {
	Create(ctx context.Context, p Profile) (Profile, error)
	ByID(ctx context.Context, id string) (Profile, error)
	ByUsername(ctx context.Context, username string) (Profile, error)
	// ByLogin returns the profile with its password hash.
	ByLogin(ctx context.Context, login string) (Profile, error)
}

type Media interface {
	BySlug(ctx context.Context, kind media.Kind, slug string) (MediaItem, error)
	ByID(ctx context.Context, kind media.Kind, id string) (MediaItem, error)
	Unit(ctx context.Context, kind media.Kind, mediaID string, number int) (Unit, error)
	UnitByID(ctx context.Context, kind media.Kind, unitID string) (Unit, error)
	Tags(ctx context.Context, kind media.Kind, mediaID string) ([]string, error)
	Backdrops(ctx context.Context, kind media.Kind, mediaID string) ([]Backdrop, error)
	UpsertExternalLink(ctx context.Context, l ExternalLink) error
	SetLegacyExternalID(ctx context.Context, animeID, source, externalID string) error
	ExternalLinks(ctx context.Context, animeID string) ([]ExternalLink, error)

	CreateMedia(ctx context.Context, m MediaItem) (MediaItem, error)
	CreateUnit(ctx context.Context, u Unit) (Unit, error)
	AddTags(ctx context.Context, kind media.Kind, mediaID string, tags ...string) error
	AddBackdrop(ctx context.Context, kind media.Kind, mediaID string, b Backdrop) error
}

func AnimeBySlug(ctx context.Context, m Media, slug string) (MediaItem, error) {
	return m.BySlug(ctx, media.KindAnime, slug)
}

func AnimeByID(ctx context.Context, m Media, id string) (MediaItem, error) {
	return m.ByID(ctx, media.KindAnime, id)
}

func MangaBySlug(ctx context.Context, m Media, slug string) (MediaItem, error) {
	return m.BySlug(ctx, media.KindManga, slug)
}

type Posts interface {
	Create(ctx context.Context, p Post) (Post, error)
	ByID(ctx context.Context, id string) (Post, error)
	Update(ctx context.Context, postID, userID, content string) (Post, error)
	Delete(ctx context.Context, postID, userID string) error
	List(ctx context.Context, cursor string, limit int) ([]Post, string, error)
	ListByUser(ctx context.Context, userID, cursor string, limit int) ([]Post, string, error)
	ListForMedia(ctx context.Context, kind media.Kind, mediaID string, limit int) ([]Post, error)

	// Like and Unlike are idempotent. Like on a missing post is ErrNotFound.
	Like(ctx context.Context, postID, userID string) error
	Unlike(ctx context.Context, postID, userID string) error
	LikeCounts(ctx context.Context, postIDs []string) (map[string]int, error)
	LikedBy(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	// ReplyCounts counts root-level comments per post.
	ReplyCounts(ctx context.Context, postIDs []string) (map[string]int, error)

	CreateComment(ctx context.Context, c Comment) (Comment, error)
	Comments(ctx context.Context, postID string) ([]Comment, error)
}

type Reviews interface {
	Create(ctx context.Context, r Review) (Review, error)
	ByID(ctx context.Context, id string) (Review, error)
	// ListForMedia returns reviews visible to viewerID. A nil unitID lists
	// series-level reviews only.
	ListForMedia(ctx context.Context, kind media.Kind, mediaID string, unitID *string, viewerID string, limit int) ([]Review, error)
	ListByUser(ctx context.Context, userID, viewerID string, limit int) ([]Review, error)
	Engagement(ctx context.Context, userID string, kind media.Kind, mediaID string) (Engagement, error)
}

type Logs interface {
	Create(ctx context.Context, l LogEntry) (LogEntry, error)
	// ListByUser is the journal, newest first, filtered for viewerID.
	ListByUser(ctx context.Context, userID, viewerID, cursor string, limit int) ([]LogEntry, string, error)
	ListForMedia(ctx context.Context, userID string, kind media.Kind, mediaID string) ([]LogEntry, error)
}

type Marks interface {
	// Set upserts on (user, target type, target id, mark).
	Set(ctx context.Context, m Mark) (Mark, error)
	// Clear is idempotent.
	Clear(ctx context.Context, userID string, targetType media.TargetType, targetID, mark string) error
	ForTarget(ctx context.Context, userID string, targetType media.TargetType, targetID string) ([]Mark, error)
	// ForUserMedia returns marks on the media entity and all of its units.
	ForUserMedia(ctx context.Context, userID string, kind media.Kind, mediaID string) ([]Mark, error)
}

type Completions interface {
	List(ctx context.Context, userID string) ([]CompletionRow, error)
	Progress(ctx context.Context, userID string, kind media.Kind, mediaID string) (Progress, error)
}

// Stores bundles one backend's implementation of every contract.
type Stores struct {
	Profiles    Profiles
	Media       Media
	Posts       Posts
	Reviews     Reviews
	Logs        Logs
	Marks       Marks
	Completions Completions
	Trending    trending.Source
}

// Keyset cursor over (time, id), newest first.

func encodeCursor(t time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", t.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(c string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", errors.New("malformed cursor")
	}
	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}

// ErrBadCursor wraps cursor decoding failures so handlers can answer 400.
var ErrBadCursor = errors.New("invalid cursor")

func parseCursor(c string) (time.Time, string, error) {
	t, id, err := decodeCursor(c)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return t, id, nil
}
