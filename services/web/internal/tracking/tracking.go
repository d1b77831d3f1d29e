// Package tracking validates and records marks, logs and reviews, keeping
// the stats cache and downstream consumers in step with every write.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/events"
	"github.com/example/anitrack/internal/statskeys"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/statscache"
	"github.com/example/anitrack/services/web/internal/store"
)

const (
	MaxStars      = 10
	MaxRating     = 100
	MaxNoteRunes  = 5000
	MaxReviewText = 20000
)

var (
	ErrInvalid      = errors.New("invalid input")
	ErrAuthRequired = errors.New("sign in required")
)

// FieldError names the offending input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }
func (e *FieldError) Unwrap() error { return ErrInvalid }

func invalid(field, msg string) error {
	return &FieldError{Field: field, Message: msg}
}

type Service struct {
	media   store.Media
	marks   store.Marks
	logs    store.Logs
	reviews store.Reviews
	cache   statscache.Cache
	events  *events.Publisher
	log     *zap.Logger
}

func NewService(s store.Stores, cache statscache.Cache, pub *events.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		media: s.Media, marks: s.Marks, logs: s.Logs, reviews: s.Reviews,
		cache: cache, events: pub, log: log,
	}
}

// changed evicts the local stats for one media entity, tells the other
// instances to do the same and emits the tracker event.
func (s *Service) changed(ctx context.Context, subject, userID string, kind media.Kind, mediaID string, props map[string]any) {
	keys := statskeys.For(userID, string(kind), mediaID)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, keys...); err != nil {
			s.log.Warn("stats cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
		}
	}
	s.events.Invalidate(userID, keys, "")
	if props == nil {
		props = map[string]any{}
	}
	props["kind"] = string(kind)
	props["media_id"] = mediaID
	s.events.Publish(subject, userID, props)
}

func parseKind(s string) (media.Kind, error) {
	k, ok := media.ParseKind(s)
	if !ok {
		return "", invalid("kind", "must be anime or manga")
	}
	return k, nil
}

func checkRating(field string, v *int) error {
	if v != nil && (*v < 0 || *v > MaxRating) {
		return invalid(field, fmt.Sprintf("must be between 0 and %d", MaxRating))
	}
	return nil
}

// ─── marks ──────────────────────────────────────────────────────────────────

type MarkInput struct {
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Mark       string `json:"mark"`
	Stars      *int   `json:"stars,omitempty"`
}

type validMark struct {
	target  media.TargetType
	kind    media.Kind
	mediaID string
}

// resolveTarget validates the target and finds the media entity it belongs to.
func (s *Service) resolveTarget(ctx context.Context, in MarkInput, checkStars bool) (validMark, error) {
	tt, ok := media.ParseTargetType(in.TargetType)
	if !ok {
		return validMark{}, invalid("target_type", "must be anime, manga, anime_episode or manga_chapter")
	}
	if !store.ValidMark(in.Mark) {
		return validMark{}, invalid("mark", "must be watched, liked, watchlist or rating")
	}
	if checkStars {
		if in.Mark == store.MarkRating {
			if in.Stars == nil {
				return validMark{}, invalid("stars", "required for rating")
			}
			if *in.Stars < 0 || *in.Stars > MaxStars {
				return validMark{}, invalid("stars", fmt.Sprintf("must be between 0 and %d", MaxStars))
			}
		} else if in.Stars != nil {
			return validMark{}, invalid("stars", "only allowed for rating")
		}
	}
	id := strings.TrimSpace(in.TargetID)
	if id == "" {
		return validMark{}, invalid("target_id", "required")
	}
	kind := tt.Kind()
	if tt.IsUnit() {
		u, err := s.media.UnitByID(ctx, kind, id)
		if err != nil {
			return validMark{}, err
		}
		return validMark{target: tt, kind: kind, mediaID: u.MediaID}, nil
	}
	m, err := s.media.ByID(ctx, kind, id)
	if err != nil {
		return validMark{}, err
	}
	return validMark{target: tt, kind: kind, mediaID: m.ID}, nil
}

func (s *Service) SetMark(ctx context.Context, userID string, in MarkInput) (store.Mark, error) {
	if userID == "" {
		return store.Mark{}, ErrAuthRequired
	}
	v, err := s.resolveTarget(ctx, in, true)
	if err != nil {
		return store.Mark{}, err
	}
	m, err := s.marks.Set(ctx, store.Mark{
		UserID: userID, TargetType: v.target, TargetID: strings.TrimSpace(in.TargetID),
		Mark: in.Mark, Stars: in.Stars,
	})
	if err != nil {
		return store.Mark{}, fmt.Errorf("set mark: %w", err)
	}
	s.changed(ctx, events.SubjectMarkChanged, userID, v.kind, v.mediaID, map[string]any{
		"target_type": string(v.target), "target_id": m.TargetID, "mark": m.Mark, "set": true,
	})
	return m, nil
}

func (s *Service) ClearMark(ctx context.Context, userID string, in MarkInput) error {
	if userID == "" {
		return ErrAuthRequired
	}
	v, err := s.resolveTarget(ctx, in, false)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(in.TargetID)
	if err := s.marks.Clear(ctx, userID, v.target, id, in.Mark); err != nil {
		return fmt.Errorf("clear mark: %w", err)
	}
	s.changed(ctx, events.SubjectMarkChanged, userID, v.kind, v.mediaID, map[string]any{
		"target_type": string(v.target), "target_id": id, "mark": in.Mark, "set": false,
	})
	return nil
}

// Marks returns the viewer's marks on an entity and all of its units.
func (s *Service) Marks(ctx context.Context, userID string, kind media.Kind, mediaID string) ([]store.Mark, error) {
	if userID == "" {
		return []store.Mark{}, nil
	}
	return s.marks.ForUserMedia(ctx, userID, kind, mediaID)
}

// ─── units ──────────────────────────────────────────────────────────────────

// checkUnit verifies that unitID is a unit of the given entity.
func (s *Service) checkUnit(ctx context.Context, kind media.Kind, mediaID string, unitID *string) (*string, error) {
	if unitID == nil || strings.TrimSpace(*unitID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*unitID)
	u, err := s.media.UnitByID(ctx, kind, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid("unit_id", "unknown "+kind.Unit())
		}
		return nil, err
	}
	if u.MediaID != mediaID {
		return nil, invalid("unit_id", kind.Unit()+" belongs to another "+string(kind))
	}
	return &id, nil
}

// ─── logs ───────────────────────────────────────────────────────────────────

type LogInput struct {
	Kind       string     `json:"kind"`
	MediaID    string     `json:"media_id"`
	UnitID     *string    `json:"unit_id,omitempty"`
	Rating     *int       `json:"rating,omitempty"`
	Note       string     `json:"note"`
	Visibility string     `json:"visibility"`
	Liked      bool       `json:"liked"`
	LoggedAt   *time.Time `json:"logged_at,omitempty"`
	ReviewID   *string    `json:"review_id,omitempty"`
}

func (s *Service) Log(ctx context.Context, userID string, in LogInput) (store.LogEntry, error) {
	if userID == "" {
		return store.LogEntry{}, ErrAuthRequired
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return store.LogEntry{}, err
	}
	if err := checkRating("rating", in.Rating); err != nil {
		return store.LogEntry{}, err
	}
	vis, ok := media.ParseVisibility(in.Visibility)
	if !ok {
		return store.LogEntry{}, invalid("visibility", "must be public, friends or private")
	}
	note := strings.TrimSpace(in.Note)
	if len([]rune(note)) > MaxNoteRunes {
		return store.LogEntry{}, invalid("note", "too long")
	}
	m, err := s.media.ByID(ctx, kind, strings.TrimSpace(in.MediaID))
	if err != nil {
		return store.LogEntry{}, err
	}
	unitID, err := s.checkUnit(ctx, kind, m.ID, in.UnitID)
	if err != nil {
		return store.LogEntry{}, err
	}

	var reviewID *string
	if in.ReviewID != nil && strings.TrimSpace(*in.ReviewID) != "" {
		r, err := s.reviews.ByID(ctx, strings.TrimSpace(*in.ReviewID))
		if err != nil {
			return store.LogEntry{}, err
		}
		if r.UserID != userID || r.Kind != kind || r.MediaID != m.ID {
			return store.LogEntry{}, store.ErrNotFoundOrForbidden
		}
		reviewID = &r.ID
	}

	entry := store.LogEntry{
		UserID: userID, Kind: kind, MediaID: m.ID, UnitID: unitID, Rating: in.Rating,
		Note: note, Visibility: vis, Liked: in.Liked, ReviewID: reviewID,
	}
	if in.LoggedAt != nil {
		entry.LoggedAt = in.LoggedAt.UTC()
	}
	l, err := s.logs.Create(ctx, entry)
	if err != nil {
		return store.LogEntry{}, fmt.Errorf("create log: %w", err)
	}
	props := map[string]any{"log_id": l.ID}
	if unitID != nil {
		props["unit_id"] = *unitID
	}
	s.changed(ctx, events.SubjectLogCreated, userID, kind, m.ID, props)
	return l, nil
}

// Journal lists a user's logs for a viewer, newest first.
func (s *Service) Journal(ctx context.Context, userID, viewerID, cursor string, limit int) ([]store.LogEntry, string, error) {
	return s.logs.ListByUser(ctx, userID, viewerID, cursor, limit)
}

// ─── reviews ────────────────────────────────────────────────────────────────

type ReviewInput struct {
	Kind             string  `json:"kind"`
	MediaID          string  `json:"media_id"`
	UnitID           *string `json:"unit_id,omitempty"`
	Rating           *int    `json:"rating,omitempty"`
	Content          string  `json:"content"`
	ContainsSpoilers bool    `json:"contains_spoilers"`
	Visibility       string  `json:"visibility"`
}

func (s *Service) Review(ctx context.Context, userID string, in ReviewInput) (store.Review, error) {
	if userID == "" {
		return store.Review{}, ErrAuthRequired
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return store.Review{}, err
	}
	if err := checkRating("rating", in.Rating); err != nil {
		return store.Review{}, err
	}
	vis, ok := media.ParseVisibility(in.Visibility)
	if !ok {
		return store.Review{}, invalid("visibility", "must be public, friends or private")
	}
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Rating == nil {
		return store.Review{}, invalid("content", "a review needs text or a rating")
	}
	if len([]rune(content)) > MaxReviewText {
		return store.Review{}, invalid("content", "too long")
	}
	m, err := s.media.ByID(ctx, kind, strings.TrimSpace(in.MediaID))
	if err != nil {
		return store.Review{}, err
	}
	unitID, err := s.checkUnit(ctx, kind, m.ID, in.UnitID)
	if err != nil {
		return store.Review{}, err
	}

	target, targetID := kind.SeriesTarget(), m.ID
	if unitID != nil {
		target, targetID = kind.UnitTarget(), *unitID
	}
	liked := false
	marks, err := s.marks.ForTarget(ctx, userID, target, targetID)
	if err != nil {
		s.log.Warn("author liked lookup failed", zap.Error(err))
	}
	for _, mk := range marks {
		if mk.Mark == store.MarkLiked {
			liked = true
		}
	}

	r, err := s.reviews.Create(ctx, store.Review{
		UserID: userID, Kind: kind, MediaID: m.ID, UnitID: unitID, Rating: in.Rating,
		Content: content, ContainsSpoilers: in.ContainsSpoilers, Visibility: vis, AuthorLiked: liked,
	})
	if err != nil {
		return store.Review{}, fmt.Errorf("create review: %w", err)
	}
	s.changed(ctx, events.SubjectReviewCreated, userID, kind, m.ID, map[string]any{"review_id": r.ID})
	return r, nil
}

// Reviews lists reviews of an entity (or one unit of it) visible to viewerID.
func (s *Service) Reviews(ctx context.Context, kind media.Kind, mediaID string, unitID *string, viewerID string, limit int) ([]store.Review, error) {
	return s.reviews.ListForMedia(ctx, kind, mediaID, unitID, viewerID, limit)
}
