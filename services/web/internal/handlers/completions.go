package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/internal/slug"
	"github.com/example/anitrack/services/web/internal/carousel"
	"github.com/example/anitrack/services/web/internal/completions"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
)

type statsQuery struct {
	userID  string
	kind    media.Kind
	mediaID string
	fresh   bool
}

func parseStatsQuery(w http.ResponseWriter, r *http.Request, rid string) (statsQuery, bool) {
	q := r.URL.Query()
	sq := statsQuery{
		userID:  strings.TrimSpace(q.Get("userId")),
		mediaID: strings.TrimSpace(q.Get("id")),
		fresh:   queryBool(r, "fresh"),
	}
	if sq.userID == "" || sq.mediaID == "" {
		api.BadRequest(w, "MISSING_PARAMS", "userId and id are required", rid, nil)
		return statsQuery{}, false
	}
	kind, ok := parseKind(w, rid, q.Get("kind"))
	if !ok {
		return statsQuery{}, false
	}
	sq.kind = kind
	return sq, true
}

// CompletionProgress handles GET /api/completions/progress. fresh=true
// bypasses the stats cache.
func CompletionProgress(svc *completions.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		sq, ok := parseStatsQuery(w, r, rid)
		if !ok {
			return
		}
		p, err := svc.Progress(r.Context(), sq.userID, sq.kind, sq.mediaID, sq.fresh)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

func CompletionEngagement(svc *completions.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		sq, ok := parseStatsQuery(w, r, rid)
		if !ok {
			return
		}
		e, err := svc.Engagement(r.Context(), sq.userID, sq.kind, sq.mediaID, sq.fresh)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, e)
	}
}

type completionsResponse struct {
	Items         []completions.Item `json:"items"`
	NextCursor    string             `json:"next_cursor,omitempty"`
	Total         int                `json:"total"`
	Progress      string             `json:"progress"`
	Sort          string             `json:"sort"`
	Buckets       map[string]int     `json:"buckets"`
	BucketOptions []string           `json:"bucket_options"`
	Layout        carousel.Hint      `json:"layout"`
}

// UserCompletions handles GET /v1/users/{username}/completions. Unknown
// progress or sort values fall back to all and recent.
func UserCompletions(svc *completions.Service, profiles store.Profiles, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		var kind media.Kind
		if raw := q.Get("kind"); raw != "" && raw != "all" {
			k, ok := parseKind(w, rid, raw)
			if !ok {
				return
			}
			kind = k
		}
		p, err := profiles.ByUsername(r.Context(), slug.CanonicalUsername(chi.URLParam(r, "username")))
		if err != nil {
			writeError(w, rid, userErr(err), log)
			return
		}

		bucket, _ := completions.ParseBucket(q.Get("progress"))
		sortKey, _ := completions.ParseSort(q.Get("sort"))
		all, err := svc.All(r.Context(), p.ID, queryBool(r, "fresh"))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		ofKind := completions.Apply(all, completions.Query{Kind: kind})
		filtered := completions.Apply(ofKind, completions.Query{
			Bucket: bucket,
			Sort:   sortKey,
			Search: q.Get("q"),
		})
		items, next, err := completions.Page(filtered, q.Get("cursor"), queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}

		api.WriteJSON(w, http.StatusOK, completionsResponse{
			Items:         items,
			NextCursor:    next,
			Total:         len(filtered),
			Progress:      bucket.String(),
			Sort:          string(sortKey),
			Buckets:       completions.Summary(ofKind),
			BucketOptions: completions.BucketOptions,
			Layout:        carousel.NewHint(len(items), 0, carousel.DefaultParams),
		})
	}
}
