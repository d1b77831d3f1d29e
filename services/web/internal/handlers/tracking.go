package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/internal/slug"
	"github.com/example/anitrack/services/web/internal/pages"
	"github.com/example/anitrack/services/web/internal/store"
	"github.com/example/anitrack/services/web/internal/tracking"
)

// SetMark handles PUT /v1/marks.
func SetMark(svc *tracking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var in tracking.MarkInput
		if !decodeJSON(w, r, rid, &in) {
			return
		}
		m, err := svc.SetMark(r.Context(), viewer(r), in)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, m)
	}
}

// ClearMark handles DELETE /v1/marks?target_type=&target_id=&mark=.
func ClearMark(svc *tracking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()
		in := tracking.MarkInput{TargetType: q.Get("target_type"), TargetID: q.Get("target_id"), Mark: q.Get("mark")}
		if err := svc.ClearMark(r.Context(), viewer(r), in); err != nil {
			writeError(w, rid, err, log)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func CreateLog(svc *tracking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var in tracking.LogInput
		if !decodeJSON(w, r, rid, &in) {
			return
		}
		entry, err := svc.Log(r.Context(), viewer(r), in)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusCreated, entry)
	}
}

// Journal handles GET /v1/users/{username}/journal. Private and
// followers-only entries are hidden from other viewers.
func Journal(svc *tracking.Service, profiles store.Profiles, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, err := profiles.ByUsername(r.Context(), slug.CanonicalUsername(chi.URLParam(r, "username")))
		if err != nil {
			writeError(w, rid, userErr(err), log)
			return
		}
		items, next, err := svc.Journal(r.Context(), p.ID, viewer(r), r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		if items == nil {
			items = []store.LogEntry{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "next_cursor": next})
	}
}

func CreateReview(svc *tracking.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var in tracking.ReviewInput
		if !decodeJSON(w, r, rid, &in) {
			return
		}
		rev, err := svc.Review(r.Context(), viewer(r), in)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusCreated, pages.WithStars([]store.Review{rev})[0])
	}
}

// MediaReviews handles GET /v1/{kind}/{slug}/reviews. With ?unit=N it lists
// the reviews of that episode or chapter instead of the series.
func MediaReviews(svc *tracking.Service, mediaStore store.Media, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		kind, ok := routeKind(w, r, rid)
		if !ok {
			return
		}
		m, err := mediaStore.BySlug(r.Context(), kind, chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, rid, mediaErr(kind, err), log)
			return
		}
		var unitID *string
		if raw := r.URL.Query().Get("unit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				api.BadRequest(w, "INVALID_UNIT", "unit must be a positive number", rid, nil)
				return
			}
			u, err := mediaStore.Unit(r.Context(), kind, m.ID, n)
			if err != nil {
				writeError(w, rid, err, log)
				return
			}
			unitID = &u.ID
		}
		rs, err := svc.Reviews(r.Context(), kind, m.ID, unitID, viewer(r), queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": pages.WithStars(rs)})
	}
}
