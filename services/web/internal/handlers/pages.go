package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/pages"
)

// MediaPage handles GET /v1/anime/{slug} and GET /v1/manga/{slug}.
func MediaPage(svc *pages.Service, kind media.Kind, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		page, err := svc.MediaPage(r.Context(), kind, chi.URLParam(r, "slug"), viewer(r))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// UnitPage handles /v1/anime/{slug}/episodes/{number} and
// /v1/manga/{slug}/chapters/{number}.
func UnitPage(svc *pages.Service, kind media.Kind, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		n, err := strconv.Atoi(chi.URLParam(r, "number"))
		if err != nil || n < 1 {
			api.BadRequest(w, "INVALID_NUMBER", kind.Unit()+" number must be a positive integer", rid, nil)
			return
		}
		page, err := svc.UnitPage(r.Context(), kind, chi.URLParam(r, "slug"), n, viewer(r))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// Backdrop handles GET /v1/{kind}/{slug}/backdrop. url is null when the
// entity has no backdrop.
func Backdrop(svc *pages.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		kind, ok := routeKind(w, r, rid)
		if !ok {
			return
		}
		url, err := svc.BackdropBySlug(r.Context(), kind, chi.URLParam(r, "slug"))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		var out *string
		if url != "" {
			out = &url
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"url": out})
	}
}

func Profile(svc *pages.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		page, err := svc.Profile(r.Context(), chi.URLParam(r, "username"), viewer(r))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

func Activity(svc *pages.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		act, err := svc.Activity(r.Context(), chi.URLParam(r, "username"), viewer(r), queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, act)
	}
}
