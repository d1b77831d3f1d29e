package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/internal/slug"
	"github.com/example/anitrack/services/web/internal/feed"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
)

type postReq struct {
	Content string `json:"content"`
	Kind    string `json:"kind,omitempty"`
	MediaID string `json:"media_id,omitempty"`
}

type commentReq struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}

// Feed handles GET /v1/feed, the global feed newest first.
func Feed(svc *feed.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		page, err := svc.Page(r.Context(), viewer(r), r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// UserPosts handles GET /v1/users/{username}/posts.
func UserPosts(svc *feed.Service, profiles store.Profiles, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, err := profiles.ByUsername(r.Context(), slug.CanonicalUsername(chi.URLParam(r, "username")))
		if err != nil {
			writeError(w, rid, userErr(err), log)
			return
		}
		page, err := svc.UserPage(r.Context(), p.ID, viewer(r), r.URL.Query().Get("cursor"), queryInt(r, "limit", 0))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, page)
	}
}

// CreatePost handles POST /v1/posts. A post may be attached to an anime or manga.
func CreatePost(svc *feed.Service, mediaStore store.Media, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req postReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		var kind media.Kind
		mediaID := strings.TrimSpace(req.MediaID)
		if req.Kind != "" || mediaID != "" {
			k, ok := parseKind(w, rid, req.Kind)
			if !ok {
				return
			}
			if _, err := mediaStore.ByID(r.Context(), k, mediaID); err != nil {
				writeError(w, rid, err, log)
				return
			}
			kind = k
		}
		item, err := svc.Compose(r.Context(), viewer(r), req.Content, kind, mediaID)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusCreated, item)
	}
}

func UpdatePost(svc *feed.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req postReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		p, err := svc.Edit(r.Context(), viewer(r), chi.URLParam(r, "id"), req.Content)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}

func DeletePost(svc *feed.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if err := svc.Delete(r.Context(), viewer(r), chi.URLParam(r, "id")); err != nil {
			writeError(w, rid, err, log)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// LikePost handles PUT (like) and DELETE (unlike) on /v1/posts/{id}/like.
func LikePost(svc *feed.Service, like bool, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		state, err := svc.ToggleLike(r.Context(), viewer(r), chi.URLParam(r, "id"), like)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, state)
	}
}

func ListComments(svc *feed.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		thread, err := svc.Thread(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		if thread == nil {
			thread = []*feed.Node{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"items": thread})
	}
}

func CreateComment(svc *feed.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		var req commentReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		c, err := svc.Reply(r.Context(), viewer(r), chi.URLParam(r, "id"), req.ParentID, req.Content)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusCreated, c)
	}
}
