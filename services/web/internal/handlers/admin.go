package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/auth"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/services/web/internal/autolink"
)

type autoLinkReq struct {
	autolink.Request
	Secret string `json:"secret,omitempty"`
}

// AutoLinkAnime handles POST /api/admin/auto-link-anime. The shared secret
// comes from X-Admin-Secret or the body's secret field.
func AutoLinkAnime(linker *autolink.Linker, adminSecret string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req autoLinkReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		presented := r.Header.Get("X-Admin-Secret")
		if presented == "" {
			presented = req.Secret
		}
		if !auth.SecretMatches(adminSecret, presented) {
			api.Unauthorized(w, "ADMIN_SECRET_INVALID", "Invalid admin secret", rid)
			return
		}
		if req.AnimeID == "" {
			api.BadRequest(w, "MISSING_ID", "animeId is required", rid, nil)
			return
		}

		res, err := linker.Link(r.Context(), req.Request)
		if err != nil {
			writeError(w, rid, mediaErr("anime", err), log)
			return
		}
		log.Info("auto-link finished",
			zap.String("anime_id", res.AnimeID),
			zap.Int("sources", len(res.Best)),
			zap.Int("errors", len(res.Errors)),
		)
		api.WriteJSON(w, http.StatusOK, res)
	}
}
