package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/internal/trending"
)

const defaultTrendingLimit = 10

// Trending handles GET /v1/trending/{kind}. source reports whether the
// worker snapshot or a live query served the list.
func Trending(reader *trending.Reader, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		kind, ok := routeKind(w, r, rid)
		if !ok {
			return
		}
		limit := queryInt(r, "limit", defaultTrendingLimit)
		if limit <= 0 || limit > 50 {
			limit = defaultTrendingLimit
		}
		entries, source, err := reader.Get(r.Context(), string(kind), limit)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		if entries == nil {
			entries = []trending.Entry{}
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": entries, "source": source})
	}
}
