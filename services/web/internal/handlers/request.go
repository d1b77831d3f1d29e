package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/auth"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/pages"
	"github.com/example/anitrack/services/web/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON into dst.
// On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

// viewer is the signed-in user id, empty for anonymous requests.
func viewer(r *http.Request) string {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

func queryInt(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get(key)))
	return b
}

func parseKind(w http.ResponseWriter, rid, raw string) (media.Kind, bool) {
	k, ok := media.ParseKind(raw)
	if !ok {
		api.BadRequest(w, "INVALID_KIND", "kind must be anime or manga", rid, nil)
		return "", false
	}
	return k, true
}

func routeKind(w http.ResponseWriter, r *http.Request, rid string) (media.Kind, bool) {
	return parseKind(w, rid, chi.URLParam(r, "kind"))
}

// userErr reports a missing profile as a missing user.
func userErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return pages.ErrUserNotFound
	}
	return err
}

func mediaErr(kind media.Kind, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return pages.ErrMediaNotFound{Kind: kind}
	}
	return err
}
