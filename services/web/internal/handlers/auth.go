package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/internal/platform/auth"
	"github.com/example/anitrack/internal/platform/httpserver"
	"github.com/example/anitrack/internal/slug"
	"github.com/example/anitrack/services/web/internal/media"
	"github.com/example/anitrack/services/web/internal/store"
)

var usernameRe = regexp.MustCompile(`^[a-z0-9_]{3,32}$`)

type registerReq struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url"`
}

type loginReq struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	User        store.Profile `json:"user"`
	AccessToken string        `json:"access_token"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

func issue(w http.ResponseWriter, rid string, status int, issuer auth.Issuer, p store.Profile, log *zap.Logger) {
	tok, exp, err := issuer.Issue(p.ID, p.Username, p.Role, time.Now().UTC())
	if err != nil {
		writeError(w, rid, err, log)
		return
	}
	api.WriteJSON(w, status, authResponse{User: p, AccessToken: tok, ExpiresAt: exp})
}

// Register creates an account under the canonical lowercase username.
func Register(profiles store.Profiles, issuer auth.Issuer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req registerReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		username := slug.CanonicalUsername(req.Username)
		if !usernameRe.MatchString(username) {
			api.BadRequest(w, "VALIDATION_USERNAME", "Invalid username", rid, map[string]any{"username": "3-32 letters, digits or underscores"})
			return
		}
		if len(req.Password) < 8 {
			api.BadRequest(w, "VALIDATION_PASSWORD", "Password too short", rid, map[string]any{"password": "min length 8"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		p, err := profiles.Create(r.Context(), store.Profile{
			Username:     username,
			AvatarURL:    media.NormalizeImageURL(strings.TrimSpace(req.AvatarURL), "w185"),
			PasswordHash: string(hash),
		})
		if errors.Is(err, store.ErrConflict) {
			api.Conflict(w, "USER_ALREADY_EXISTS", "User already exists", rid, nil)
			return
		}
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		p.PasswordHash = ""
		issue(w, rid, http.StatusCreated, issuer, p, log)
	}
}

func Login(profiles store.Profiles, issuer auth.Issuer, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req loginReq
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if strings.TrimSpace(req.Login) == "" {
			api.BadRequest(w, "VALIDATION_LOGIN", "Login is required", rid, map[string]any{"login": "required"})
			return
		}
		if req.Password == "" {
			api.BadRequest(w, "VALIDATION_PASSWORD", "Password is required", rid, map[string]any{"password": "required"})
			return
		}

		p, err := profiles.ByLogin(r.Context(), slug.CanonicalUsername(req.Login))
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeError(w, rid, err, log)
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)) != nil {
			api.Unauthorized(w, "AUTH_INVALID_CREDENTIALS", "Invalid credentials", rid)
			return
		}
		p.PasswordHash = ""
		issue(w, rid, http.StatusOK, issuer, p, log)
	}
}

// Me returns the signed-in user's profile.
func Me(profiles store.Profiles, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		uid := viewer(r)
		if uid == "" {
			api.Unauthorized(w, "AUTH_MISSING", "Missing auth", rid)
			return
		}
		p, err := profiles.ByID(r.Context(), uid)
		if err != nil {
			writeError(w, rid, err, log)
			return
		}
		api.WriteJSON(w, http.StatusOK, p)
	}
}
