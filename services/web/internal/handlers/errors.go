package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/anitrack/internal/platform/api"
	"github.com/example/anitrack/services/web/internal/completions"
	"github.com/example/anitrack/services/web/internal/feed"
	"github.com/example/anitrack/services/web/internal/pages"
	"github.com/example/anitrack/services/web/internal/store"
	"github.com/example/anitrack/services/web/internal/tracking"
)

// writeError maps service and store errors onto the API envelope.
func writeError(w http.ResponseWriter, requestID string, err error, log *zap.Logger) {
	var fe *tracking.FieldError
	var mnf pages.ErrMediaNotFound
	switch {
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the response
		return
	case errors.As(err, &fe):
		api.BadRequest(w, "INVALID_INPUT", fe.Error(), requestID, map[string]any{fe.Field: fe.Message})
	case errors.Is(err, tracking.ErrInvalid):
		api.BadRequest(w, "INVALID_INPUT", err.Error(), requestID, nil)
	case errors.Is(err, feed.ErrEmptyContent), errors.Is(err, feed.ErrContentTooLong):
		api.BadRequest(w, "INVALID_CONTENT", err.Error(), requestID, nil)
	case errors.Is(err, store.ErrBadCursor), errors.Is(err, completions.ErrBadCursor):
		api.BadRequest(w, "INVALID_CURSOR", "Invalid cursor", requestID, nil)
	case errors.Is(err, feed.ErrAuthRequired), errors.Is(err, tracking.ErrAuthRequired):
		api.Unauthorized(w, "AUTH_MISSING", "Sign in required", requestID)
	case errors.As(err, &mnf):
		api.NotFound(w, "NOT_FOUND", mnf.Error(), requestID)
	case errors.Is(err, pages.ErrUserNotFound):
		api.NotFound(w, "NOT_FOUND", "user not found", requestID)
	case errors.Is(err, store.ErrNotFoundOrForbidden):
		api.NotFound(w, "NOT_FOUND_OR_FORBIDDEN", "Not found or not owned by you", requestID)
	case errors.Is(err, store.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "not found", requestID)
	case errors.Is(err, store.ErrConflict):
		api.Conflict(w, "CONFLICT", "Already exists", requestID, nil)
	case errors.Is(err, context.DeadlineExceeded):
		api.GatewayTimeout(w, requestID)
	default:
		if log != nil {
			log.Error("request failed", zap.String("request_id", requestID), zap.Error(err))
		}
		api.Internal(w, requestID)
	}
}
