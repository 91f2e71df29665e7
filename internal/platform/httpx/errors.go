// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tana-fms/tana-fms/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. The
// detail always carries the entity id, current state, and attempted action
// supplied by the domain error so the caller can render a message. Unmapped
// errors are logged and answered with an opaque 500.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case shared.IsValidation(err):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case shared.IsInvalidTransition(err):
		Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case shared.IsUnauthorized(err):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrTargetsLocked):
		Problem(w, http.StatusConflict, "Targets Locked", err.Error())
	case errors.Is(err, shared.ErrClosureInProgress):
		Problem(w, http.StatusConflict, "Closure In Progress", err.Error())
	case shared.IsConflict(err):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
