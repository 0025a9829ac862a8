package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/prenos/internal/transfer"
)

// writeError maps a service error to an HTTP status and writes it.
// Unclassified errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *transfer.PermissionError
	if errors.As(err, &perr) {
		jsonResponse(w, http.StatusForbidden, map[string]string{
			"error":  "permission denied",
			"reason": perr.Reason,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, status, "internal error")
		return
	}
	if status == http.StatusServiceUnavailable {
		slog.Warn("dependency unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, transfer.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, transfer.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
