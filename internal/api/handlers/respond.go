package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/medtranslate/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps err onto an HTTP status. Upstream failures keep their
// stage and cause so clients can tell a timeout from an empty result.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	body := map[string]string{"error": err.Error()}
	var ue *apperr.UpstreamError
	if errors.As(err, &ue) {
		body["stage"] = string(ue.Stage)
		body["cause"] = string(ue.Cause)
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}

	writeJSON(w, status, body)
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuth), errors.Is(err, apperr.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrDuplicateUser),
		errors.Is(err, apperr.ErrPrecondition),
		errors.Is(err, apperr.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrTranscription),
		errors.Is(err, apperr.ErrTranslation),
		errors.Is(err, apperr.ErrSynthesis):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: invalid request body", apperr.ErrInvalidInput)
	}
	return nil
}
