package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"ttsd/internal/manager"
	"ttsd/internal/voices"
	"ttsd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// kinded errors name a machine-readable error kind for debug endpoints.
type kinded interface {
	Kind() string
}

// statusFor maps service and manager errors to a status code and error kind.
func statusFor(err error) (int, string) {
	var he HTTPError
	if errors.As(err, &he) {
		kind := http.StatusText(he.StatusCode())
		var k kinded
		if errors.As(err, &k) {
			kind = k.Kind()
		}
		return he.StatusCode(), kind
	}
	switch {
	case manager.IsInvalidInput(err):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, voices.ErrVoiceNotFound):
		return http.StatusBadRequest, "voice_not_found"
	case manager.IsModelNotFound(err):
		return http.StatusNotFound, "model_not_found"
	case errors.Is(err, manager.ErrReinitializeInProgress):
		return http.StatusConflict, "reinitialize_in_progress"
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests, "too_busy"
	case errors.Is(err, manager.ErrNotInitialized):
		return http.StatusServiceUnavailable, "not_initialized"
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, "dependency_unavailable"
	case manager.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case manager.IsArtifactLoad(err):
		return http.StatusInternalServerError, "artifact_load_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeDetailedError writes the {error,message} payload used by debug endpoints.
func writeDetailedError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.DetailedError{Error: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
