package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"wavecast/logger"
	"wavecast/repository"
)

// APIError is an error with an HTTP status and a short machine-readable code.
// Every error response carries at least {error, message}; validation errors
// may add a details array.
type APIError struct {
	Status  int      `json:"-"`
	Code    string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func errUnauthorized(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: message}
}

func errForbidden(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Code: "forbidden", Message: message}
}

func errValidation(message string, details ...string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "validation_error", Message: message, Details: details}
}

func errNotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "not_found", Message: message}
}

func errInternal(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "internal_error", Message: message}
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}

// fail maps an error to a JSON error response. Unrecognized errors become
// 500s; in production their message is replaced by a generic one so internal
// detail never leaks.
func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, apiErr)
		return
	}

	if errors.Is(err, repository.ErrTrackNotFound) {
		writeJSON(w, http.StatusNotFound, errNotFound("Track not found"))
		return
	}

	logger.Error("internal error", logger.ErrorField(err))
	message := "Internal server error"
	if !h.cfg.IsProduction() {
		message = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, errInternal(message))
}
