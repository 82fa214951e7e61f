package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/ignite/wa-outreach/internal/pkg/logger"
)

// ErrorResponse is the standard error envelope for all API errors. Error
// is a stable snake_case code clients can switch on.
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code. The data is
// serialized and Content-Type is set automatically.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("httputil: JSON encode failed", "error", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created writes a 201 response with the given data.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// NoContent writes a 204 response with no body.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// NoCache marks the response as uncacheable. Dashboards poll these
// endpoints and must never see a stale intermediary copy.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// Error writes a JSON error response with a code. Use for client errors (4xx).
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, ErrorResponse{Error: code})
}

// ErrorWithDetails writes an error response carrying extra context.
func ErrorWithDetails(w http.ResponseWriter, status int, code string, details any) {
	JSON(w, status, ErrorResponse{Error: code, Details: details})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, code string) {
	Error(w, http.StatusBadRequest, code)
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, code string) {
	Error(w, http.StatusNotFound, code)
}

// Conflict writes a 409 error.
func Conflict(w http.ResponseWriter, code string) {
	Error(w, http.StatusConflict, code)
}

// Unauthorized writes a 401 error.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "unauthorized")
}

// InternalError writes a 500 error. Logs the real error but returns a
// generic code to the client (never leak internals).
func InternalError(w http.ResponseWriter, err error) {
	logger.Error("httputil: internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal_error")
}

// Decode reads JSON from the request body into dst.
// Returns false and writes a 400 response if parsing fails.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		ErrorWithDetails(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}
