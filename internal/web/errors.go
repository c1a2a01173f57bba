package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with full technical detail server-side and
// returned to the client as a short JSON body with a stable machine
// code. Handlers never leak raw database or parser internals to
// clients beyond what the legacy format codes describe.

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Stable machine-readable error codes returned in the Code field.
const (
	codeBadRequest    = "bad_request"
	codeMissingFile   = "missing_file"
	codeEmptyFile     = "empty_file"
	codeMalformedFile = "malformed_file"
	codeInvalidParam  = "invalid_param"
	codeRateLimited   = "rate_limited"
	codeBusy          = "too_many_uploads"
	codeInternal      = "internal_error"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs the technical error with request context and writes
// a sanitized JSON error body to the client.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int, code, message string) {
	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeError(w, r, status, code, message)
}

// writeError writes a JSON error response without logging.
func writeError(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeJSON encodes v as JSON with the given status code.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
