package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Error codes carried in APIError.Code.
const (
	CodeUnauthorized    = "Unauthorized"
	CodeBadRequest      = "BadRequest"
	CodeNotFound        = "NotFound"
	CodeConflict        = "Conflict"
	CodePayloadTooLarge = "PayloadTooLarge"
	CodeInternalError   = "InternalError"
	CodePartialFailure  = "PartialFailure"
)

// APIError is the JSON body of every failed API response.
type APIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`

	// Set for partial move failures only.
	Succeeded []string `json:"succeeded,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

// writeAPIError writes a minimal JSON error response.
func writeAPIError(w http.ResponseWriter, code string, message string, resource string, status int) {
	writeJSON(w, status, APIError{
		Code:     code,
		Message:  message,
		Resource: resource,
	})
}

// writeInternalError logs err and reports a generic failure to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "err", err)
	writeAPIError(w, CodeInternalError, "We encountered an internal error. Please try again.", r.URL.Path, http.StatusInternalServerError)
}

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode json response", "err", err)
	}
}
