// Package httputil provides shared HTTP utilities for consistent response handling.
package httputil

import (
	"encoding/json"
	"net/http"
	"strings"
)

// ContentTypeJSON is the Content-Type of every JSON response.
const ContentTypeJSON = "application/json"

// WriteJSON writes data as two-space indented JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteError writes {"ok":false,"error":errCode,"message":message}.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	_ = WriteJSON(w, status, ErrorBody{Error: errCode, Message: message})
}

// WriteErrorWithDetails is WriteError with a details payload, typically a
// list of field-level validation failures.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	_ = WriteJSON(w, status, ErrorBody{Error: errCode, Message: message, Details: details})
}

// WriteOK writes a 200 OK response with data.
func WriteOK(w http.ResponseWriter, data any) {
	_ = WriteJSON(w, http.StatusOK, data)
}

// WriteBadRequest writes a 400 Bad Request error response.
func WriteBadRequest(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusBadRequest, errCode, message)
}

// WriteMethodNotAllowed writes a 405 with the Allow header set.
func WriteMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "allowed methods: "+strings.Join(allowed, ", "))
}
