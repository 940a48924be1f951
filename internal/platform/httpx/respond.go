// Package httpx provides JSON response utilities shared by the API handlers.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the error envelope returned by every endpoint.
type ErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an ErrorBody with the given status code.
func Error(w http.ResponseWriter, status int, kind, message string) {
	JSON(w, status, ErrorBody{Type: kind, Message: message})
}
