// Package httpx provides HTTP response utilities for the JSON API.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodyBytes bounds request bodies decoded by DecodeJSON.
const maxBodyBytes = 1 << 20

// ErrorBody is the structured error returned by every endpoint.
type ErrorBody struct {
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends an ErrorBody with the given message.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Message: message})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
