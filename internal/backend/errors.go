package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoCredential is returned before any request is sent when an authenticated
// endpoint is called without a bearer token.
var ErrNoCredential = errors.New("authentication required")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error (status %d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// IsUnauthorized reports whether the backend rejected the credential.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// errorMessage extracts a human-readable message from an error body. The
// backend uses "message" on some routes and "detail" on others.
func errorMessage(body []byte, fallback string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	for _, k := range []string{"message", "detail", "error"} {
		if s, ok := payload[k].(string); ok && s != "" {
			return s
		}
	}
	return fallback
}
