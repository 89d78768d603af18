package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/medscribe/internal/auth"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/history"
	"github.com/snarg/medscribe/internal/session"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// WriteServiceError maps an error returned by a service to a status code and
// writes it. The user-facing message of a *session.Error is kept intact.
func WriteServiceError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	WriteJSON(w, status, body)
}

func classify(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrNotRecording),
		errors.Is(err, session.ErrSaveInProgress):
		return http.StatusConflict, ErrorResponse{Error: err.Error()}
	case errors.Is(err, session.ErrInvalidLanguage),
		errors.Is(err, auth.ErrMissingCredentials):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error()}
	case errors.Is(err, history.ErrNoExportStore):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()}
	}

	unauthorized := errors.Is(err, backend.ErrNoCredential) || backend.IsUnauthorized(err)

	var apiErr *backend.APIError
	hasAPIErr := errors.As(err, &apiErr)

	var se *session.Error
	if errors.As(err, &se) {
		body := ErrorResponse{Error: se.Message, Kind: string(se.Kind)}
		if hasAPIErr {
			body.Detail = apiErr.Message
		}
		if unauthorized {
			return http.StatusUnauthorized, body
		}
		return kindStatus(se, apiErr), body
	}

	switch {
	case unauthorized && hasAPIErr:
		return http.StatusUnauthorized, ErrorResponse{Error: apiErr.Message}
	case unauthorized:
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error()}
	case hasAPIErr:
		return http.StatusBadGateway, ErrorResponse{Error: apiErr.Message}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Detail: err.Error()}
}

func kindStatus(se *session.Error, apiErr *backend.APIError) int {
	switch se.Kind {
	case session.KindAuthRequired:
		return http.StatusUnauthorized
	case session.KindPermissionDenied:
		return http.StatusServiceUnavailable
	case session.KindSaveFailed:
		// no cause means the save was refused locally
		if se.Err == nil {
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	case session.KindFetchFailed:
		if apiErr != nil && apiErr.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination extracts limit and offset from query params with defaults.
// Returns an error if values are present but invalid.
func ParsePagination(r *http.Request) (Pagination, error) {
	p := Pagination{Limit: 50, Offset: 0}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid limit %q: must be an integer", v)
		}
		if n < 1 || n > 500 {
			return p, fmt.Errorf("invalid limit %d: must be between 1 and 500", n)
		}
		p.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("invalid offset %q: must be an integer", v)
		}
		if n < 0 {
			return p, fmt.Errorf("invalid offset %d: must be >= 0", n)
		}
		p.Offset = n
	}
	return p, nil
}

// QueryBool extracts a boolean query parameter.
func QueryBool(r *http.Request, name string) (bool, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// QueryString extracts a non-empty string query parameter.
func QueryString(r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// QueryStringList extracts a comma-separated list of strings from a query param.
func QueryStringList(r *http.Request, name string) []string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// PathID extracts a backend record id from a chi URL parameter.
func PathID(r *http.Request, name string) (backend.ID, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		return "", fmt.Errorf("missing path parameter: %s", name)
	}
	return backend.ID(v), nil
}

// DecodeJSON reads and decodes a JSON request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	return json.NewDecoder(r.Body).Decode(v)
}
