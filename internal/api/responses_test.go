package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/medscribe/internal/auth"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/history"
	"github.com/snarg/medscribe/internal/session"
)

// newRequestWithChiParam creates a request with a chi URL parameter set.
func newRequestWithChiParam(param, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(param, value)
	req := httptest.NewRequest("GET", "/", nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// ── ParsePagination ──────────────────────────────────────────────────

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{"defaults", "", 50, 0, false},
		{"valid_custom", "limit=25&offset=10", 25, 10, false},
		{"limit_over_max", "limit=2000", 0, 0, true},
		{"limit_zero", "limit=0", 0, 0, true},
		{"negative_offset", "offset=-5", 0, 0, true},
		{"non_numeric", "limit=abc", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			p, err := ParsePagination(req)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got %+v, want limit=%d offset=%d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

// ── QueryBool ────────────────────────────────────────────────────────

func TestQueryBool(t *testing.T) {
	tests := []struct {
		query  string
		want   bool
		wantOK bool
	}{
		{"v=true", true, true},
		{"v=0", false, true},
		{"v=maybe", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/?"+tt.query, nil)
		v, ok := QueryBool(req, "v")
		if v != tt.want || ok != tt.wantOK {
			t.Errorf("QueryBool(%q) = (%v, %v), want (%v, %v)", tt.query, v, ok, tt.want, tt.wantOK)
		}
	}
}

// ── QueryString ──────────────────────────────────────────────────────

func TestQueryString(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?q=hello", nil)
		v, ok := QueryString(req, "q")
		if !ok || v != "hello" {
			t.Errorf("got (%q, %v), want (\"hello\", true)", v, ok)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		_, ok := QueryString(req, "q")
		if ok {
			t.Error("expected ok=false")
		}
	})
}

// ── QueryStringList ──────────────────────────────────────────────────

func TestQueryStringList(t *testing.T) {
	t.Run("missing_returns_nil", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		if got := QueryStringList(req, "types"); got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})
	t.Run("trims_and_skips_empty", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/?types=session.saved,%20,history", nil)
		got := QueryStringList(req, "types")
		if len(got) != 2 || got[0] != "session.saved" || got[1] != "history" {
			t.Errorf("got %v, want [session.saved history]", got)
		}
	})
}

// ── PathID ───────────────────────────────────────────────────────────

func TestPathID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		req := newRequestWithChiParam("id", "42")
		v, err := PathID(req, "id")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != backend.ID("42") {
			t.Errorf("got %q, want 42", v)
		}
	})
	t.Run("missing", func(t *testing.T) {
		req := newRequestWithChiParam("other", "1")
		if _, err := PathID(req, "id"); err == nil {
			t.Error("expected error for missing param")
		}
	})
}

// ── WriteJSON ────────────────────────────────────────────────────────

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"msg": "ok"})

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body["msg"] != "ok" {
		t.Errorf("body = %v, want msg=ok", body)
	}
}

// ── WriteError ───────────────────────────────────────────────────────

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusBadRequest, "bad input")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "bad input" {
		t.Errorf("Error = %q, want %q", body.Error, "bad input")
	}
}

// ── DecodeJSON ───────────────────────────────────────────────────────

func TestDecodeJSON(t *testing.T) {
	t.Run("valid_body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"test"}`))
		var dst struct {
			Name string `json:"name"`
		}
		if err := DecodeJSON(req, &dst); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dst.Name != "test" {
			t.Errorf("Name = %q, want %q", dst.Name, "test")
		}
	})
	t.Run("nil_body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", nil)
		req.Body = nil
		var dst struct{}
		if err := DecodeJSON(req, &dst); err == nil {
			t.Error("expected error for nil body")
		}
	})
	t.Run("malformed_json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{bad`))
		var dst struct{}
		if err := DecodeJSON(req, &dst); err == nil {
			t.Error("expected error for malformed JSON")
		}
	})
}

// ── WriteErrorDetail ─────────────────────────────────────────────────

func TestWriteErrorDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetail(rec, http.StatusUnprocessableEntity, "validation failed", "name is required")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("JSON decode: %v", err)
	}
	if body.Error != "validation failed" {
		t.Errorf("Error = %q, want %q", body.Error, "validation failed")
	}
	if body.Detail != "name is required" {
		t.Errorf("Detail = %q, want %q", body.Detail, "name is required")
	}
}

// ── WriteServiceError ────────────────────────────────────────────────

func TestWriteServiceError(t *testing.T) {
	notFound := &backend.APIError{Status: http.StatusNotFound, Message: "Transcription not found"}
	serverErr := &backend.APIError{Status: http.StatusInternalServerError, Message: "boom"}
	unauthorized := &backend.APIError{Status: http.StatusUnauthorized, Message: "Incorrect username or password"}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantKind   string
		wantDetail string
	}{
		{"already_recording", session.ErrAlreadyRecording, http.StatusConflict, session.ErrAlreadyRecording.Error(), "", ""},
		{"save_in_progress", session.ErrSaveInProgress, http.StatusConflict, session.ErrSaveInProgress.Error(), "", ""},
		{"invalid_language", fmt.Errorf("set language: %w", session.ErrInvalidLanguage), http.StatusBadRequest, "set language: invalid language tag", "", ""},
		{"missing_credentials", auth.ErrMissingCredentials, http.StatusBadRequest, auth.ErrMissingCredentials.Error(), "", ""},
		{"no_export_store", history.ErrNoExportStore, http.StatusServiceUnavailable, history.ErrNoExportStore.Error(), "", ""},
		{"auth_required", &session.Error{Kind: session.KindAuthRequired, Message: "Please login to transcribe audio"},
			http.StatusUnauthorized, "Please login to transcribe audio", "auth_required", ""},
		{"microphone", &session.Error{Kind: session.KindPermissionDenied, Message: "Microphone access is required for recording."},
			http.StatusServiceUnavailable, "Microphone access is required for recording.", "permission_denied", ""},
		{"nothing_to_save", &session.Error{Kind: session.KindSaveFailed, Message: "Nothing to save. Record something first."},
			http.StatusBadRequest, "Nothing to save. Record something first.", "save_failed", ""},
		{"save_backend_failure", &session.Error{Kind: session.KindSaveFailed, Message: "Failed to save. Please try again.", Err: serverErr},
			http.StatusBadGateway, "Failed to save. Please try again.", "save_failed", "boom"},
		{"fetch_not_found", &session.Error{Kind: session.KindFetchFailed, Message: "Failed to load transcription details", Err: notFound},
			http.StatusNotFound, "Failed to load transcription details", "fetch_failed", "Transcription not found"},
		{"fetch_without_credential", &session.Error{Kind: session.KindFetchFailed, Message: "Failed to load transcription history", Err: backend.ErrNoCredential},
			http.StatusUnauthorized, "Failed to load transcription history", "fetch_failed", ""},
		{"login_rejected", fmt.Errorf("login: %w", unauthorized), http.StatusUnauthorized, "Incorrect username or password", "", ""},
		{"bare_backend_error", serverErr, http.StatusBadGateway, "boom", "", ""},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error", "", "disk on fire"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, tt.err)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("JSON decode: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", body.Error, tt.wantError)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", body.Detail, tt.wantDetail)
			}
		})
	}
}
