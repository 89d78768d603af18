package backend_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/backend/backendtest"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newClient(t *testing.T, token string) (*backend.Client, *backendtest.Server) {
	t.Helper()
	srv := backendtest.New()
	t.Cleanup(srv.Close)
	c := backend.New(backend.Options{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
		Tokens:  staticToken(token),
		Log:     zerolog.Nop(),
	})
	return c, srv
}

func TestClientRequiresCredential(t *testing.T) {
	c, srv := newClient(t, "")
	_, err := c.CreateTranscription(context.Background(), backend.CreateTranscriptionRequest{Title: "x", Language: "en"})
	if !errors.Is(err, backend.ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
	if srv.TotalCalls() != 0 {
		t.Errorf("request sent without credential: %d calls", srv.TotalCalls())
	}
	if c.HasCredential() {
		t.Error("HasCredential = true with empty token")
	}
}

func TestClientTranscriptionLifecycle(t *testing.T) {
	c, srv := newClient(t, backendtest.Token)
	ctx := context.Background()

	created, err := c.CreateTranscription(ctx, backend.CreateTranscriptionRequest{Title: "Visit", Language: "en"})
	if err != nil {
		t.Fatalf("CreateTranscription: %v", err)
	}
	if created.ID != "1" {
		t.Errorf("numeric id decoded as %q, want 1", created.ID)
	}

	uploaded, err := c.UploadAudio(ctx, created.ID, "recording.wav", strings.NewReader("RIFFdata"))
	if err != nil {
		t.Fatalf("UploadAudio: %v", err)
	}
	if uploaded.Content != srv.TranscriptText {
		t.Errorf("Content = %q, want %q", uploaded.Content, srv.TranscriptText)
	}
	if string(srv.LastUpload) != "RIFFdata" {
		t.Errorf("uploaded bytes = %q", srv.LastUpload)
	}

	updated, err := c.UpdateTranscription(ctx, created.ID, backend.UpdateTranscriptionRequest{Content: "edited", Status: backend.StatusCompleted})
	if err != nil {
		t.Fatalf("UpdateTranscription: %v", err)
	}
	if updated.Content != "edited" {
		t.Errorf("Content = %q, want edited", updated.Content)
	}

	list, err := c.ListTranscriptions(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTranscriptions = %v, %v", list, err)
	}

	if err := c.DeleteTranscription(ctx, created.ID); err != nil {
		t.Fatalf("DeleteTranscription: %v", err)
	}
	_, err = c.GetTranscription(ctx, created.ID)
	if !backend.IsStatus(err, http.StatusNotFound) {
		t.Errorf("GetTranscription after delete err = %v, want 404", err)
	}
}

func TestClientAPIErrorMessage(t *testing.T) {
	c, srv := newClient(t, backendtest.Token)
	srv.SetFail("ai_translate", http.StatusBadGateway)

	_, err := c.AITranslate(context.Background(), backend.AITranslateRequest{Text: "hi", TargetLanguage: "es", HighQuality: true})
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", apiErr.Status)
	}
	if apiErr.Message != "ai_translate failed" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestClientUnauthorized(t *testing.T) {
	c, _ := newClient(t, "stale-token")
	_, err := c.Me(context.Background())
	if !backend.IsUnauthorized(err) {
		t.Errorf("err = %v, want 401", err)
	}
}

func TestClientLogin(t *testing.T) {
	c, _ := newClient(t, "")
	t.Run("good_password", func(t *testing.T) {
		tok, err := c.Login(context.Background(), "doc@example.com", "secret")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if tok.AccessToken != backendtest.Token {
			t.Errorf("AccessToken = %q", tok.AccessToken)
		}
	})
	t.Run("bad_password_detail_message", func(t *testing.T) {
		_, err := c.Login(context.Background(), "doc@example.com", "nope")
		var apiErr *backend.APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "Incorrect username or password" {
			t.Errorf("err = %v", err)
		}
	})
}

func TestClientMedicalGlossary(t *testing.T) {
	c, srv := newClient(t, backendtest.Token)
	srv.Glossaries["en/es"] = backend.Glossary{"fever": "fiebre"}

	t.Run("region_stripped", func(t *testing.T) {
		g, err := c.MedicalGlossary(context.Background(), "en-US", "es")
		if err != nil {
			t.Fatalf("MedicalGlossary: %v", err)
		}
		if g["fever"] != "fiebre" {
			t.Errorf("glossary = %v", g)
		}
	})

	t.Run("not_found_is_empty", func(t *testing.T) {
		g, err := c.MedicalGlossary(context.Background(), "ja-JP", "es")
		if err != nil {
			t.Fatalf("404 should not be an error: %v", err)
		}
		if g == nil || len(g) != 0 {
			t.Errorf("glossary = %v, want empty", g)
		}
	})

	t.Run("other_errors_surface", func(t *testing.T) {
		srv.SetFail("medical_glossary", http.StatusInternalServerError)
		defer srv.SetFail("medical_glossary", 0)
		if _, err := c.MedicalGlossary(context.Background(), "en", "es"); err == nil {
			t.Error("expected error on 500")
		}
	})
}

func TestClientLanguagesFallback(t *testing.T) {
	c, _ := newClient(t, "")
	src := c.Languages(context.Background(), "source")
	if len(src) == 0 || src[0].Code != "en-US" {
		t.Errorf("source fallback = %v", src)
	}
	tgt := c.Languages(context.Background(), "target")
	if len(tgt) == 0 || tgt[0].Code != "en" {
		t.Errorf("target fallback = %v", tgt)
	}
}
