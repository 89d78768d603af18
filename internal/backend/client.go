// Package backend is the HTTP client for the transcription/translation backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/language"
	"github.com/snarg/medscribe/internal/metrics"
)

// TokenSource supplies the bearer token for authenticated calls. An empty
// token means the user is logged out.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	Log     zerolog.Logger
}

// Client calls the backend REST API. It never retries.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     zerolog.Logger
}

// New creates a backend client.
func New(opts Options) *Client {
	return &Client{
		baseURL: opts.BaseURL,
		tokens:  opts.Tokens,
		client:  &http.Client{Timeout: opts.Timeout},
		log:     opts.Log,
	}
}

// HasCredential reports whether a bearer token is currently available.
func (c *Client) HasCredential() bool {
	return c.token() != ""
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// ── Auth ─────────────────────────────────────────────────────────────

// Register creates a backend account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var u User
	if err := c.doJSON(ctx, "register", http.MethodPost, "/register", false, req, &u, "Registration failed"); err != nil {
		return nil, err
	}
	return &u, nil
}

// Login exchanges credentials for an access token. The backend expects the
// email address in the username field.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var tok TokenResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, "/token", false, body, &tok, "Login failed"); err != nil {
		return nil, err
	}
	return &tok, nil
}

// Me returns the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.doJSON(ctx, "me", http.MethodGet, "/users/me", true, nil, &u, "Failed to get user profile"); err != nil {
		return nil, err
	}
	return &u, nil
}

// ── Transcriptions ───────────────────────────────────────────────────

// CreateTranscription creates an empty pending transcription record.
func (c *Client) CreateTranscription(ctx context.Context, req CreateTranscriptionRequest) (*Transcription, error) {
	var t Transcription
	if err := c.doJSON(ctx, "create_transcription", http.MethodPost, "/transcriptions", true, req, &t, "Failed to create transcription"); err != nil {
		return nil, err
	}
	return &t, nil
}

// UploadAudio uploads audio against an existing record and returns the
// transcribed record.
func (c *Client) UploadAudio(ctx context.Context, id ID, filename string, audio io.Reader) (*Transcription, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var t Transcription
	path := "/ai/transcriptions/" + url.PathEscape(id.String()) + "/upload"
	if err := c.do(ctx, "upload_audio", http.MethodPost, path, true, &buf, w.FormDataContentType(), &t, "Failed to transcribe audio"); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTranscription replaces the content and status of a record.
func (c *Client) UpdateTranscription(ctx context.Context, id ID, req UpdateTranscriptionRequest) (*Transcription, error) {
	var t Transcription
	if err := c.doJSON(ctx, "update_transcription", http.MethodPut, "/transcriptions/"+url.PathEscape(id.String()), true, req, &t, "Failed to update transcription"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTranscriptions(ctx context.Context) ([]Transcription, error) {
	var out []Transcription
	if err := c.doJSON(ctx, "list_transcriptions", http.MethodGet, "/transcriptions", true, nil, &out, "Failed to fetch transcription history"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTranscription(ctx context.Context, id ID) (*Transcription, error) {
	var t Transcription
	if err := c.doJSON(ctx, "get_transcription", http.MethodGet, "/transcriptions/"+url.PathEscape(id.String()), true, nil, &t, "Failed to fetch transcription"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) DeleteTranscription(ctx context.Context, id ID) error {
	return c.doJSON(ctx, "delete_transcription", http.MethodDelete, "/transcriptions/"+url.PathEscape(id.String()), true, nil, nil, "Failed to delete transcription")
}

// Analyze returns the backend's AI analysis of a transcription. The shape is
// backend-defined and passed through untouched.
func (c *Client) Analyze(ctx context.Context, id ID) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, "analyze_transcription", http.MethodGet, "/ai/transcriptions/"+url.PathEscape(id.String())+"/analysis", true, nil, &out, "Failed to analyze transcription"); err != nil {
		return nil, err
	}
	return out, nil
}

// Summarize returns the backend's AI summary of a transcription.
func (c *Client) Summarize(ctx context.Context, id ID) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, "summarize_transcription", http.MethodGet, "/ai/transcriptions/"+url.PathEscape(id.String())+"/summarize", true, nil, &out, "Failed to summarize transcription"); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Translations ─────────────────────────────────────────────────────

func (c *Client) CreateTranslation(ctx context.Context, req CreateTranslationRequest) (*Translation, error) {
	var t Translation
	if err := c.doJSON(ctx, "create_translation", http.MethodPost, "/translations", true, req, &t, "Failed to create translation"); err != nil {
		return nil, err
	}
	return &t, nil
}

// AITranslate requests a high-quality machine translation.
func (c *Client) AITranslate(ctx context.Context, req AITranslateRequest) (*Translation, error) {
	var t Translation
	if err := c.doJSON(ctx, "ai_translate", http.MethodPost, "/ai/translations", true, req, &t, "Translation failed"); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTranslations returns every translation stored for a transcription.
func (c *Client) ListTranslations(ctx context.Context, transcriptionID ID) ([]Translation, error) {
	var out []Translation
	if err := c.doJSON(ctx, "list_translations", http.MethodGet, "/translations/transcription/"+url.PathEscape(transcriptionID.String()), true, nil, &out, "Failed to fetch translations"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) QualityCheck(ctx context.Context, translationID ID) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.doJSON(ctx, "quality_check", http.MethodGet, "/ai/translations/"+url.PathEscape(translationID.String())+"/quality-check", true, nil, &out, "Failed to check translation quality"); err != nil {
		return nil, err
	}
	return out, nil
}

// MedicalGlossary returns the glossary for a language pair. Region subtags are
// stripped. A pair the backend has no glossary for yields an empty result.
func (c *Client) MedicalGlossary(ctx context.Context, source, target string) (Glossary, error) {
	path := "/ai/medical-glossary/" + url.PathEscape(language.Base(source)) + "/" + url.PathEscape(language.Base(target))
	out := Glossary{}
	err := c.doJSON(ctx, "medical_glossary", http.MethodGet, path, true, nil, &out, "Failed to fetch medical glossary")
	if IsStatus(err, http.StatusNotFound) {
		return Glossary{}, nil
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Languages fetches the backend's language list. kind is "source" or "target".
// Any failure falls back to the built-in lists.
func (c *Client) Languages(ctx context.Context, kind string) []language.Info {
	fallback := language.TargetLanguages
	if kind == "source" {
		fallback = language.SourceLanguages
	}
	var out []language.Info
	if err := c.doJSON(ctx, "languages", http.MethodGet, "/languages?type="+url.QueryEscape(kind), false, nil, &out, ""); err != nil {
		c.log.Debug().Err(err).Str("type", kind).Msg("language list unavailable, using built-in list")
		return fallback()
	}
	if len(out) == 0 {
		return fallback()
	}
	return out
}

// ── Transport ────────────────────────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, op, method, path string, auth bool, in, out any, fallbackMsg string) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, auth, body, contentType, out, fallbackMsg)
}

func (c *Client) do(ctx context.Context, op, method, path string, auth bool, body io.Reader, contentType string, out any, fallbackMsg string) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveBackend(op, start, err) }()

	var token string
	if auth {
		token = c.token()
		if token == "" {
			return ErrNoCredential
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if fallbackMsg == "" {
			fallbackMsg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody, fallbackMsg)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
