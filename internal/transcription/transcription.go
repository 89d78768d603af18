// Package transcription turns a recorded audio buffer into a backend
// transcription record.
package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/language"
	"github.com/snarg/medscribe/internal/recording"
)

// ErrAuthRequired is returned when no credential is available. No request is
// sent in that case.
var ErrAuthRequired = errors.New("authentication required")

// UploadError is any failure after the credential check: creating the record,
// uploading the audio, or the backend rejecting either.
type UploadError struct {
	Step string
	Err  error
}

func (e *UploadError) Error() string {
	var apiErr *backend.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Message
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// API is the subset of the backend client used here.
type API interface {
	HasCredential() bool
	CreateTranscription(ctx context.Context, req backend.CreateTranscriptionRequest) (*backend.Transcription, error)
	UploadAudio(ctx context.Context, id backend.ID, filename string, audio io.Reader) (*backend.Transcription, error)
}

type Client struct {
	api API
	log zerolog.Logger
	now func() time.Time
}

func NewClient(api API, log zerolog.Logger) *Client {
	return &Client{
		api: api,
		log: log.With().Str("component", "transcription").Logger(),
		now: time.Now,
	}
}

// Transcribe creates a record titled after the current time, uploads buf
// against it and returns the completed record. The record id is the
// correlation key for later translation and save calls. There is no retry.
func (c *Client) Transcribe(ctx context.Context, buf recording.AudioBuffer, sourceLanguage string) (*backend.Transcription, error) {
	if !c.api.HasCredential() {
		return nil, ErrAuthRequired
	}
	start := time.Now()

	rec, err := c.api.CreateTranscription(ctx, backend.CreateTranscriptionRequest{
		Title:    "Transcription " + c.now().Format("2006-01-02 15:04:05"),
		Language: language.Base(sourceLanguage),
	})
	if err != nil {
		return nil, c.wrap("create record", err)
	}

	filename := buf.Filename
	if filename == "" {
		filename = "recording.wav"
	}
	out, err := c.api.UploadAudio(ctx, rec.ID, filename, bytes.NewReader(buf.Data))
	if err != nil {
		return nil, c.wrap("upload audio", err)
	}
	if out.ID == "" {
		out.ID = rec.ID
	}

	c.log.Info().
		Str("transcription_id", out.ID.String()).
		Int("audio_bytes", len(buf.Data)).
		Int("text_len", len(out.Content)).
		Dur("duration", time.Since(start)).
		Msg("transcription complete")
	return out, nil
}

func (c *Client) wrap(step string, err error) error {
	if errors.Is(err, backend.ErrNoCredential) {
		return ErrAuthRequired
	}
	c.log.Warn().Err(err).Str("step", step).Msg("transcription failed")
	return &UploadError{Step: step, Err: err}
}
