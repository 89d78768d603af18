package api

import (
	"context"
	"encoding/json"

	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/database"
	"github.com/snarg/medscribe/internal/events"
	"github.com/snarg/medscribe/internal/export"
	"github.com/snarg/medscribe/internal/language"
	"github.com/snarg/medscribe/internal/playback"
	"github.com/snarg/medscribe/internal/recording"
	"github.com/snarg/medscribe/internal/session"
)

// SessionService is the live transcription session driven by the API.
type SessionService interface {
	Snapshot() session.Snapshot
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	SubmitAudio(ctx context.Context, buf recording.AudioBuffer) error
	EditTranscript(text string)
	CommitTranscript(ctx context.Context, text string) error
	SetSourceLanguage(ctx context.Context, tag string) error
	SetTargetLanguage(ctx context.Context, tag string) error
	Save(ctx context.Context) (*session.SavedRecord, error)
	Reset()
	Play(ctx context.Context) error
	StopPlayback() error
}

// AccountService logs the daemon in and out of the backend.
type AccountService interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, username, email, password string) error
	Logout() error
	Profile(ctx context.Context) (*backend.User, error)
	IsAuthenticated() bool
}

// HistoryService browses saved transcriptions.
type HistoryService interface {
	List(ctx context.Context) ([]backend.Transcription, error)
	Get(ctx context.Context, id backend.ID) (*backend.Transcription, error)
	Delete(ctx context.Context, id backend.ID) error
	Translate(ctx context.Context, id backend.ID, target string) (*backend.Translation, error)
	Analyze(ctx context.Context, id backend.ID) (json.RawMessage, error)
	Summarize(ctx context.Context, id backend.ID) (json.RawMessage, error)
	Export(ctx context.Context, id backend.ID) (*export.Result, error)
}

// TranslationService exposes the translation extras.
type TranslationService interface {
	CheckQuality(ctx context.Context, translationID backend.ID) (json.RawMessage, error)
	Glossary(ctx context.Context, source, target string) (backend.Glossary, error)
}

// LanguageSource lists selectable languages. kind is "source" or "target".
type LanguageSource interface {
	Languages(ctx context.Context, kind string) []language.Info
}

// VoiceSource lists the installed synthesizer voices.
type VoiceSource interface {
	Voices(ctx context.Context) []playback.Voice
}

// EventSource is the session event bus.
type EventSource interface {
	Subscribe(filter events.Filter) (<-chan events.Event, func())
	ReplaySince(lastEventID string, filter events.Filter) []events.Event
}

// JournalSource reads the local save journal.
type JournalSource interface {
	ListSaved(ctx context.Context, f database.JournalFilter) ([]database.SavedEntry, int, error)
}

// HealthChecker probes an optional dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus reports a broker connection.
type ConnectionStatus interface {
	IsConnected() bool
}
