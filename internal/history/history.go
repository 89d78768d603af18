// Package history browses, translates, deletes and exports saved
// transcriptions.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/events"
	"github.com/snarg/medscribe/internal/export"
	"github.com/snarg/medscribe/internal/session"
)

var ErrNoExportStore = errors.New("export store not configured")

const (
	msgLoadHistory = "Failed to load transcription history"
	msgLoadDetails = "Failed to load transcription details"
	msgDelete      = "Failed to delete transcription"
	msgTranslate   = "Failed to translate transcription"
	msgAnalyze     = "Failed to analyze transcription"
	msgSummarize   = "Failed to summarize transcription"
	msgExport      = "Failed to export transcription"
)

// API is the subset of the backend client used here.
type API interface {
	ListTranscriptions(ctx context.Context) ([]backend.Transcription, error)
	GetTranscription(ctx context.Context, id backend.ID) (*backend.Transcription, error)
	DeleteTranscription(ctx context.Context, id backend.ID) error
	Analyze(ctx context.Context, id backend.ID) (json.RawMessage, error)
	Summarize(ctx context.Context, id backend.ID) (json.RawMessage, error)
	ListTranslations(ctx context.Context, transcriptionID backend.ID) ([]backend.Translation, error)
}

// Translator resolves translations of saved transcriptions through a cache.
type Translator interface {
	GetTranslation(ctx context.Context, transcriptionID backend.ID, target string) (*backend.Translation, error)
	Cached(transcriptionID backend.ID) []backend.Translation
	Forget(transcriptionID backend.ID)
}

type Publisher interface {
	Publish(eventType, sessionID string, payload any)
}

type Service struct {
	api   API
	tr    Translator
	store export.Store
	pub   Publisher
	log   zerolog.Logger
}

// NewService creates a history service. store and pub may be nil.
func NewService(api API, tr Translator, store export.Store, pub Publisher, log zerolog.Logger) *Service {
	return &Service{
		api:   api,
		tr:    tr,
		store: store,
		pub:   pub,
		log:   log.With().Str("component", "history").Logger(),
	}
}

func (s *Service) List(ctx context.Context) ([]backend.Transcription, error) {
	out, err := s.api.ListTranscriptions(ctx)
	if err != nil {
		return nil, s.fail(session.KindFetchFailed, msgLoadHistory, err)
	}
	if out == nil {
		out = []backend.Transcription{}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id backend.ID) (*backend.Transcription, error) {
	t, err := s.api.GetTranscription(ctx, id)
	if err != nil {
		return nil, s.fail(session.KindFetchFailed, msgLoadDetails, err)
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id backend.ID) error {
	if err := s.api.DeleteTranscription(ctx, id); err != nil {
		return s.fail(session.KindDeleteFailed, msgDelete, err)
	}
	if s.tr != nil {
		s.tr.Forget(id)
	}
	if s.pub != nil {
		s.pub.Publish(events.TypeDeleted, "", map[string]string{"transcription_id": id.String()})
	}
	s.log.Info().Str("transcription_id", id.String()).Msg("transcription deleted")
	return nil
}

// Translate returns the translation of a saved transcription, creating it on
// the backend when none exists yet.
func (s *Service) Translate(ctx context.Context, id backend.ID, target string) (*backend.Translation, error) {
	t, err := s.tr.GetTranslation(ctx, id, target)
	if err != nil {
		return nil, s.fail(session.KindTranslationFailed, msgTranslate, err)
	}
	return t, nil
}

func (s *Service) Analyze(ctx context.Context, id backend.ID) (json.RawMessage, error) {
	out, err := s.api.Analyze(ctx, id)
	if err != nil {
		return nil, s.fail(session.KindFetchFailed, msgAnalyze, err)
	}
	return out, nil
}

func (s *Service) Summarize(ctx context.Context, id backend.ID) (json.RawMessage, error) {
	out, err := s.api.Summarize(ctx, id)
	if err != nil {
		return nil, s.fail(session.KindFetchFailed, msgSummarize, err)
	}
	return out, nil
}

// Export archives a transcription with every translation stored for it.
func (s *Service) Export(ctx context.Context, id backend.ID) (*export.Result, error) {
	if s.store == nil {
		return nil, ErrNoExportStore
	}
	t, err := s.api.GetTranscription(ctx, id)
	if err != nil {
		return nil, s.fail(session.KindFetchFailed, msgLoadDetails, err)
	}
	translations, err := s.api.ListTranslations(ctx, id)
	if err != nil {
		return nil, s.fail(session.KindFetchFailed, msgLoadDetails, err)
	}
	if s.tr != nil {
		translations = mergeTranslations(translations, s.tr.Cached(id))
	}

	res, err := export.Write(ctx, s.store, export.Document{
		ExportedAt:    time.Now(),
		Transcription: *t,
		Translations:  translations,
	})
	if err != nil {
		return nil, s.fail(session.KindSaveFailed, msgExport, err)
	}
	s.log.Info().
		Str("transcription_id", id.String()).
		Str("store", res.Store).
		Str("key", res.Key).
		Int("translations", len(translations)).
		Msg("transcription exported")
	return res, nil
}

// mergeTranslations appends cached entries the backend listing lacks. Entries
// match by id, or by target language when the cached entry has no id.
func mergeTranslations(listed, cached []backend.Translation) []backend.Translation {
	ids := make(map[backend.ID]bool, len(listed))
	langs := make(map[string]bool, len(listed))
	for _, t := range listed {
		ids[t.ID] = true
		langs[strings.ToLower(t.TargetLanguage)] = true
	}
	for _, t := range cached {
		if t.ID != "" && ids[t.ID] {
			continue
		}
		if t.ID == "" && langs[strings.ToLower(t.TargetLanguage)] {
			continue
		}
		listed = append(listed, t)
		ids[t.ID] = true
	}
	return listed
}

func (s *Service) fail(kind session.ErrorKind, msg string, err error) error {
	s.log.Warn().Err(err).Str("kind", string(kind)).Msg(msg)
	return &session.Error{Kind: kind, Message: msg, Err: err}
}
