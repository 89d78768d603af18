// Package session is the live recording/transcription/translation state
// machine a UI drives.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/backend"
	"github.com/snarg/medscribe/internal/events"
	"github.com/snarg/medscribe/internal/language"
	"github.com/snarg/medscribe/internal/localstore"
	"github.com/snarg/medscribe/internal/metrics"
	"github.com/snarg/medscribe/internal/recording"
	"github.com/snarg/medscribe/internal/transcription"
)

// State is the coarse phase shown to the user.
type State string

const (
	StateIdle        State = "idle"
	StateRecording   State = "recording"
	StateProcessing  State = "processing"
	StateTranslating State = "translating"
)

// Snapshot is a copy of the session's observable state. Version increases
// with every change.
type Snapshot struct {
	ID              string     `json:"id"`
	Version         uint64     `json:"version"`
	State           State      `json:"state"`
	Recording       bool       `json:"recording"`
	Transcript      string     `json:"transcript"`
	Translation     string     `json:"translation"`
	SourceLanguage  string     `json:"source_language"`
	TargetLanguage  string     `json:"target_language"`
	TranscriptionID string     `json:"transcription_id,omitempty"`
	Translating     bool       `json:"translating"`
	Saving          bool       `json:"saving"`
	LastError       *ErrorInfo `json:"last_error,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Recorder is the recording controller.
type Recorder interface {
	Start(ctx context.Context) (*recording.Handle, error)
	Stop(h *recording.Handle) (recording.AudioBuffer, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, buf recording.AudioBuffer, sourceLanguage string) (*backend.Transcription, error)
}

type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Persister stores finished transcriptions on the backend.
type Persister interface {
	CreateTranscription(ctx context.Context, req backend.CreateTranscriptionRequest) (*backend.Transcription, error)
	UpdateTranscription(ctx context.Context, id backend.ID, req backend.UpdateTranscriptionRequest) (*backend.Transcription, error)
	CreateTranslation(ctx context.Context, req backend.CreateTranslationRequest) (*backend.Translation, error)
}

type AuthGate interface {
	IsAuthenticated() bool
}

// LoginPrompter asks the user to log in.
type LoginPrompter interface {
	PromptLogin(reason string)
}

// PromptFunc adapts a function to LoginPrompter.
type PromptFunc func(reason string)

func (f PromptFunc) PromptLogin(reason string) { f(reason) }

type Speaker interface {
	Speak(ctx context.Context, text, lang string) error
	Stop() error
}

// Prefs persists the language selection.
type Prefs interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

type Publisher interface {
	Publish(eventType, sessionID string, payload any)
}

// Options wires a Session to its collaborators. Prefs, Publisher, Prompter
// and Speaker may be nil.
type Options struct {
	Recorder    Recorder
	Transcriber Transcriber
	Translator  Translator
	Persister   Persister
	Auth        AuthGate
	Prompter    LoginPrompter
	Speaker     Speaker
	Prefs       Prefs
	Publisher   Publisher

	SourceLanguage string
	TargetLanguage string
	Log            zerolog.Logger
}

// SavedRecord describes one successful save.
type SavedRecord struct {
	SessionID       string    `json:"session_id"`
	TranscriptionID string    `json:"transcription_id"`
	SourceLanguage  string    `json:"source_language"`
	TargetLanguage  string    `json:"target_language"`
	Transcript      string    `json:"transcript"`
	Translation     string    `json:"translation"`
	TranslationID   string    `json:"translation_id,omitempty"`
	Created         bool      `json:"created"`
	SavedAt         time.Time `json:"saved_at"`
}

// Session owns the live document. All fields below mu are guarded by it;
// network calls are made without holding it.
//
// Each async class has a generation counter. A result is applied only if
// no newer request of the same class was issued (and no Reset happened)
// while it was in flight.
type Session struct {
	id   string
	opts Options
	log  zerolog.Logger
	now  func() time.Time

	mu              sync.Mutex
	version         uint64
	handle          *recording.Handle
	processing      int
	transcript      string
	translation     string
	source          string
	target          string
	transcriptionID backend.ID
	inFlight        int
	saving          bool
	lastErr         *ErrorInfo
	updatedAt       time.Time

	recGen       uint64
	translateGen uint64
	saveGen      uint64
}

// New creates an idle session. Persisted language preferences override the
// defaults in opts.
func New(opts Options) *Session {
	s := &Session{
		id:     uuid.NewString(),
		opts:   opts,
		log:    opts.Log.With().Str("component", "session").Logger(),
		now:    time.Now,
		source: opts.SourceLanguage,
		target: opts.TargetLanguage,
	}
	if s.source == "" {
		s.source = "en-US"
	}
	if s.target == "" {
		s.target = "es"
	}
	if opts.Prefs != nil {
		if v, ok, err := opts.Prefs.Get(localstore.KeySourceLanguage); err == nil && ok && language.Valid(v) {
			s.source = v
		}
		if v, ok, err := opts.Prefs.Get(localstore.KeyTargetLanguage); err == nil && ok && language.Valid(v) {
			s.target = v
		}
	}
	s.updatedAt = s.now()
	s.log.Info().Str("session_id", s.id).Str("source", s.source).Str("target", s.target).Msg("session created")
	return s
}

func (s *Session) ID() string { return s.id }

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// TranslationsInFlight reports outstanding live translation requests.
func (s *Session) TranslationsInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:              s.id,
		Version:         s.version,
		Recording:       s.handle != nil,
		Transcript:      s.transcript,
		Translation:     s.translation,
		SourceLanguage:  s.source,
		TargetLanguage:  s.target,
		TranscriptionID: s.transcriptionID.String(),
		Translating:     s.inFlight > 0,
		Saving:          s.saving,
		UpdatedAt:       s.updatedAt,
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	switch {
	case snap.Recording:
		snap.State = StateRecording
	case s.processing > 0:
		snap.State = StateProcessing
	case snap.Translating:
		snap.State = StateTranslating
	default:
		snap.State = StateIdle
	}
	return snap
}

// changedLocked marks a mutation and returns the snapshot to publish once
// the lock is released.
func (s *Session) changedLocked() Snapshot {
	s.version++
	s.updatedAt = s.now()
	return s.snapshotLocked()
}

func (s *Session) publish(snap Snapshot) {
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(events.TypeSnapshot, s.id, snap)
	}
}

func (s *Session) fail(e *Error) *Error {
	s.lastErr = e.info()
	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(events.TypeError, s.id, s.lastErr)
	}
	return e
}

func (s *Session) promptLogin(reason string) {
	if s.opts.Prompter != nil {
		s.opts.Prompter.PromptLogin(reason)
	}
}

func observe(op string, err error) {
	metrics.SessionTransitionsTotal.WithLabelValues(op, metrics.Outcome(err)).Inc()
}

// ── Recording ────────────────────────────────────────────────────────

// StartRecording opens the microphone. Only one recording may be active.
func (s *Session) StartRecording(ctx context.Context) (err error) {
	defer func() { observe("start_recording", err) }()

	s.mu.Lock()
	if s.handle != nil {
		s.mu.Unlock()
		return ErrAlreadyRecording
	}
	s.mu.Unlock()

	h, startErr := s.opts.Recorder.Start(ctx)

	s.mu.Lock()
	if startErr != nil {
		e := s.fail(&Error{Kind: KindPermissionDenied, Message: msgMicrophone, Err: startErr})
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		s.log.Warn().Err(startErr).Msg("recording start failed")
		return e
	}
	if s.handle != nil {
		// Lost a race with a concurrent start; release the extra device.
		s.mu.Unlock()
		if _, err := s.opts.Recorder.Stop(h); err != nil {
			s.log.Warn().Err(err).Msg("failed to release duplicate recording")
		}
		return ErrAlreadyRecording
	}
	s.handle = h
	s.lastErr = nil
	snap := s.changedLocked()
	s.mu.Unlock()

	s.publish(snap)
	s.log.Info().Msg("recording started")
	return nil
}

// StopRecording finalizes the recording and, when logged in, transcribes and
// translates it. Without a credential the audio is dropped and the user is
// asked to log in.
func (s *Session) StopRecording(ctx context.Context) (err error) {
	defer func() { observe("stop_recording", err) }()

	s.mu.Lock()
	h := s.handle
	if h == nil {
		s.mu.Unlock()
		return ErrNotRecording
	}
	s.handle = nil
	s.mu.Unlock()

	buf, stopErr := s.opts.Recorder.Stop(h)
	if stopErr != nil {
		s.mu.Lock()
		e := s.fail(&Error{Kind: KindUploadFailed, Message: msgProcessFailed, Err: stopErr})
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		return e
	}

	if !s.opts.Auth.IsAuthenticated() {
		return s.requireLogin(msgLoginToTranscribe)
	}
	return s.process(ctx, buf)
}

// SubmitAudio transcribes and translates an audio file supplied by the
// caller instead of the microphone.
func (s *Session) SubmitAudio(ctx context.Context, buf recording.AudioBuffer) (err error) {
	defer func() { observe("submit_audio", err) }()

	s.mu.Lock()
	recordingActive := s.handle != nil
	s.mu.Unlock()
	if recordingActive {
		return ErrAlreadyRecording
	}
	if !s.opts.Auth.IsAuthenticated() {
		return s.requireLogin(msgLoginToTranscribe)
	}
	return s.process(ctx, buf)
}

func (s *Session) requireLogin(msg string) error {
	s.mu.Lock()
	e := s.fail(&Error{Kind: KindAuthRequired, Message: msg})
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
	s.promptLogin(msg)
	return e
}

func (s *Session) process(ctx context.Context, buf recording.AudioBuffer) error {
	s.mu.Lock()
	s.recGen++
	gen := s.recGen
	s.processing++
	source := s.source
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	rec, err := s.opts.Transcriber.Transcribe(ctx, buf, source)

	s.mu.Lock()
	s.processing--
	if gen != s.recGen {
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		metrics.StaleResultsDiscardedTotal.WithLabelValues("transcription").Inc()
		s.log.Debug().Uint64("generation", gen).Msg("stale transcription discarded")
		return nil
	}
	if err != nil {
		var e *Error
		if errors.Is(err, transcription.ErrAuthRequired) {
			e = s.fail(&Error{Kind: KindAuthRequired, Message: msgLoginToTranscribe, Err: err})
		} else {
			e = s.fail(&Error{Kind: KindUploadFailed, Message: msgProcessFailed, Err: err})
		}
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		if e.Kind == KindAuthRequired {
			s.promptLogin(e.Message)
		}
		s.log.Warn().Err(err).Msg("transcription failed")
		return e
	}
	s.transcript = rec.Content
	s.transcriptionID = rec.ID
	s.translation = ""
	s.lastErr = nil
	snap = s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	s.log.Info().Str("transcription_id", rec.ID.String()).Int("text_len", len(rec.Content)).Msg("transcript received")
	return s.retranslate(ctx)
}

// ── Transcript and languages ─────────────────────────────────────────

// EditTranscript replaces the transcript text without retranslating. A
// translation still running for the previous text is discarded.
func (s *Session) EditTranscript(text string) {
	s.mu.Lock()
	if s.transcript == text {
		s.mu.Unlock()
		return
	}
	s.transcript = text
	s.translateGen++
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
}

// CommitTranscript replaces the transcript text and retranslates it.
func (s *Session) CommitTranscript(ctx context.Context, text string) error {
	s.EditTranscript(text)
	return s.retranslate(ctx)
}

// SetSourceLanguage changes the source language and retranslates a
// non-empty transcript. Selecting the current language changes nothing.
func (s *Session) SetSourceLanguage(ctx context.Context, tag string) error {
	return s.setLanguage(ctx, tag, localstore.KeySourceLanguage, func() *string { return &s.source })
}

// SetTargetLanguage changes the target language and retranslates a
// non-empty transcript. Selecting the current language changes nothing.
func (s *Session) SetTargetLanguage(ctx context.Context, tag string) error {
	return s.setLanguage(ctx, tag, localstore.KeyTargetLanguage, func() *string { return &s.target })
}

func (s *Session) setLanguage(ctx context.Context, tag, prefKey string, field func() *string) (err error) {
	defer func() { observe("set_language", err) }()

	tag = strings.TrimSpace(tag)
	if !language.Valid(tag) {
		return ErrInvalidLanguage
	}

	s.mu.Lock()
	f := field()
	if *f == tag {
		s.mu.Unlock()
		return nil
	}
	*f = tag
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	if s.opts.Prefs != nil {
		if err := s.opts.Prefs.Set(prefKey, tag); err != nil {
			s.log.Warn().Err(err).Str("key", prefKey).Msg("language preference not persisted")
		}
	}
	return s.retranslate(ctx)
}

// retranslate translates the current transcript into the current target.
// Empty transcripts are not sent.
func (s *Session) retranslate(ctx context.Context) (err error) {
	s.mu.Lock()
	text, source, target := s.transcript, s.source, s.target
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil
	}
	s.translateGen++
	gen := s.translateGen
	s.inFlight++
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	defer func() { observe("translate", err) }()
	out, trErr := s.opts.Translator.Translate(ctx, text, source, target)

	s.mu.Lock()
	s.inFlight--
	if gen != s.translateGen {
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		metrics.StaleResultsDiscardedTotal.WithLabelValues("translation").Inc()
		s.log.Debug().Uint64("generation", gen).Str("target", target).Msg("stale translation discarded")
		return nil
	}
	if trErr != nil {
		e := s.fail(&Error{Kind: KindTranslationFailed, Message: msgTranslateFailed, Err: trErr})
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		s.log.Warn().Err(trErr).Str("target", target).Msg("translation failed")
		return e
	}
	s.translation = out
	s.lastErr = nil
	snap = s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)
	return nil
}

// ── Save ─────────────────────────────────────────────────────────────

// Save persists the transcript (and translation, when present) to the
// backend. The first save of a session without a transcription id creates
// the record; later saves update it.
func (s *Session) Save(ctx context.Context) (rec *SavedRecord, err error) {
	defer func() { observe("save", err) }()

	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return nil, ErrSaveInProgress
	}
	if strings.TrimSpace(s.transcript) == "" {
		e := s.fail(&Error{Kind: KindSaveFailed, Message: msgNothingToSave})
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		return nil, e
	}
	s.mu.Unlock()

	if !s.opts.Auth.IsAuthenticated() {
		return nil, s.requireLogin(msgLoginToSave)
	}

	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return nil, ErrSaveInProgress
	}
	s.saving = true
	gen := s.saveGen
	out := SavedRecord{
		SessionID:       s.id,
		TranscriptionID: s.transcriptionID.String(),
		SourceLanguage:  s.source,
		TargetLanguage:  s.target,
		Transcript:      s.transcript,
		Translation:     s.translation,
	}
	snap := s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	saveErr := s.persist(ctx, &out)

	s.mu.Lock()
	s.saving = false
	if out.TranscriptionID != "" && gen == s.saveGen && s.transcriptionID == "" {
		s.transcriptionID = backend.ID(out.TranscriptionID)
	}
	if saveErr != nil {
		e := s.fail(&Error{Kind: KindSaveFailed, Message: msgSaveFailed, Err: saveErr})
		snap := s.changedLocked()
		s.mu.Unlock()
		s.publish(snap)
		s.log.Warn().Err(saveErr).Msg("save failed")
		return nil, e
	}
	s.lastErr = nil
	snap = s.changedLocked()
	s.mu.Unlock()
	s.publish(snap)

	if s.opts.Publisher != nil {
		s.opts.Publisher.Publish(events.TypeSaved, s.id, out)
	}
	s.log.Info().
		Str("transcription_id", out.TranscriptionID).
		Bool("created", out.Created).
		Bool("with_translation", out.TranslationID != "").
		Msg("session saved")
	return &out, nil
}

// persist runs the backend calls of a save and fills in the ids on rec. On a
// partial failure rec still carries the transcription id that was created.
func (s *Session) persist(ctx context.Context, rec *SavedRecord) error {
	id := backend.ID(rec.TranscriptionID)
	if id == "" {
		created, err := s.opts.Persister.CreateTranscription(ctx, backend.CreateTranscriptionRequest{
			Title:    "Transcription " + s.now().Format("2006-01-02 15:04:05"),
			Language: language.Base(rec.SourceLanguage),
		})
		if err != nil {
			return err
		}
		id = created.ID
		rec.TranscriptionID = id.String()
		rec.Created = true
	}

	if _, err := s.opts.Persister.UpdateTranscription(ctx, id, backend.UpdateTranscriptionRequest{
		Content: rec.Transcript,
		Status:  backend.StatusCompleted,
	}); err != nil {
		return err
	}

	if strings.TrimSpace(rec.Translation) != "" {
		tr, err := s.opts.Persister.CreateTranslation(ctx, backend.CreateTranslationRequest{
			TranscriptionID: id,
			SourceLanguage:  language.Base(rec.SourceLanguage),
			TargetLanguage:  rec.TargetLanguage,
			Content:         rec.Translation,
		})
		if err != nil {
			return err
		}
		rec.TranslationID = tr.ID.String()
	}
	rec.SavedAt = s.now()
	return nil
}

// ── Reset and playback ───────────────────────────────────────────────

// Reset clears the transcript, translation, error and transcription id.
// Results of requests still in flight are discarded when they arrive. Login
// state and an active recording are left alone.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.transcript == "" && s.translation == "" && s.lastErr == nil && s.transcriptionID == "" {
		s.mu.Unlock()
		return
	}
	s.transcript = ""
	s.translation = ""
	s.lastErr = nil
	s.transcriptionID = ""
	s.recGen++
	s.translateGen++
	s.saveGen++
	snap := s.changedLocked()
	s.mu.Unlock()

	observe("reset", nil)
	s.publish(snap)
	s.log.Info().Msg("session reset")
}

// Play speaks the current translation in the target language. It does
// nothing when there is no translation.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	text, target := s.translation, s.target
	s.mu.Unlock()
	if strings.TrimSpace(text) == "" || s.opts.Speaker == nil {
		return nil
	}
	return s.opts.Speaker.Speak(ctx, text, target)
}

// StopPlayback cancels speech in progress.
func (s *Session) StopPlayback() error {
	if s.opts.Speaker == nil {
		return nil
	}
	return s.opts.Speaker.Stop()
}
