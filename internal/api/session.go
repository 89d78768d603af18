package api

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/recording"
)

const maxAudioUpload = 64 << 20

// SessionHandler exposes the live session.
type SessionHandler struct {
	session SessionService
	log     zerolog.Logger
}

func NewSessionHandler(s SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		session: s,
		log:     log.With().Str("handler", "session").Logger(),
	}
}

// Routes registers session routes on the given router.
func (h *SessionHandler) Routes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/recording/start", h.StartRecording)
		r.Post("/recording/stop", h.StopRecording)
		r.Post("/audio", h.SubmitAudio)
		r.Put("/transcript", h.EditTranscript)
		r.Post("/transcript/commit", h.CommitTranscript)
		r.Put("/languages", h.SetLanguages)
		r.Post("/save", h.Save)
		r.Post("/reset", h.Reset)
		r.Post("/play", h.Play)
		r.Post("/play/stop", h.StopPlayback)
	})
}

// GetSession handles GET /api/v1/session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// StartRecording handles POST /api/v1/session/recording/start.
func (h *SessionHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.session.StartRecording(r.Context()))
}

// StopRecording handles POST /api/v1/session/recording/stop. It returns once
// transcription and the first translation have finished.
func (h *SessionHandler) StopRecording(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.session.StopRecording(r.Context()))
}

// SubmitAudio handles POST /api/v1/session/audio. The multipart field is
// audio_file, the same name the backend uses.
func (h *SessionHandler) SubmitAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "audio_file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}
	if len(data) == 0 {
		WriteError(w, http.StatusBadRequest, "audio file is empty")
		return
	}

	buf := recording.AudioBuffer{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		Filename:    filepath.Base(header.Filename),
	}
	if buf.ContentType == "" {
		buf.ContentType = contentTypeFor(buf.Filename)
	}

	h.log.Debug().Str("filename", buf.Filename).Int("bytes", len(data)).Msg("audio submitted")
	h.respond(w, h.session.SubmitAudio(r.Context(), buf))
}

type transcriptRequest struct {
	Text string `json:"text"`
}

// EditTranscript handles PUT /api/v1/session/transcript. It only replaces the
// text; nothing is translated until the edit is committed.
func (h *SessionHandler) EditTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	h.session.EditTranscript(req.Text)
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// CommitTranscript handles POST /api/v1/session/transcript/commit.
func (h *SessionHandler) CommitTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	h.respond(w, h.session.CommitTranscript(r.Context(), req.Text))
}

type languagesRequest struct {
	SourceLanguage *string `json:"source_language"`
	TargetLanguage *string `json:"target_language"`
}

// SetLanguages handles PUT /api/v1/session/languages. Either field may be
// omitted.
func (h *SessionHandler) SetLanguages(w http.ResponseWriter, r *http.Request) {
	var req languagesRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.SourceLanguage == nil && req.TargetLanguage == nil {
		WriteError(w, http.StatusBadRequest, "source_language or target_language is required")
		return
	}
	if req.SourceLanguage != nil {
		if err := h.session.SetSourceLanguage(r.Context(), *req.SourceLanguage); err != nil {
			WriteServiceError(w, err)
			return
		}
	}
	if req.TargetLanguage != nil {
		if err := h.session.SetTargetLanguage(r.Context(), *req.TargetLanguage); err != nil {
			WriteServiceError(w, err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Save handles POST /api/v1/session/save.
func (h *SessionHandler) Save(w http.ResponseWriter, r *http.Request) {
	rec, err := h.session.Save(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	status := http.StatusOK
	if rec.Created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, rec)
}

// Reset handles POST /api/v1/session/reset.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// Play handles POST /api/v1/session/play.
func (h *SessionHandler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Play(r.Context()); err != nil {
		WriteErrorDetail(w, http.StatusServiceUnavailable, "playback failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StopPlayback handles POST /api/v1/session/play/stop.
func (h *SessionHandler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StopPlayback(); err != nil {
		WriteErrorDetail(w, http.StatusServiceUnavailable, "failed to stop playback", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respond writes the snapshot on success. Failures are also recorded in the
// snapshot's last_error, so clients watching the stream see them either way.
func (h *SessionHandler) respond(w http.ResponseWriter, err error) {
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".webm":
		return "audio/webm"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
