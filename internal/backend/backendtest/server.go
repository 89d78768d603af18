// Package backendtest provides an in-memory fake of the backend REST API for
// tests in other packages.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/medscribe/internal/backend"
)

// Token is the access token the fake issues and accepts.
const Token = "test-token"

// Server is a fake backend. Zero-value fields give sensible defaults.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	calls          map[string]int
	nextID         int
	transcriptions map[string]*backend.Transcription
	translations   map[string][]backend.Translation

	// TranscriptText is returned as the content of every uploaded recording.
	TranscriptText string
	// TranslateFunc produces the translation of text into target.
	TranslateFunc func(text, target string) string
	// Fail maps an operation name (see Calls) to a status code to return.
	Fail map[string]int
	// Glossaries keyed by "src/tgt"; missing pairs return 404.
	Glossaries map[string]backend.Glossary
	// LastUpload holds the bytes of the most recent upload.
	LastUpload []byte
	// LastAITranslate holds the most recent AI translation request.
	LastAITranslate backend.AITranslateRequest
}

// New starts a fake backend. Call Close when done.
func New() *Server {
	s := &Server{
		calls:          make(map[string]int),
		transcriptions: make(map[string]*backend.Transcription),
		translations:   make(map[string][]backend.Translation),
		TranscriptText: "patient reports chest pain",
		TranslateFunc: func(text, target string) string {
			return "[" + target + "] " + text
		},
		Fail:       make(map[string]int),
		Glossaries: make(map[string]backend.Glossary),
	}

	r := chi.NewRouter()
	r.Post("/register", s.handle("register", false, s.register))
	r.Post("/token", s.handle("login", false, s.login))
	r.Get("/users/me", s.handle("me", true, s.me))
	r.Post("/transcriptions", s.handle("create_transcription", true, s.createTranscription))
	r.Get("/transcriptions", s.handle("list_transcriptions", true, s.listTranscriptions))
	r.Get("/transcriptions/{id}", s.handle("get_transcription", true, s.getTranscription))
	r.Put("/transcriptions/{id}", s.handle("update_transcription", true, s.updateTranscription))
	r.Delete("/transcriptions/{id}", s.handle("delete_transcription", true, s.deleteTranscription))
	r.Post("/ai/transcriptions/{id}/upload", s.handle("upload_audio", true, s.upload))
	r.Get("/ai/transcriptions/{id}/analysis", s.handle("analyze_transcription", true, s.rawOK))
	r.Get("/ai/transcriptions/{id}/summarize", s.handle("summarize_transcription", true, s.rawOK))
	r.Post("/translations", s.handle("create_translation", true, s.createTranslation))
	r.Get("/translations/transcription/{id}", s.handle("list_translations", true, s.listTranslations))
	r.Post("/ai/translations", s.handle("ai_translate", true, s.aiTranslate))
	r.Get("/ai/translations/{id}/quality-check", s.handle("quality_check", true, s.rawOK))
	r.Get("/ai/medical-glossary/{src}/{tgt}", s.handle("medical_glossary", true, s.glossary))
	r.Get("/languages", s.handle("languages", false, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not implemented"})
	}))

	s.Server = httptest.NewServer(r)
	return s
}

// Calls returns how many times op was requested.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of requests of any kind.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Transcription returns a stored record.
func (s *Server) Transcription(id string) (backend.Transcription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcriptions[id]
	if !ok {
		return backend.Transcription{}, false
	}
	return *t, true
}

// Translations returns the stored translations for a transcription.
func (s *Server) Translations(id string) []backend.Translation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Translation(nil), s.translations[id]...)
}

// SetFail makes op fail with status until cleared with status 0.
func (s *Server) SetFail(op string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.Fail, op)
		return
	}
	s.Fail[op] = status
}

func (s *Server) handle(op string, auth bool, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[op]++
		status := s.Fail[op]
		s.mu.Unlock()

		if auth && r.Header.Get("Authorization") != "Bearer "+Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": op + " failed"})
			return
		}
		h(w, r)
	}
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req backend.RegisterRequest
	json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	id := s.newID()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "username": req.Username, "email": req.Email})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	if body["password"] != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	writeJSON(w, http.StatusOK, backend.TokenResponse{AccessToken: Token, TokenType: "bearer"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"id": 1, "username": "doc", "email": "doc@example.com"})
}

func (s *Server) createTranscription(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateTranscriptionRequest
	json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	id := s.newID()
	t := &backend.Transcription{ID: backend.ID(id), Title: req.Title, Language: req.Language, Status: backend.StatusPending}
	s.transcriptions[id] = t
	out := *t
	s.mu.Unlock()
	// Numeric ids on the wire, like the real backend.
	n, _ := strconv.Atoi(id)
	writeJSON(w, http.StatusOK, map[string]any{"id": n, "title": out.Title, "language": out.Language, "status": out.Status})
}

func (s *Server) listTranscriptions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]backend.Transcription, 0, len(s.transcriptions))
	for i := 1; i <= s.nextID; i++ {
		if t, ok := s.transcriptions[strconv.Itoa(i)]; ok {
			out = append(out, *t)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*backend.Transcription, bool) {
	t, ok := s.transcriptions[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Transcription not found"})
	}
	return t, ok
}

func (s *Server) getTranscription(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) updateTranscription(w http.ResponseWriter, r *http.Request) {
	var req backend.UpdateTranscriptionRequest
	json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.lookup(w, r); ok {
		t.Content = req.Content
		t.Status = req.Status
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) deleteTranscription(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(w, r); ok {
		delete(s.transcriptions, chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	f, _, err := r.FormFile("audio_file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "audio_file required"})
		return
	}
	data, _ := io.ReadAll(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastUpload = data
	if t, ok := s.lookup(w, r); ok {
		t.Content = s.TranscriptText
		t.Status = backend.StatusCompleted
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) createTranslation(w http.ResponseWriter, r *http.Request) {
	var req backend.CreateTranslationRequest
	json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := backend.Translation{
		ID:              backend.ID(s.newID()),
		TranscriptionID: req.TranscriptionID,
		SourceLanguage:  req.SourceLanguage,
		TargetLanguage:  req.TargetLanguage,
		Content:         req.Content,
	}
	key := req.TranscriptionID.String()
	s.translations[key] = append(s.translations[key], tr)
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) listTranslations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]backend.Translation{}, s.translations[chi.URLParam(r, "id")]...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) aiTranslate(w http.ResponseWriter, r *http.Request) {
	var req backend.AITranslateRequest
	json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAITranslate = req

	text := req.Text
	if req.TranscriptionID != "" {
		t, ok := s.transcriptions[req.TranscriptionID.String()]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Transcription not found"})
			return
		}
		text = t.Content
	}
	tr := backend.Translation{
		ID:              backend.ID(s.newID()),
		TranscriptionID: req.TranscriptionID,
		SourceLanguage:  req.SourceLanguage,
		TargetLanguage:  req.TargetLanguage,
		Content:         s.TranslateFunc(text, req.TargetLanguage),
	}
	if req.TranscriptionID != "" {
		key := req.TranscriptionID.String()
		s.translations[key] = append(s.translations[key], tr)
	}
	writeJSON(w, http.StatusOK, tr)
}

func (s *Server) glossary(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "src") + "/" + chi.URLParam(r, "tgt")
	s.mu.Lock()
	g, ok := s.Glossaries[key]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Glossary not found"})
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) rawOK(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/ai/")
	writeJSON(w, http.StatusOK, map[string]string{"result": fmt.Sprintf("ok:%s", path)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
