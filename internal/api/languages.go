package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/snarg/medscribe/internal/language"
	"github.com/snarg/medscribe/internal/playback"
)

// LanguagesHandler serves language lists, voices, glossaries and quality
// checks.
type LanguagesHandler struct {
	languages    LanguageSource
	translations TranslationService
	voices       VoiceSource
}

// NewLanguagesHandler creates the handler. voices may be nil when speech
// output is not available.
func NewLanguagesHandler(languages LanguageSource, translations TranslationService, voices VoiceSource) *LanguagesHandler {
	return &LanguagesHandler{languages: languages, translations: translations, voices: voices}
}

// Routes registers language routes on the given router.
func (h *LanguagesHandler) Routes(r chi.Router) {
	r.Get("/languages", h.ListLanguages)
	r.Get("/voices", h.ListVoices)
	r.Get("/glossary/{source}/{target}", h.Glossary)
	r.Get("/translations/{id}/quality", h.Quality)
}

// ListLanguages handles GET /api/v1/languages. ?type=source|target selects one
// list; without it both are returned.
func (h *LanguagesHandler) ListLanguages(w http.ResponseWriter, r *http.Request) {
	kind, ok := QueryString(r, "type")
	if !ok {
		WriteJSON(w, http.StatusOK, map[string][]language.Info{
			"source": h.languages.Languages(r.Context(), "source"),
			"target": h.languages.Languages(r.Context(), "target"),
		})
		return
	}
	if kind != "source" && kind != "target" {
		WriteError(w, http.StatusBadRequest, "type must be source or target")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"type":      kind,
		"languages": h.languages.Languages(r.Context(), kind),
	})
}

// ListVoices handles GET /api/v1/voices.
func (h *LanguagesHandler) ListVoices(w http.ResponseWriter, r *http.Request) {
	voices := []playback.Voice{}
	if h.voices != nil {
		if v := h.voices.Voices(r.Context()); v != nil {
			voices = v
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"voices": voices,
		"total":  len(voices),
	})
}

// Glossary handles GET /api/v1/glossary/{source}/{target}.
func (h *LanguagesHandler) Glossary(w http.ResponseWriter, r *http.Request) {
	source, target := chi.URLParam(r, "source"), chi.URLParam(r, "target")
	if !language.Valid(source) || !language.Valid(target) {
		WriteError(w, http.StatusBadRequest, "invalid language tag")
		return
	}
	g, err := h.translations.Glossary(r.Context(), source, target)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, g)
}

// Quality handles GET /api/v1/translations/{id}/quality.
func (h *LanguagesHandler) Quality(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.translations.CheckQuality(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}
