package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/language"
)

// HistoryHandler browses transcriptions saved on the backend.
type HistoryHandler struct {
	history HistoryService
	log     zerolog.Logger
}

func NewHistoryHandler(h HistoryService, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		history: h,
		log:     log.With().Str("handler", "history").Logger(),
	}
}

// Routes registers history routes on the given router.
func (h *HistoryHandler) Routes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/translations/{lang}", h.Translate)
		r.Get("/{id}/analysis", h.Analyze)
		r.Get("/{id}/summary", h.Summarize)
		r.Post("/{id}/export", h.Export)
	})
}

// List handles GET /api/v1/history.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.history.List(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"transcriptions": items,
		"total":          len(items),
	})
}

// Get handles GET /api/v1/history/{id}.
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.history.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/history/{id}.
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.history.Delete(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Translate handles GET /api/v1/history/{id}/translations/{lang}. An existing
// translation is reused; otherwise one is created.
func (h *HistoryHandler) Translate(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	lang := chi.URLParam(r, "lang")
	if !language.Valid(lang) {
		WriteError(w, http.StatusBadRequest, "invalid language tag")
		return
	}
	tr, err := h.history.Translate(r.Context(), id, lang)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, tr)
}

// Analyze handles GET /api/v1/history/{id}/analysis.
func (h *HistoryHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.history.Analyze(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Summarize handles GET /api/v1/history/{id}/summary.
func (h *HistoryHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.history.Summarize(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// Export handles POST /api/v1/history/{id}/export.
func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r, "id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.history.Export(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	h.log.Info().Str("transcription_id", id.String()).Str("key", res.Key).Str("store", res.Store).Msg("transcription exported")
	WriteJSON(w, http.StatusCreated, res)
}
