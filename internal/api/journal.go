package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/medscribe/internal/database"
)

// JournalHandler lists the local record of saves.
type JournalHandler struct {
	journal JournalSource
}

// NewJournalHandler creates the handler. journal is nil when no database is
// configured.
func NewJournalHandler(journal JournalSource) *JournalHandler {
	return &JournalHandler{journal: journal}
}

// Routes registers journal routes on the given router.
func (h *JournalHandler) Routes(r chi.Router) {
	r.Get("/journal", h.List)
}

// List handles GET /api/v1/journal.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		WriteError(w, http.StatusServiceUnavailable, "journal database not configured")
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := database.JournalFilter{Limit: p.Limit, Offset: p.Offset}
	f.SessionID, _ = QueryString(r, "session_id")
	f.TranscriptionID, _ = QueryString(r, "transcription_id")
	f.TargetLanguage, _ = QueryString(r, "target_language")
	f.IncludeDeleted, _ = QueryBool(r, "include_deleted")

	entries, total, err := h.journal.ListSaved(r.Context(), f)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to list journal")
		WriteError(w, http.StatusInternalServerError, "failed to list journal")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"limit":   p.Limit,
		"offset":  p.Offset,
	})
}
