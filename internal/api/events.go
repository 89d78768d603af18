package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/medscribe/internal/events"
	"github.com/snarg/medscribe/internal/session"
)

// StreamHandler pushes session changes to clients over SSE and WebSocket.
type StreamHandler struct {
	session SessionService
	events  EventSource
	log     zerolog.Logger
}

func NewStreamHandler(s SessionService, ev EventSource, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		session: s,
		events:  ev,
		log:     log.With().Str("handler", "stream").Logger(),
	}
}

// Routes registers stream routes on the given router.
func (h *StreamHandler) Routes(r chi.Router) {
	r.Get("/session/events", h.StreamEvents)
	r.Get("/session/ws", h.WebSocket)
}

// StreamEvents opens an SSE connection. Without Last-Event-ID the stream
// starts with the current snapshot; with it, missed events are replayed.
func (h *StreamHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	filter := events.Filter{Types: QueryStringList(r, "types")}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before replaying so nothing published in between is lost
	ch, cancel := h.events.Subscribe(filter)
	defer cancel()

	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		for _, e := range h.events.ReplaySince(lastEventID, filter) {
			writeSSE(w, e)
		}
	} else if matchesType(filter, events.TypeSnapshot) {
		writeSSE(w, snapshotEvent(h.session.Snapshot()))
	}
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	log := hlog.FromRequest(r)
	log.Info().Msg("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			log.Info().Msg("SSE client disconnected")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, e events.Event) {
	if e.ID != "" {
		fmt.Fprintf(w, "id: %s\n", e.ID)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, e.Data)
}

// snapshotEvent wraps the current state for a newly connected client. It has
// no id so it never becomes a replay cursor.
func snapshotEvent(snap session.Snapshot) events.Event {
	data, _ := json.Marshal(snap)
	return events.Event{
		Type:      events.TypeSnapshot,
		SessionID: snap.ID,
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
}

func matchesType(f events.Filter, eventType string) bool {
	return f.Matches(events.Event{Type: eventType})
}
