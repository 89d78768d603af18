package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snarg/medscribe/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 1 << 20
)

// Origin checks are left to CORSWithOrigins and BearerAuth.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsCommand is a client message on the session socket.
type wsCommand struct {
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	SourceLanguage string `json:"source_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// wsReply answers every client command. Status is an HTTP status code; the
// error fields are set only when the command failed.
type wsReply struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Status  int    `json:"status"`
	ErrorResponse
}

var errUnknownCommand = errors.New("unknown command")

// WebSocket upgrades to a bidirectional session channel: session events go
// out, edit commands come in.
func (h *StreamHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	ch, cancel := h.events.Subscribe(events.Filter{Types: []string{"session"}})
	defer cancel()

	replies := make(chan wsReply, 16)
	done := make(chan struct{})
	go h.readCommands(ctx, conn, replies, done)

	h.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client connected")
	defer h.log.Info().Str("remote", r.RemoteAddr).Msg("websocket client disconnected")

	if err := writeWS(conn, snapshotEvent(h.session.Snapshot())); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-ch:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := writeWS(conn, e); err != nil {
				return
			}
		case reply := <-replies:
			if err := writeWS(conn, reply); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeWS(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

// readCommands runs until the client goes away. Commands are applied in
// order; a slow command (commit translates) holds back the ones after it.
func (h *StreamHandler) readCommands(ctx context.Context, conn *websocket.Conn, replies chan<- wsReply, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(msg, &cmd); err != nil {
			h.reply(replies, wsReply{
				Type:          "reply",
				Status:        http.StatusBadRequest,
				ErrorResponse: ErrorResponse{Error: "invalid command", Detail: err.Error()},
			})
			continue
		}

		if err := h.dispatch(ctx, cmd); err != nil {
			status, body := classify(err)
			if errors.Is(err, errUnknownCommand) {
				status, body = http.StatusBadRequest, ErrorResponse{Error: err.Error()}
			}
			h.reply(replies, wsReply{Type: "reply", Command: cmd.Type, Status: status, ErrorResponse: body})
			continue
		}
		h.reply(replies, wsReply{Type: "reply", Command: cmd.Type, Status: http.StatusOK})
	}
}

func (h *StreamHandler) dispatch(ctx context.Context, cmd wsCommand) error {
	switch cmd.Type {
	case "edit":
		h.session.EditTranscript(cmd.Text)
		return nil
	case "commit":
		return h.session.CommitTranscript(ctx, cmd.Text)
	case "languages":
		if cmd.SourceLanguage != "" {
			if err := h.session.SetSourceLanguage(ctx, cmd.SourceLanguage); err != nil {
				return err
			}
		}
		if cmd.TargetLanguage != "" {
			return h.session.SetTargetLanguage(ctx, cmd.TargetLanguage)
		}
		return nil
	case "reset":
		h.session.Reset()
		return nil
	case "play":
		return h.session.Play(ctx)
	case "stop_playback":
		return h.session.StopPlayback()
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
}

func (h *StreamHandler) reply(replies chan<- wsReply, r wsReply) {
	select {
	case replies <- r:
	default:
		h.log.Warn().Str("command", r.Command).Msg("websocket reply dropped")
	}
}
