// Package events fans session events out to local stream subscribers and to
// external sinks.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/medscribe/internal/metrics"
)

// Event types.
const (
	TypeSnapshot = "session.snapshot"
	TypeSaved    = "session.saved"
	TypeError    = "session.error"
	TypeDeleted  = "history.deleted"

	// TypeLoginRequired asks the user to log in; data is {"reason": ...}.
	TypeLoginRequired = "session.login_required"
)

// Event is one published message.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Time      string          `json:"time"`
	Data      json.RawMessage `json:"data"`
}

// Filter selects events by type. An empty filter matches everything.
type Filter struct {
	Types []string
}

// Matches reports whether e passes the filter.
func (f Filter) Matches(e Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		t = strings.TrimSpace(t)
		if t == e.Type {
			return true
		}
		// "session" matches every "session.*" type
		if !strings.Contains(t, ".") && strings.HasPrefix(e.Type, t+".") {
			return true
		}
	}
	return false
}

// Sink delivers events outside the process.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Bus provides pub-sub event distribution for SSE and WebSocket subscribers.
// It keeps a ring buffer for replay on reconnect.
type Bus struct {
	log zerolog.Logger

	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64

	ring     []Event
	ringSize int
	ringHead int
	ringMu   sync.RWMutex

	sinks  []*sinkWorker
	sinkWG sync.WaitGroup
	closed bool
}

type subscriber struct {
	ch     chan Event
	filter Filter
}

type sinkWorker struct {
	sink   Sink
	filter Filter
	ch     chan Event
}

// NewBus creates an event bus with the given ring buffer size.
func NewBus(ringSize int, log zerolog.Logger) *Bus {
	if ringSize <= 0 {
		ringSize = 256
	}
	return &Bus{
		log:         log.With().Str("component", "events").Logger(),
		subscribers: make(map[uint64]subscriber),
		ring:        make([]Event, ringSize),
		ringSize:    ringSize,
	}
}

// AddSink starts forwarding events matching filter to s. Delivery runs on a
// dedicated goroutine; events are dropped when the sink falls behind.
func (b *Bus) AddSink(s Sink, filter Filter) {
	w := &sinkWorker{sink: s, filter: filter, ch: make(chan Event, 256)}
	b.mu.Lock()
	b.sinks = append(b.sinks, w)
	b.mu.Unlock()

	b.sinkWG.Add(1)
	go func() {
		defer b.sinkWG.Done()
		for e := range w.ch {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := s.Publish(ctx, e)
			cancel()
			metrics.EventsPublishedTotal.WithLabelValues(s.Name(), metrics.Outcome(err)).Inc()
			if err != nil {
				b.log.Warn().Err(err).Str("sink", s.Name()).Str("type", e.Type).Msg("sink publish failed")
			}
		}
	}()
	b.log.Info().Str("sink", s.Name()).Strs("types", filter.Types).Msg("event sink attached")
}

// Subscribe registers a new subscriber and returns a channel and cancel function.
func (b *Bus) Subscribe(filter Filter) (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of live stream subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReplaySince returns buffered events published after lastEventID. An unknown
// id replays nothing.
func (b *Bus) ReplaySince(lastEventID string, filter Filter) []Event {
	b.ringMu.RLock()
	defer b.ringMu.RUnlock()

	var out []Event
	found := lastEventID == ""

	for i := 0; i < b.ringSize; i++ {
		e := b.ring[(b.ringHead+i)%b.ringSize]
		if e.ID == "" {
			continue
		}
		if !found {
			if e.ID == lastEventID {
				found = true
			}
			continue
		}
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Publish sends an event to all matching subscribers and sinks and adds it to
// the ring buffer.
func (b *Bus) Publish(eventType, sessionID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error().Err(err).Str("type", eventType).Msg("event payload not serializable")
		return
	}

	e := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}

	b.ringMu.Lock()
	b.ring[b.ringHead] = e
	b.ringHead = (b.ringHead + 1) % b.ringSize
	b.ringMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.filter.Matches(e) {
			select {
			case sub.ch <- e:
			default:
				// Drop if subscriber is slow
			}
		}
	}
	if b.closed {
		return
	}
	for _, w := range b.sinks {
		if !w.filter.Matches(e) {
			continue
		}
		select {
		case w.ch <- e:
		default:
			metrics.EventsPublishedTotal.WithLabelValues(w.sink.Name(), "dropped").Inc()
		}
	}
}

// Close drains pending sink deliveries and closes every sink.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, w := range b.sinks {
		close(w.ch)
	}
	sinks := b.sinks
	b.mu.Unlock()

	b.sinkWG.Wait()
	for _, w := range sinks {
		if err := w.sink.Close(); err != nil {
			b.log.Warn().Err(err).Str("sink", w.sink.Name()).Msg("sink close failed")
		}
	}
}
