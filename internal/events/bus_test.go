package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (r *recordingSink) Name() string { return "test" }

func (r *recordingSink) Publish(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		b := NewBus(16, zerolog.Nop())
		ch, cancel := b.Subscribe(Filter{})
		defer cancel()

		b.Publish(TypeSaved, "sess-1", map[string]string{"id": "42"})

		select {
		case e := <-ch:
			if e.Type != TypeSaved || e.SessionID != "sess-1" {
				t.Errorf("event = %+v", e)
			}
			if e.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(e.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["id"] != "42" {
				t.Errorf("payload = %v", payload)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		b := NewBus(16, zerolog.Nop())
		ch, cancel := b.Subscribe(Filter{Types: []string{TypeSaved}})
		defer cancel()

		b.Publish(TypeSnapshot, "", "x")

		select {
		case e := <-ch:
			t.Fatalf("should not receive event, got %+v", e)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("prefix_filter", func(t *testing.T) {
		f := Filter{Types: []string{"session"}}
		if !f.Matches(Event{Type: TypeSaved}) || !f.Matches(Event{Type: TypeSnapshot}) {
			t.Error("session prefix should match session.* types")
		}
		if f.Matches(Event{Type: TypeDeleted}) {
			t.Error("session prefix matched history.deleted")
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		b := NewBus(16, zerolog.Nop())
		ch, cancel := b.Subscribe(Filter{})
		cancel()
		cancel()
		if b.SubscriberCount() != 0 {
			t.Errorf("SubscriberCount = %d, want 0", b.SubscriberCount())
		}

		b.Publish(TypeSaved, "", "x")
		select {
		case <-ch:
			t.Fatal("should not receive event after cancel")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("slow_subscriber_does_not_block", func(t *testing.T) {
		b := NewBus(16, zerolog.Nop())
		_, cancel := b.Subscribe(Filter{})
		defer cancel()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 200; i++ {
				b.Publish(TypeSnapshot, "", i)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Publish blocked on a full subscriber")
		}
	})
}

func TestBusReplaySince(t *testing.T) {
	b := NewBus(4, zerolog.Nop())
	ch, cancel := b.Subscribe(Filter{})
	defer cancel()

	var ids []string
	for i := 0; i < 3; i++ {
		b.Publish(TypeSnapshot, "", i)
		ids = append(ids, (<-ch).ID)
	}

	t.Run("after_known_id", func(t *testing.T) {
		got := b.ReplaySince(ids[0], Filter{})
		if len(got) != 2 || got[0].ID != ids[1] || got[1].ID != ids[2] {
			t.Errorf("replay = %v", got)
		}
	})

	t.Run("unknown_id_replays_nothing", func(t *testing.T) {
		if got := b.ReplaySince("nope", Filter{}); len(got) != 0 {
			t.Errorf("replay = %d events, want 0", len(got))
		}
	})

	t.Run("ring_wraps", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			b.Publish(TypeSnapshot, "", i)
		}
		if got := b.ReplaySince("", Filter{}); len(got) != 4 {
			t.Errorf("replay = %d events, want ring size 4", len(got))
		}
	})
}

func TestBusSinks(t *testing.T) {
	b := NewBus(16, zerolog.Nop())
	sink := &recordingSink{err: errors.New("broker down")}
	b.AddSink(sink, Filter{Types: []string{TypeSaved}})

	b.Publish(TypeSnapshot, "s", 1)
	b.Publish(TypeSaved, "s", 2)
	b.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.events) != 1 || sink.events[0].Type != TypeSaved {
		t.Errorf("sink events = %+v, want one saved event", sink.events)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}

	// Publishing after Close must not panic.
	b.Publish(TypeSaved, "s", 3)
}

func TestKafkaMessage(t *testing.T) {
	msg, err := kafkaMessage(Event{ID: "e1", Type: TypeSaved, SessionID: "s1", Data: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != "s1" {
		t.Errorf("key = %q, want session id", msg.Key)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != TypeSaved {
		t.Errorf("headers = %+v", msg.Headers)
	}

	msg, _ = kafkaMessage(Event{ID: "e2", Type: TypeDeleted})
	if string(msg.Key) != "e2" {
		t.Errorf("key = %q, want event id fallback", msg.Key)
	}
}

type fakePublisher struct {
	suffix  string
	payload []byte
}

func (f *fakePublisher) Publish(suffix string, payload []byte, timeout time.Duration) error {
	f.suffix = suffix
	f.payload = payload
	return nil
}

func (f *fakePublisher) Close() {}

func TestMQTTSinkTopic(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewMQTTSink(pub)
	if err := sink.Publish(context.Background(), Event{ID: "e1", Type: TypeSaved}); err != nil {
		t.Fatal(err)
	}
	if pub.suffix != "session/saved" {
		t.Errorf("suffix = %q, want session/saved", pub.suffix)
	}
	var e Event
	if err := json.Unmarshal(pub.payload, &e); err != nil || e.ID != "e1" {
		t.Errorf("payload = %s (%v)", pub.payload, err)
	}
}
