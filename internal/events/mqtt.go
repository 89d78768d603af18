package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Publisher is the MQTT connection used by MQTTSink.
type Publisher interface {
	Publish(suffix string, payload []byte, timeout time.Duration) error
	Close()
}

// MQTTSink publishes each event under <prefix>/<type>, with dots in the type
// turned into topic levels.
type MQTTSink struct {
	pub Publisher
}

func NewMQTTSink(pub Publisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

func (m *MQTTSink) Name() string { return "mqtt" }

func (m *MQTTSink) Publish(ctx context.Context, e Event) error {
	payload, err := marshalEvent(e)
	if err != nil {
		return err
	}
	timeout := 10 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	return m.pub.Publish(strings.ReplaceAll(e.Type, ".", "/"), payload, timeout)
}

func (m *MQTTSink) Close() error {
	m.pub.Close()
	return nil
}

func marshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
