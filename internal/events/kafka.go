package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaSink writes events to a Kafka topic keyed by session id.
type KafkaSink struct {
	writer *kafka.Writer
	topic  string
	log    zerolog.Logger
}

func NewKafkaSink(brokers []string, topic string, log zerolog.Logger) *KafkaSink {
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka sink initialized")
	return &KafkaSink{writer: w, topic: topic, log: log}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, e Event) error {
	msg, err := kafkaMessage(e)
	if err != nil {
		return err
	}
	k.log.Debug().Str("topic", k.topic).Str("type", e.Type).Str("id", e.ID).Msg("publishing event")
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func kafkaMessage(e Event) (kafka.Message, error) {
	value, err := marshalEvent(e)
	if err != nil {
		return kafka.Message{}, err
	}
	key := e.SessionID
	if key == "" {
		key = e.ID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(e.Type)},
			{Key: "eventId", Value: []byte(e.ID)},
		},
	}, nil
}
