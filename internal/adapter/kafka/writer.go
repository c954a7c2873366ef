package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/floodwatch-service/internal/config"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// AlertEvent is the message published to the alerts topic.
type AlertEvent struct {
	Purpose     domain.AudiencePurpose `json:"purpose"`
	Alert       domain.Alert           `json:"alert"`
	PublishedAt time.Time              `json:"published_at"`
}

// Writer publishes alert events to a Kafka topic.
// It implements domain.Notifier; downstream consumers fan the events out, so a
// successful publish counts no users.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured alerts topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Broadcast implements domain.Notifier.
func (w *Writer) Broadcast(ctx context.Context, a domain.Alert, aud domain.Audience) domain.BroadcastResult {
	msg, err := serializeToMessage(AlertEvent{Purpose: aud.Purpose, Alert: a, PublishedAt: domain.Now()})
	if err == nil {
		err = w.writer.WriteMessages(ctx, msg)
	}
	if err != nil {
		return domain.BroadcastResult{Errors: []error{fmt.Errorf("publish alert event: %w", err)}}
	}
	return domain.BroadcastResult{}
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AlertEvent into a Kafka message keyed by
// alert id so every event for one alert lands on the same partition.
func serializeToMessage(event AlertEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Alert.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "purpose", Value: []byte(event.Purpose)},
			{Key: "published_at", Value: []byte(event.PublishedAt.Format(time.RFC3339))},
		},
	}, nil
}
