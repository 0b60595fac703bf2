package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-snapshot-cache/internal/config"
	"github.com/couchcryptid/weather-snapshot-cache/internal/domain"
)

// Writer publishes risk notifications to a Kafka topic.
// It implements pipeline.Notifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured risk topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaRiskTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// Notify publishes notifications in a single WriteMessages call. Messages are
// keyed by cache key so updates for one location stay ordered.
func (w *Writer) Notify(ctx context.Context, notes []domain.RiskNotification) error {
	if len(notes) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(notes))
	for i := range notes {
		msg, err := serializeToMessage(notes[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish risk notifications: %w", err)
	}
	w.logger.Debug("risk notifications published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeToMessage(note domain.RiskNotification) (kafkago.Message, error) {
	data, err := json.Marshal(note)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize risk notification: %w", err)
	}
	key := note.CacheKey
	if key == "" {
		key = note.SnapshotID
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "risk_level", Value: []byte(note.Risk.Overall)},
			{Key: "snapshot_id", Value: []byte(note.SnapshotID)},
		},
	}, nil
}
