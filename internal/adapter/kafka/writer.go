package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/region-compare-service/internal/config"
	"github.com/couchcryptid/region-compare-service/internal/domain"
)

// Writer produces query events to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaEventsTopic,
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond, // batches are already assembled by the publisher
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes multiple query events in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.QueryEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d query events: %w", len(msgs), err)
	}
	w.logger.Debug("query events written", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a QueryEvent into a Kafka message keyed by event id.
func serializeToMessage(event domain.QueryEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize query event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_kind", Value: []byte(event.Kind)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
