// Package events publishes media lifecycle changes onto the platform event
// bus. Downstream services (processing, notifications, the admin dashboard)
// consume these instead of polling the record store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"physiocore/clinic-media/internal/domain"

	kafkago "github.com/segmentio/kafka-go"
)

// StatusChanged is emitted whenever a media record reaches a new lifecycle
// state. Key on the record id so per-record ordering is preserved within a
// partition.
type StatusChanged struct {
	MediaID    string        `json:"media_id"`
	From       domain.Status `json:"from"`
	To         domain.Status `json:"to"`
	Path       string        `json:"path,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Publisher emits lifecycle events. Implementations must be safe for
// concurrent use; publishing is best-effort from the caller's point of view.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChanged) error
	Close() error
}

// KafkaPublisher writes StatusChanged events to a Kafka topic.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event StatusChanged) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.MediaID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
