// Package kafka publishes JSON events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
)

// Event is one message. Key selects the partition; Value is encoded as
// JSON.
type Event struct {
	Key   string
	Value any
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewProducer creates a synchronous producer for topic on cfg.Brokers.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, topic)
}

func newProducer(w messageWriter, topic string) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Topic() string {
	return p.topic
}

// Publish writes a single event and waits for the acknowledgement.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in one call, preserving their order within a
// partition.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("marshaling event %s: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.Key),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("publish failed", "count", len(messages), "error", err)
		return fmt.Errorf("publishing to kafka topic %s: %w", p.topic, err)
	}
	p.logger.Debug("published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
