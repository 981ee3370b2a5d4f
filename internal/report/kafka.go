package report

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/kafka"
)

// Event types published by KafkaSink.
const (
	EventQuery   = "query"
	EventSummary = "summary"
)

// Envelope is the value of every published message.
type Envelope struct {
	Type    string       `json:"type"`
	Query   *QueryReport `json:"query,omitempty"`
	Summary *Summary     `json:"summary,omitempty"`
}

type publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
	Close() error
}

// KafkaSink publishes one event per query, keyed by run id so a run's
// events stay ordered on one partition.
type KafkaSink struct {
	producer publisher
}

func NewKafkaSink(p *kafka.Producer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Name() string {
	return "kafka"
}

func (s *KafkaSink) Write(ctx context.Context, r QueryReport) error {
	err := s.producer.PublishBatch(ctx, []kafka.Event{{
		Key:   r.RunID,
		Value: Envelope{Type: EventQuery, Query: &r},
	}})
	if err != nil {
		return fmt.Errorf("publishing query %d: %w", r.QueryID, err)
	}
	return nil
}

func (s *KafkaSink) Summarize(ctx context.Context, sum Summary) error {
	return s.producer.PublishBatch(ctx, []kafka.Event{{
		Key:   sum.RunID,
		Value: Envelope{Type: EventSummary, Summary: &sum},
	}})
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
