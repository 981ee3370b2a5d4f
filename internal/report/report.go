// Package report delivers per-query search reports and run summaries to an
// output collaborator: the console, a TREC run file, a SQL database or a
// Kafka topic.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/sqlstore"
)

// QueryReport is the outcome of one query of a run.
type QueryReport struct {
	RunID     string         `json:"run_id"`
	QueryID   int            `json:"query_id"`
	Query     string         `json:"query"`
	Parsed    string         `json:"parsed,omitempty"`
	Mode      string         `json:"mode"`
	TotalHits int            `json:"total_hits"`
	Hits      []executor.Hit `json:"hits,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Latency   time.Duration  `json:"latency"`
}

// FailedDocument is a document skipped during indexing.
type FailedDocument struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Summary describes a finished run.
type Summary struct {
	RunID         string                `json:"run_id"`
	Mode          string                `json:"mode"`
	Collection    string                `json:"collection"`
	QueriesPath   string                `json:"queries_path"`
	DocsIndexed   int                   `json:"docs_indexed"`
	DocsUpdated   int                   `json:"docs_updated"`
	DocsFailed    []FailedDocument      `json:"docs_failed,omitempty"`
	IndexedTotal  int                   `json:"indexed_total"`
	StopWords     []stopwords.TermStats `json:"stop_words"`
	Queries       int                   `json:"queries"`
	QueriesFailed int                   `json:"queries_failed"`
	StartedAt     time.Time             `json:"started_at"`
	Duration      time.Duration         `json:"duration"`
}

// Sink receives reports in query-file order.
type Sink interface {
	// Name labels the sink in logs and metrics.
	Name() string
	Write(ctx context.Context, r QueryReport) error
	Summarize(ctx context.Context, s Summary) error
	Close() error
}

// Open picks a sink for location:
//
//	"" or "-"                     console on stdout
//	postgres://... sqlite://path  SQL tables
//	kafka://b1,b2/topic           Kafka events
//	anything else                 TREC run file at that path
func Open(ctx context.Context, location string, cfg *config.Config) (Sink, error) {
	switch {
	case location == "" || location == "-":
		return NewConsole(os.Stdout), nil
	case sqlstore.IsLocation(location):
		store, err := sqlstore.Open(ctx, location, cfg.Database)
		if err != nil {
			return nil, err
		}
		sink, err := NewSQLSink(ctx, store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		return sink, nil
	case strings.HasPrefix(location, "kafka://"):
		kc, err := parseKafkaLocation(location, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return NewKafkaSink(kafka.NewProducer(kc, kc.Topic)), nil
	}
	if dir := filepath.Dir(location); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	f, err := os.Create(location)
	if err != nil {
		return nil, fmt.Errorf("creating run file: %w", err)
	}
	return NewTRECFile(f), nil
}

// parseKafkaLocation reads kafka://broker1,broker2/topic. Missing parts
// fall back to cfg.
func parseKafkaLocation(location string, cfg config.KafkaConfig) (config.KafkaConfig, error) {
	rest := strings.TrimPrefix(location, "kafka://")
	hosts, topic, _ := strings.Cut(rest, "/")
	out := cfg
	if hosts != "" {
		out.Brokers = strings.Split(hosts, ",")
	}
	if topic != "" {
		out.Topic = topic
	}
	if len(out.Brokers) == 0 || out.Topic == "" {
		return out, fmt.Errorf("kafka location %q needs brokers and a topic", location)
	}
	return out, nil
}
