package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/sqlstore"
)

// schema is valid for both PostgreSQL and SQLite. Query ids may repeat in
// a query file, so rows are keyed by their position in the run.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS retrieval_runs (
		run_id      TEXT PRIMARY KEY,
		mode        TEXT NOT NULL,
		summary     TEXT NOT NULL,
		finished_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS retrieval_queries (
		run_id     TEXT NOT NULL,
		seq        INTEGER NOT NULL,
		query_id   INTEGER NOT NULL,
		query      TEXT NOT NULL,
		parsed     TEXT NOT NULL,
		mode       TEXT NOT NULL,
		total_hits INTEGER NOT NULL,
		error      TEXT NOT NULL,
		latency_us BIGINT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS retrieval_hits (
		run_id TEXT NOT NULL,
		seq    INTEGER NOT NULL,
		rank   INTEGER NOT NULL,
		doc_id INTEGER NOT NULL,
		path   TEXT NOT NULL,
		score  DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, seq, rank)
	)`,
}

// SQLSink stores each query report and its hits in one transaction, and
// the run summary as JSON.
type SQLSink struct {
	store  *sqlstore.Store
	mu     sync.Mutex
	seq    int
	logger *slog.Logger
}

// NewSQLSink creates the report tables if needed. The sink owns store.
func NewSQLSink(ctx context.Context, store *sqlstore.Store) (*SQLSink, error) {
	if err := store.Migrate(ctx, schema...); err != nil {
		return nil, err
	}
	return &SQLSink{
		store:  store,
		logger: slog.Default().With("component", "sql-sink", "dialect", store.Dialect().String()),
	}, nil
}

func (s *SQLSink) Name() string {
	return "sql"
}

func (s *SQLSink) Write(ctx context.Context, r QueryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	err := s.store.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.store.Rebind(
			`INSERT INTO retrieval_queries (run_id, seq, query_id, query, parsed, mode, total_hits, error, latency_us)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			r.RunID, seq, r.QueryID, r.Query, r.Parsed, r.Mode, r.TotalHits, r.Error, r.Latency.Microseconds(),
		)
		if err != nil {
			return fmt.Errorf("inserting query %d: %w", r.QueryID, err)
		}
		if len(r.Hits) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, s.store.Rebind(
			`INSERT INTO retrieval_hits (run_id, seq, rank, doc_id, path, score) VALUES (?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return fmt.Errorf("preparing hit insert: %w", err)
		}
		defer stmt.Close()
		for rank, h := range r.Hits {
			if _, err := stmt.ExecContext(ctx, r.RunID, seq, rank+1, h.DocID, h.Path, h.Score); err != nil {
				return fmt.Errorf("inserting hit %d of query %d: %w", rank+1, r.QueryID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.seq++
	return nil
}

func (s *SQLSink) Summarize(ctx context.Context, sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshaling run summary: %w", err)
	}
	_, err = s.store.DB.ExecContext(ctx, s.store.Rebind(
		`INSERT INTO retrieval_runs (run_id, mode, summary, finished_at) VALUES (?, ?, ?, ?)`),
		sum.RunID, sum.Mode, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving run summary: %w", err)
	}
	s.logger.Info("run summary saved", "run_id", sum.RunID, "queries", sum.Queries)
	return nil
}

func (s *SQLSink) Close() error {
	return s.store.Close()
}
