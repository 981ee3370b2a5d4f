package searcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/metrics"
)

// Query outcomes recorded in metrics.
const (
	OutcomeOK          = "ok"
	OutcomeZeroResult  = "zero_result"
	OutcomeEmpty       = "empty_query"
	OutcomeSyntaxError = "syntax_error"
	OutcomeError       = "error"
)

type Options struct {
	Mode ranker.Mode
	// Workers bounds the goroutines one query may use.
	Workers int
	// MaxResults caps any requested limit. Zero means uncapped.
	MaxResults int
	// Cache is optional.
	Cache   *cache.QueryCache
	Metrics *metrics.Metrics
}

// Searcher evaluates query strings against index snapshots, normalising
// terms with the tokenizer the index was built with.
type Searcher struct {
	parser     *parser.Parser
	executor   *executor.Executor
	cache      *cache.QueryCache
	metrics    *metrics.Metrics
	maxResults int
	logger     *slog.Logger
}

func New(tok *tokenizer.Tokenizer, opts Options) *Searcher {
	return &Searcher{
		parser:     parser.New(tok),
		executor:   executor.New(opts.Mode, opts.Workers),
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		maxResults: opts.MaxResults,
		logger:     slog.Default().With("component", "searcher"),
	}
}

func (s *Searcher) Mode() ranker.Mode {
	return s.executor.Mode()
}

// Parse parses a query with the searcher's normalisation.
func (s *Searcher) Parse(query string, stop tokenizer.StopSet) (*parser.Query, error) {
	return s.parser.Parse(query, stop)
}

// Search parses and executes query. A query left without positive clauses
// returns an empty result together with an error matching
// apperrors.ErrEmptyQuery; syntax errors return a nil result.
//
// At most limit hits are returned, after limit is capped by
// Options.MaxResults. A limit <= 0 falls back to MaxResults, and when that
// is 0 too every matching document is returned.
func (s *Searcher) Search(ctx context.Context, snap *index.Snapshot, stop tokenizer.StopSet, query string, limit int) (*executor.SearchResult, error) {
	start := time.Now()
	mode := string(s.Mode())
	limit = s.clampLimit(limit)

	q, err := s.parser.Parse(query, stop)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrEmptyQuery):
			s.metrics.Query(mode, OutcomeEmpty, time.Since(start), 0)
			s.logger.Debug("query empty after stop-word removal", "query", query)
			return &executor.SearchResult{Mode: s.Mode(), Results: []executor.Hit{}}, err
		case errors.Is(err, apperrors.ErrQuerySyntax):
			s.metrics.Query(mode, OutcomeSyntaxError, time.Since(start), 0)
		default:
			s.metrics.Query(mode, OutcomeError, time.Since(start), 0)
		}
		return nil, err
	}

	compute := func() (*executor.SearchResult, error) {
		return s.executor.Execute(ctx, snap, q, limit)
	}
	var (
		result *executor.SearchResult
		cached bool
	)
	if s.cache != nil {
		key := cache.NewKey(q, limit, s.Mode(), snap.Fingerprint())
		result, cached, err = s.cache.GetOrCompute(ctx, key, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		s.metrics.Query(mode, OutcomeError, time.Since(start), 0)
		return nil, err
	}

	outcome := OutcomeOK
	if result.TotalHits == 0 {
		outcome = OutcomeZeroResult
	}
	elapsed := time.Since(start)
	s.metrics.Query(mode, outcome, elapsed, len(result.Results))
	s.logger.Debug("search completed",
		"query", result.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cached", cached,
		"latency_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (s *Searcher) clampLimit(limit int) int {
	if s.maxResults > 0 && (limit <= 0 || limit > s.maxResults) {
		return s.maxResults
	}
	return limit
}
