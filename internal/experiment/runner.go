// Package experiment runs a complete retrieval experiment: index the
// collection, derive the stop words, evaluate every query and deliver the
// reports to a sink.
package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/collection"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/report"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/tracing"
)

// Lister lists the document paths of a collection location.
type Lister func(location string) ([]string, error)

type Runner struct {
	cfg     *config.Config
	source  indexer.Source
	list    Lister
	cache   *cache.QueryCache
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Runner)

// WithSource replaces the file-system document source and lister.
func WithSource(src indexer.Source, list Lister) Option {
	return func(r *Runner) {
		r.source = src
		if list != nil {
			r.list = list
		}
	}
}

func WithCache(c *cache.QueryCache) Option {
	return func(r *Runner) { r.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		source: collection.FileSource{},
		list:   collection.List,
		logger: logger.WithComponent("experiment"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Built is an indexed collection ready for querying.
type Built struct {
	Engine    *indexer.Engine
	Report    indexer.BuildReport
	Snapshot  *index.Snapshot
	StopWords *stopwords.Set
	Stats     []stopwords.TermStats
}

// Build indexes the configured collection and selects its stop words. With
// indexer.persist the full index is flushed to a segment and cached query
// results are dropped. With indexer.dropStopWords the stop words are then
// removed from the in-memory index.
func (r *Runner) Build(ctx context.Context) (*Built, error) {
	log := logger.FromContext(ctx).With("component", "experiment")
	ctx, phase := tracing.Start(ctx, "build", logger.RunID(ctx))
	defer phase.End()
	engine, err := indexer.NewEngine(r.cfg.Indexer, r.metrics)
	if err != nil {
		return nil, err
	}
	b := &Built{Engine: engine}

	if location := r.cfg.Experiment.CollectionPath; location != "" {
		paths, err := r.list(location)
		if err != nil {
			return nil, err
		}
		log.Info("indexing collection", "location", location, "documents", len(paths), "open_mode", r.cfg.Indexer.OpenMode)
		_, ip := tracing.Start(ctx, "index", "")
		b.Report, err = engine.IndexAll(ctx, r.source, paths)
		ip.SetAttr("documents", len(paths))
		ip.SetAttr("failed", len(b.Report.Failed))
		ip.End()
		if err != nil {
			return nil, err
		}
	}
	b.Snapshot = engine.Snapshot()
	if err := b.Snapshot.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	_, sp := tracing.Start(ctx, "stopwords", "")
	b.StopWords, b.Stats, err = stopwords.Select(b.Snapshot, r.cfg.Experiment.StopWordCount)
	sp.End()
	if err != nil {
		return nil, err
	}
	r.metrics.StopWordsSelected(time.Since(start))
	attrs := make([]any, 0, len(b.Stats))
	for _, st := range b.Stats {
		attrs = append(attrs, slog.Int64(st.Term, st.TotalFreq))
	}
	log.Info("stop words selected", slog.Group("frequencies", attrs...))

	// The segment keeps the stop words so a later update run sees the same
	// term statistics and selects the same set again.
	if r.cfg.Indexer.Persist && b.Snapshot.DocCount() > 0 {
		if _, err := engine.Flush(); err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.Invalidate(ctx); err != nil {
				log.Warn("query cache not invalidated", "error", err)
			}
		}
	}
	if r.cfg.Indexer.DropStopWords && b.StopWords.Len() > 0 {
		engine.DropTerms(b.StopWords.Words())
		b.Snapshot = engine.Snapshot()
	}
	return b, nil
}

// Searcher returns a searcher over b configured for the run's mode.
func (r *Runner) Searcher(b *Built) (*searcher.Searcher, error) {
	mode, err := ranker.ParseMode(r.cfg.Experiment.Mode)
	if err != nil {
		return nil, err
	}
	return searcher.New(b.Engine.Tokenizer(), searcher.Options{
		Mode:       mode,
		Workers:    r.cfg.Indexer.Workers,
		MaxResults: r.cfg.Search.MaxResults,
		Cache:      r.cache,
		Metrics:    r.metrics,
	}), nil
}

// Run executes the whole experiment and writes every query report to sink
// in query-file order, followed by the run summary. Query-level failures
// are recorded in their reports; only configuration, input, sink and
// cancellation errors abort the run.
func (r *Runner) Run(ctx context.Context, sink report.Sink) (summary report.Summary, err error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx).With("component", "experiment")
	started := time.Now()
	ctx, root := tracing.Start(ctx, "run", runID)
	defer func() {
		root.End()
		root.Log(log)
		r.metrics.RunFinished(err)
	}()

	queries, err := collection.ReadQueriesFile(r.cfg.Experiment.QueriesPath)
	if err != nil {
		return summary, err
	}
	built, err := r.Build(ctx)
	if err != nil {
		return summary, err
	}
	s, err := r.Searcher(built)
	if err != nil {
		return summary, err
	}
	log.Info("running queries", "queries", len(queries), "mode", s.Mode())

	qctx, qp := tracing.Start(ctx, "queries", "")
	reports, err := r.runQueries(qctx, runID, s, built, queries)
	qp.SetAttr("queries", len(queries))
	qp.End()
	if err != nil {
		return summary, err
	}

	_, wp := tracing.Start(ctx, "report", "")
	wp.SetAttr("sink", sink.Name())
	defer wp.End()
	failed := 0
	for _, rep := range reports {
		if rep.Error != "" {
			failed++
		}
		werr := sink.Write(ctx, rep)
		r.metrics.SinkWrite(sink.Name(), werr)
		if werr != nil {
			return summary, fmt.Errorf("writing report for query %d to %s sink: %w", rep.QueryID, sink.Name(), werr)
		}
	}

	summary = report.Summary{
		RunID:         runID,
		Mode:          string(s.Mode()),
		Collection:    r.cfg.Experiment.CollectionPath,
		QueriesPath:   r.cfg.Experiment.QueriesPath,
		DocsIndexed:   built.Report.Indexed,
		DocsUpdated:   built.Report.Updated,
		IndexedTotal:  built.Snapshot.DocCount(),
		StopWords:     built.Stats,
		Queries:       len(reports),
		QueriesFailed: failed,
		StartedAt:     started.UTC(),
		Duration:      time.Since(started),
	}
	for _, de := range built.Report.Failed {
		summary.DocsFailed = append(summary.DocsFailed, report.FailedDocument{Path: de.Path, Error: de.Err.Error()})
	}
	if err := sink.Summarize(ctx, summary); err != nil {
		return summary, fmt.Errorf("writing run summary to %s sink: %w", sink.Name(), err)
	}
	attrs := []any{
		"queries", summary.Queries,
		"queries_failed", summary.QueriesFailed,
		"documents", summary.IndexedTotal,
		"removed", built.Report.Removed,
		"duration", summary.Duration,
	}
	if r.cache != nil {
		hits, misses := r.cache.Stats()
		attrs = append(attrs, "cache_hits", hits, "cache_misses", misses)
	}
	log.Info("run finished", attrs...)
	return summary, nil
}

// runQueries evaluates queries concurrently against one snapshot. Reports
// keep the order of queries.
func (r *Runner) runQueries(ctx context.Context, runID string, s *searcher.Searcher, b *Built, queries []collection.Query) ([]report.QueryReport, error) {
	reports := make([]report.QueryReport, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Search.MaxConcurrentQueries)
	for i, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res, err := s.Search(gctx, b.Snapshot, b.StopWords, q.Text, r.cfg.Experiment.Limit)
			rep := report.QueryReport{
				RunID:   runID,
				QueryID: q.ID,
				Query:   q.Text,
				Mode:    string(s.Mode()),
				Latency: time.Since(start),
			}
			if err != nil {
				if !apperrors.IsRecoverable(err) {
					return fmt.Errorf("query %d: %w", q.ID, err)
				}
				rep.Error = err.Error()
				rep.ErrorKind = apperrors.Kind(err)
				r.logger.Warn("query skipped", "run_id", runID, "query_id", q.ID, "kind", rep.ErrorKind, "error", err)
			} else {
				rep.Parsed = res.Query
				rep.TotalHits = res.TotalHits
				if r.cfg.Experiment.IncludeHits {
					rep.Hits = res.Results
				}
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
