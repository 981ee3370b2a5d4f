package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/metrics"
)

// Source supplies the raw text of a document.
type Source interface {
	ReadText(ctx context.Context, path string) (string, error)
}

// BuildReport summarises one IndexAll call. Failed keeps the input order.
// Removed counts documents pruned because they left the collection.
type BuildReport struct {
	Indexed  int                        `json:"indexed"`
	Updated  int                        `json:"updated"`
	Removed  int                        `json:"removed"`
	Failed   []*apperrors.DocumentError `json:"-"`
	Duration time.Duration              `json:"duration"`
}

// Engine builds the inverted index for one run.
type Engine struct {
	idx     *index.Index
	tok     *tokenizer.Tokenizer
	writer  *segment.Writer
	cfg     config.IndexerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an engine. In update mode the latest segment under
// cfg.DataDir is restored and new documents are upserted over it; in
// create mode the index starts empty.
func NewEngine(cfg config.IndexerConfig, m *metrics.Metrics) (*Engine, error) {
	tok := tokenizer.New(tokenizer.Options{Stem: cfg.Stem})
	e := &Engine{
		idx:     index.New(),
		tok:     tok,
		writer:  segment.NewWriter(cfg.DataDir, segment.WithStemming(tok.Stemming())),
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}
	if cfg.OpenMode == config.OpenModeUpdate {
		if err := e.loadLatestSegment(); err != nil {
			return nil, fmt.Errorf("loading existing segment: %w", err)
		}
	}
	return e, nil
}

// Tokenizer returns the tokenizer used for documents, so queries can be
// normalised the same way.
func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tok
}

// batchSize bounds how many tokenized documents are held before their
// postings are merged.
const batchSize = 256

type pending struct {
	path    string
	tokens  []tokenizer.Token
	updated bool
}

// IndexAll indexes paths in batches. Documents of a batch are read and
// tokenized by up to cfg.Workers workers, ids are then reserved in input
// order, and postings are merged concurrently. Unreadable documents are
// collected in the report and skipped; only context cancellation aborts
// the build. With cfg.Prune set, documents not named in paths are removed
// afterwards.
func (e *Engine) IndexAll(ctx context.Context, src Source, paths []string) (BuildReport, error) {
	start := time.Now()
	var report BuildReport
	for lo := 0; lo < len(paths); lo += batchSize {
		hi := min(lo+batchSize, len(paths))
		if err := e.indexBatch(ctx, src, paths[lo:hi], &report); err != nil {
			return report, fmt.Errorf("indexing collection: %w", err)
		}
	}
	if e.cfg.Prune {
		report.Removed = e.prune(paths)
	}
	report.Duration = time.Since(start)

	snap := e.idx.Snapshot()
	e.metrics.BuildFinished(report.Duration, snap.DocCount(), snap.TermCount())
	e.logger.Info("collection indexed",
		"indexed", report.Indexed,
		"updated", report.Updated,
		"removed", report.Removed,
		"failed", len(report.Failed),
		"documents", snap.DocCount(),
		"terms", snap.TermCount(),
		"duration", report.Duration,
	)
	return report, nil
}

func (e *Engine) indexBatch(ctx context.Context, src Source, paths []string, report *BuildReport) error {
	workers := max(e.cfg.Workers, 1)
	docs := make([]*pending, len(paths))
	failures := make([]*apperrors.DocumentError, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			text, err := src.ReadText(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				var de *apperrors.DocumentError
				if !errors.As(err, &de) {
					de = apperrors.NewDocumentError(path, err)
				}
				failures[i] = de
				return nil
			}
			docs[i] = &pending{path: path, tokens: e.tok.Tokenize(text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, doc := range docs {
		if doc == nil {
			continue
		}
		_, updated, err := e.idx.Reserve(doc.path)
		if err != nil {
			failures[i] = apperrors.NewDocumentError(doc.path, err)
			docs[i] = nil
			continue
		}
		doc.updated = updated
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docID, err := e.idx.Upsert(doc.path, doc.tokens)
			if err != nil {
				return err
			}
			e.logger.Debug("document indexed",
				"doc_id", docID,
				"path", doc.path,
				"tokens", len(doc.tokens),
				"updated", doc.updated,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, doc := range docs {
		switch {
		case failures[i] != nil:
			report.Failed = append(report.Failed, failures[i])
			e.metrics.DocFailed()
			e.logger.Warn("skipping unreadable document", "path", failures[i].Path, "error", failures[i].Err)
		case doc.updated:
			report.Updated++
			e.metrics.DocIndexed(true)
		default:
			report.Indexed++
			e.metrics.DocIndexed(false)
		}
	}
	return nil
}

// Remove deletes the document at path.
func (e *Engine) Remove(path string) bool {
	removed := e.idx.Remove(path)
	if removed {
		e.metrics.DocRemoved()
		e.logger.Debug("document removed", "path", path)
	}
	return removed
}

func (e *Engine) prune(keep []string) int {
	listed := make(map[string]struct{}, len(keep))
	for _, path := range keep {
		listed[path] = struct{}{}
	}
	removed := 0
	for _, doc := range e.idx.Snapshot().Documents() {
		if _, ok := listed[doc.Path]; ok {
			continue
		}
		if e.Remove(doc.Path) {
			removed++
		}
	}
	return removed
}

// DropTerms removes the given terms from the index, e.g. stop words when
// indexing granularity excludes them.
func (e *Engine) DropTerms(terms []string) int {
	n := e.idx.DropTerms(terms)
	e.logger.Info("terms dropped from index", "requested", len(terms), "dropped", n)
	return n
}

// Snapshot returns an immutable view for querying.
func (e *Engine) Snapshot() *index.Snapshot {
	return e.idx.Snapshot()
}

// Flush writes the current snapshot as a new segment and returns its path.
func (e *Engine) Flush() (string, error) {
	snap := e.idx.Snapshot()
	name, err := e.writer.Write(snap)
	e.metrics.Flushed(err)
	if err != nil {
		return "", fmt.Errorf("writing segment: %w", err)
	}
	path := filepath.Join(e.cfg.DataDir, name)
	e.logger.Info("segment flushed",
		"segment", name,
		"terms", snap.TermCount(),
		"docs", snap.DocCount(),
	)
	return path, nil
}

func (e *Engine) loadLatestSegment() error {
	path, err := segment.Latest(e.cfg.DataDir)
	if err != nil {
		return err
	}
	if path == "" {
		e.logger.Info("no existing segment, starting empty", "data_dir", e.cfg.DataDir)
		return nil
	}
	r, err := segment.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	if r.Stemmed() != e.tok.Stemming() {
		return fmt.Errorf("segment %s was built with stemming=%t but indexer.stem is %t",
			filepath.Base(path), r.Stemmed(), e.tok.Stemming())
	}
	snap, err := r.Snapshot()
	if err != nil {
		return err
	}
	e.idx = index.FromSnapshot(snap)
	e.logger.Info("loaded existing segment",
		"segment", filepath.Base(path),
		"terms", snap.TermCount(),
		"docs", snap.DocCount(),
	)
	return nil
}
