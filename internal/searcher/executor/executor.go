package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

// scoreChunk is the candidate count above which scoring is split across
// workers.
const scoreChunk = 4096

type Hit struct {
	DocID int     `json:"doc_id"`
	Path  string  `json:"path"`
	Score float64 `json:"score"`
}

// ClauseStat reports how many documents matched one clause.
type ClauseStat struct {
	Clause  string `json:"clause"`
	DocFreq int    `json:"doc_freq"`
}

type SearchResult struct {
	Query     string       `json:"query"`
	Mode      ranker.Mode  `json:"mode"`
	TotalHits int          `json:"total_hits"`
	Results   []Hit        `json:"results"`
	TermStats []ClauseStat `json:"term_stats"`
}

type Executor struct {
	mode    ranker.Mode
	workers int
	logger  *slog.Logger
}

// New returns an executor scoring with mode. workers bounds the goroutines
// used for one query.
func New(mode ranker.Mode, workers int) *Executor {
	return &Executor{
		mode:    mode,
		workers: max(workers, 1),
		logger:  slog.Default().With("component", "query-executor"),
	}
}

func (e *Executor) Mode() ranker.Mode {
	return e.mode
}

// match is one document satisfying a clause, with the clause's frequency
// in it (term occurrences, or phrase occurrences).
type match struct {
	docID int
	freq  int
}

// Execute evaluates q against snap. Required clauses are intersected,
// optional clauses only add score unless nothing is required, excluded
// clauses are subtracted. At most limit hits are returned; a non-positive
// limit returns all of them.
func (e *Executor) Execute(ctx context.Context, snap *index.Snapshot, q *parser.Query, limit int) (*SearchResult, error) {
	matches := make([][]match, len(q.Clauses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, clause := range q.Clauses {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches[i] = clauseMatches(snap, clause)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := make([]ClauseStat, len(q.Clauses))
	var required, optional, excluded [][]match
	var scoring []int
	for i, clause := range q.Clauses {
		stats[i] = ClauseStat{Clause: clause.String(), DocFreq: len(matches[i])}
		switch clause.Occur {
		case parser.Must:
			required = append(required, matches[i])
			scoring = append(scoring, i)
		case parser.Should:
			optional = append(optional, matches[i])
			scoring = append(scoring, i)
		case parser.MustNot:
			excluded = append(excluded, matches[i])
		}
	}

	var candidates []int
	if len(required) > 0 {
		candidates = intersect(required)
	} else {
		candidates = union(optional)
	}
	if len(excluded) > 0 && len(candidates) > 0 {
		candidates = subtract(candidates, union(excluded))
	}

	for _, docID := range candidates {
		if _, ok := snap.Doc(docID); !ok {
			return nil, &apperrors.InconsistencyError{DocID: docID, Message: "candidate has no document entry"}
		}
	}

	scorer := ranker.NewScorer(e.mode, ranker.RankParams{
		TotalDocs:    int64(snap.DocCount()),
		AvgDocLength: snap.AvgDocLength(),
	})
	ranked, err := e.rank(ctx, snap, scorer, candidates, matches, scoring, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(ranked))
	for i, sd := range ranked {
		doc, _ := snap.Doc(sd.DocID)
		hits[i] = Hit{DocID: sd.DocID, Path: doc.Path, Score: sd.Score}
	}
	e.logger.Debug("query executed",
		"query", q.String(),
		"mode", e.mode,
		"candidates", len(candidates),
		"results", len(hits),
		"clauses", describe(stats),
	)
	return &SearchResult{
		Query:     q.String(),
		Mode:      e.mode,
		TotalHits: len(candidates),
		Results:   hits,
		TermStats: stats,
	}, nil
}

// rank scores candidates, splitting the work into chunks when there are
// many, and merges the per-chunk top lists.
func (e *Executor) rank(ctx context.Context, snap *index.Snapshot, scorer *ranker.Scorer, candidates []int, matches [][]match, scoring []int, limit int) ([]ranker.ScoredDoc, error) {
	if len(candidates) == 0 {
		return []ranker.ScoredDoc{}, nil
	}
	chunks := (len(candidates) + scoreChunk - 1) / scoreChunk
	parts := make([][]ranker.ScoredDoc, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for c := range chunks {
		lo := c * scoreChunk
		hi := min(lo+scoreChunk, len(candidates))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scored := scoreRange(snap, scorer, candidates[lo:hi], matches, scoring)
			parts[c] = merger.TopN(scored, limit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring candidates: %w", err)
	}
	return merger.Merge(parts, limit), nil
}

func scoreRange(snap *index.Snapshot, scorer *ranker.Scorer, candidates []int, matches [][]match, scoring []int) []ranker.ScoredDoc {
	scores := make([]float64, len(candidates))
	for _, ci := range scoring {
		ms := matches[ci]
		df := len(ms)
		j := sort.Search(len(ms), func(k int) bool { return ms[k].docID >= candidates[0] })
		for i, docID := range candidates {
			for j < len(ms) && ms[j].docID < docID {
				j++
			}
			if j == len(ms) {
				break
			}
			if ms[j].docID == docID {
				scores[i] += scorer.Score(ms[j].freq, df, snap.DocLength(docID))
			}
		}
	}
	out := make([]ranker.ScoredDoc, len(candidates))
	for i, docID := range candidates {
		out[i] = ranker.ScoredDoc{DocID: docID, Score: ranker.Round(scores[i])}
	}
	return out
}

// clauseMatches lists the documents satisfying a clause in ascending id
// order.
func clauseMatches(snap *index.Snapshot, c parser.Clause) []match {
	if !c.IsPhrase() {
		postings := snap.Postings(c.Terms[0])
		out := make([]match, len(postings))
		for i, p := range postings {
			out[i] = match{docID: p.DocID, freq: p.Frequency}
		}
		return out
	}
	lists := make([]index.PostingList, len(c.Terms))
	for i, term := range c.Terms {
		lists[i] = snap.Postings(term)
		if len(lists[i]) == 0 {
			return nil
		}
	}
	var out []match
	cursors := make([]int, len(lists))
	for _, first := range lists[0] {
		all := true
		row := make([]index.Posting, len(lists))
		row[0] = first
		for k := 1; k < len(lists); k++ {
			l := lists[k]
			for cursors[k] < len(l) && l[cursors[k]].DocID < first.DocID {
				cursors[k]++
			}
			if cursors[k] == len(l) {
				return out
			}
			if l[cursors[k]].DocID != first.DocID {
				all = false
				break
			}
			row[k] = l[cursors[k]]
		}
		if !all {
			continue
		}
		if n := phraseOccurrences(row, c.Offsets); n > 0 {
			out = append(out, match{docID: first.DocID, freq: n})
		}
	}
	return out
}

// phraseOccurrences counts start positions p of row[0] such that every
// row[i] has a position at p+offsets[i].
func phraseOccurrences(row []index.Posting, offsets []int) int {
	count := 0
	for _, start := range row[0].Positions {
		ok := true
		for i := 1; i < len(row); i++ {
			want := start + offsets[i]
			pos := row[i].Positions
			k := sort.SearchInts(pos, want)
			if k == len(pos) || pos[k] != want {
				ok = false
				break
			}
		}
		if ok {
			count++
		}
	}
	return count
}

// intersect returns the doc ids present in every list, merging from the
// shortest list.
func intersect(lists [][]match) []int {
	sorted := make([][]match, len(lists))
	copy(sorted, lists)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) < len(sorted[j])
	})
	if len(sorted[0]) == 0 {
		return []int{}
	}
	result := make([]int, len(sorted[0]))
	for i, m := range sorted[0] {
		result[i] = m.docID
	}
	for _, list := range sorted[1:] {
		next := result[:0]
		j := 0
		for _, docID := range result {
			for j < len(list) && list[j].docID < docID {
				j++
			}
			if j == len(list) {
				break
			}
			if list[j].docID == docID {
				next = append(next, docID)
			}
		}
		result = next
		if len(result) == 0 {
			break
		}
	}
	return result
}

// union returns the sorted, de-duplicated doc ids of all lists.
func union(lists [][]match) []int {
	seen := make(map[int]struct{})
	for _, list := range lists {
		for _, m := range list {
			seen[m.docID] = struct{}{}
		}
	}
	result := make([]int, 0, len(seen))
	for docID := range seen {
		result = append(result, docID)
	}
	sort.Ints(result)
	return result
}

// subtract removes the sorted ids in drop from the sorted ids in from.
func subtract(from, drop []int) []int {
	result := make([]int, 0, len(from))
	j := 0
	for _, docID := range from {
		for j < len(drop) && drop[j] < docID {
			j++
		}
		if j < len(drop) && drop[j] == docID {
			continue
		}
		result = append(result, docID)
	}
	return result
}

// describe renders clause statistics for logs.
func describe(stats []ClauseStat) string {
	parts := make([]string, len(stats))
	for i, s := range stats {
		parts[i] = fmt.Sprintf("%s=%d", s.Clause, s.DocFreq)
	}
	return strings.Join(parts, " ")
}
