// Package stopwords derives a collection-specific stop-word list from the
// term statistics of an index snapshot.
package stopwords

import (
	"container/heap"
	"fmt"
	"iter"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

// DefaultCount is the number of stop words selected per run unless
// configured otherwise.
const DefaultCount = 20

// TermStats is the collection-level statistics entry for one term.
type TermStats struct {
	Term      string `json:"term"`
	TotalFreq int64  `json:"total_freq"`
	DocFreq   int    `json:"doc_freq"`
}

// Source is the read side of an index needed for selection.
type Source interface {
	All() iter.Seq2[string, index.PostingList]
}

// Set is an immutable stop-word set. The nil *Set is empty.
type Set struct {
	words []string
	index map[string]struct{}
}

// NewSet builds a set from words, keeping their order.
func NewSet(words ...string) *Set {
	s := &Set{
		words: make([]string, 0, len(words)),
		index: make(map[string]struct{}, len(words)),
	}
	for _, w := range words {
		if _, dup := s.index[w]; dup {
			continue
		}
		s.index[w] = struct{}{}
		s.words = append(s.words, w)
	}
	return s
}

func (s *Set) Contains(term string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[term]
	return ok
}

// Words returns the stop words ordered by descending collection frequency.
func (s *Set) Words() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.words...)
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.words)
}

// Select returns the k most frequent terms of src, by total frequency across
// all postings, together with their statistics. Ties are broken by the
// lexicographically smaller term. Selection makes one pass over the term
// table and keeps at most k candidates in a heap.
func Select(src Source, k int) (*Set, []TermStats, error) {
	if k < 0 {
		return nil, nil, fmt.Errorf("%w: stop-word count must be >= 0, got %d", apperrors.ErrInvalidInput, k)
	}
	if k == 0 {
		return NewSet(), []TermStats{}, nil
	}
	h := make(statsHeap, 0, k)
	for term, postings := range src.All() {
		entry := TermStats{
			Term:      term,
			TotalFreq: postings.TotalFrequency(),
			DocFreq:   len(postings),
		}
		if h.Len() < k {
			heap.Push(&h, entry)
			continue
		}
		if ranksBefore(entry, h[0]) {
			h[0] = entry
			heap.Fix(&h, 0)
		}
	}
	stats := make([]TermStats, len(h))
	copy(stats, h)
	sort.Slice(stats, func(i, j int) bool {
		return ranksBefore(stats[i], stats[j])
	})
	words := make([]string, len(stats))
	for i, st := range stats {
		words[i] = st.Term
	}
	return NewSet(words...), stats, nil
}

// Collect returns statistics for every term of src in selection order.
func Collect(src Source) []TermStats {
	var stats []TermStats
	for term, postings := range src.All() {
		stats = append(stats, TermStats{
			Term:      term,
			TotalFreq: postings.TotalFrequency(),
			DocFreq:   len(postings),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return ranksBefore(stats[i], stats[j])
	})
	return stats
}

func ranksBefore(a, b TermStats) bool {
	if a.TotalFreq != b.TotalFreq {
		return a.TotalFreq > b.TotalFreq
	}
	return a.Term < b.Term
}

// statsHeap keeps the weakest selected candidate at the root.
type statsHeap []TermStats

func (h statsHeap) Len() int { return len(h) }

func (h statsHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }

func (h statsHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *statsHeap) Push(x interface{}) {
	*h = append(*h, x.(TermStats))
}

func (h *statsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
