package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/ranker"
)

// Merge returns the best limit documents across partial result lists, in
// rank order. A non-positive limit keeps every document.
func Merge(parts [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		total := 0
		for _, p := range parts {
			total += len(p)
		}
		limit = total
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, results := range parts {
		for _, doc := range results {
			if h.Len() < limit {
				heap.Push(h, doc)
				continue
			}
			if h.Len() > 0 && ranker.Before(doc, (*h)[0]) {
				(*h)[0] = doc
				heap.Fix(h, 0)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// TopN is Merge over a single list.
func TopN(docs []ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	return Merge([][]ranker.ScoredDoc{docs}, limit)
}

// scoredDocHeap keeps the weakest retained document at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	return ranker.Before(h[j], h[i])
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
