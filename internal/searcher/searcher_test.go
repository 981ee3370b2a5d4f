package searcher

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/metrics"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m[key] = string(value)
	return nil
}

func (m mapStore) FlushByPattern(context.Context, string) (int64, error) {
	n := int64(len(m))
	clear(m)
	return n, nil
}

func exampleIndex(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New()
	for _, doc := range []struct{ path, text string }{
		{"doc1", "apple banana apple"},
		{"doc2", "banana cherry"},
	} {
		_, err := ix.Upsert(doc.path, tokenizer.Tokenize(doc.text))
		require.NoError(t, err)
	}
	return ix
}

func TestSearchExample(t *testing.T) {
	snap := exampleIndex(t).Snapshot()
	stop, _, err := stopwords.Select(snap, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"apple"}, stop.Words())

	m := metrics.New()
	s := New(nil, Options{Mode: ranker.BM25, Workers: 2, Metrics: m})

	res, err := s.Search(context.Background(), snap, stop, "banana", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)
	// both contain banana once; length normalisation favours the shorter doc2
	require.Len(t, res.Results, 2)
	assert.Equal(t, "doc2", res.Results[0].Path)
	assert.InDelta(t, 0.1986, res.Results[0].Score, 1e-4)
	assert.Equal(t, "doc1", res.Results[1].Path)
	assert.InDelta(t, 0.1685, res.Results[1].Score, 1e-4)

	res, err = s.Search(context.Background(), snap, stop, "apple", 10)
	assert.ErrorIs(t, err, apperrors.ErrEmptyQuery)
	require.NotNil(t, res)
	assert.Empty(t, res.Results)
	assert.Equal(t, 0, res.TotalHits)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(OutcomeEmpty)))
}

func TestSearchExampleTermFrequencyOrder(t *testing.T) {
	snap := exampleIndex(t).Snapshot()
	stop, _, err := stopwords.Select(snap, 1)
	require.NoError(t, err)
	s := New(nil, Options{Mode: ranker.TF})

	res, err := s.Search(context.Background(), snap, stop, "banana", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	// equal scores fall back to ascending document id
	assert.Equal(t, res.Results[0].Score, res.Results[1].Score)
	assert.Equal(t, "doc1", res.Results[0].Path)
	assert.Equal(t, "doc2", res.Results[1].Path)
}

func TestSearchOutcomes(t *testing.T) {
	snap := exampleIndex(t).Snapshot()
	m := metrics.New()
	s := New(nil, Options{Mode: ranker.TF, Metrics: m})

	res, err := s.Search(context.Background(), snap, nil, "durian", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalHits)
	assert.Empty(t, res.Results)

	_, err = s.Search(context.Background(), snap, nil, `"unterminated`, 10)
	assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)

	_, err = s.Search(context.Background(), snap, nil, "title:apple", 10)
	assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(OutcomeZeroResult)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues(OutcomeSyntaxError)))
}

func TestSearchUsesCachePerSnapshot(t *testing.T) {
	ix := exampleIndex(t)
	store := mapStore{}
	qc := cache.New(store, time.Minute, nil)
	s := New(nil, Options{Mode: ranker.BM25, Cache: qc})

	snap := ix.Snapshot()
	_, err := s.Search(context.Background(), snap, nil, "banana", 10)
	require.NoError(t, err)
	_, err = s.Search(context.Background(), snap, nil, "BANANA", 10)
	require.NoError(t, err)
	hits, misses := qc.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	_, err = ix.Upsert("doc3", tokenizer.Tokenize("banana split"))
	require.NoError(t, err)
	res, err := s.Search(context.Background(), ix.Snapshot(), nil, "banana", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalHits, "a changed index must not reuse the old entry")
	assert.Len(t, store, 2)
}

func TestSharedCacheSeparatesCollections(t *testing.T) {
	store := mapStore{}
	qc := cache.New(store, time.Minute, nil)
	s := New(nil, Options{Mode: ranker.BM25, Cache: qc})

	first := exampleIndex(t).Snapshot()
	other := index.New()
	for _, doc := range []struct{ path, text string }{
		{"x", "banana banana"},
		{"y", "kiwi"},
	} {
		_, err := other.Upsert(doc.path, tokenizer.Tokenize(doc.text))
		require.NoError(t, err)
	}
	second := other.Snapshot()
	require.Equal(t, first.Generation(), second.Generation())

	res, err := s.Search(context.Background(), first, nil, "banana", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)

	res, err = s.Search(context.Background(), second, nil, "banana", 10)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalHits)
	assert.Equal(t, "x", res.Results[0].Path)
	assert.Len(t, store, 2)
}

func TestLimitIsClamped(t *testing.T) {
	ix := index.New()
	for _, p := range []string{"a", "b", "c", "d"} {
		_, err := ix.Upsert(p, tokenizer.Tokenize("shared"))
		require.NoError(t, err)
	}
	s := New(nil, Options{Mode: ranker.BM25, MaxResults: 3})

	res, err := s.Search(context.Background(), ix.Snapshot(), nil, "shared", 100)
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, 4, res.TotalHits)

	res, err = s.Search(context.Background(), ix.Snapshot(), nil, "shared", 2)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
}

func TestNonPositiveLimitReturnsEverything(t *testing.T) {
	ix := index.New()
	for _, p := range []string{"a", "b", "c"} {
		_, err := ix.Upsert(p, tokenizer.Tokenize("shared"))
		require.NoError(t, err)
	}
	snap := ix.Snapshot()

	unbounded := New(nil, Options{Mode: ranker.TF})
	for _, limit := range []int{0, -1} {
		res, err := unbounded.Search(context.Background(), snap, nil, "shared", limit)
		require.NoError(t, err)
		assert.Len(t, res.Results, 3, "limit %d", limit)
	}

	capped := New(nil, Options{Mode: ranker.TF, MaxResults: 2})
	res, err := capped.Search(context.Background(), snap, nil, "shared", 0)
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
}

func TestStemmedSearch(t *testing.T) {
	tok := tokenizer.New(tokenizer.Options{Stem: true})
	ix := index.New()
	_, err := ix.Upsert("doc1", tok.Tokenize("running runners run"))
	require.NoError(t, err)

	s := New(tok, Options{Mode: ranker.TF})
	res, err := s.Search(context.Background(), ix.Snapshot(), nil, "runs", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "doc1", res.Results[0].Path)
}
