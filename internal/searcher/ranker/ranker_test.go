package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", BM25},
		{"BM25", BM25},
		{" tfidf ", TFIDF},
		{"classic", TFIDF},
		{"tf", TF},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseMode("neural")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestScoreMonotonicInTermFrequency(t *testing.T) {
	params := RankParams{TotalDocs: 100, AvgDocLength: 50}
	for _, mode := range Modes {
		t.Run(string(mode), func(t *testing.T) {
			s := NewScorer(mode, params)
			prev := 0.0
			for tf := 1; tf <= 50; tf++ {
				score := s.Score(tf, 10, 50)
				assert.Greater(t, score, prev, "tf=%d", tf)
				prev = score
			}
			assert.Equal(t, 0.0, s.Score(0, 10, 50))
		})
	}
}

func TestBM25LengthDampening(t *testing.T) {
	s := NewScorer(BM25, RankParams{TotalDocs: 10, AvgDocLength: 100})
	short := s.Score(3, 2, 50)
	long := s.Score(3, 2, 400)
	assert.Greater(t, short, long)
}

func TestIDFRewardsRareTerms(t *testing.T) {
	for _, mode := range []Mode{BM25, TFIDF} {
		s := NewScorer(mode, RankParams{TotalDocs: 1000, AvgDocLength: 10})
		assert.Greater(t, s.Score(1, 5, 10), s.Score(1, 500, 10), mode)
		assert.Greater(t, s.Score(1, 1000, 10), 0.0, "%s: term in every document still scores", mode)
	}
}

func TestTFModeIgnoresCollectionStats(t *testing.T) {
	a := NewScorer(TF, RankParams{TotalDocs: 5, AvgDocLength: 3})
	b := NewScorer(TF, RankParams{TotalDocs: 5000, AvgDocLength: 300})
	assert.Equal(t, a.Score(4, 1, 10), b.Score(4, 4000, 1))
	assert.Equal(t, 1.0, a.Score(1, 1, 1))
}

func TestZeroAverageLength(t *testing.T) {
	s := NewScorer(BM25, RankParams{TotalDocs: 1})
	assert.Greater(t, s.Score(1, 1, 0), 0.0)
}

func TestSortTieBreak(t *testing.T) {
	docs := []ScoredDoc{
		{DocID: 3, Score: 1.5},
		{DocID: 1, Score: 2},
		{DocID: 2, Score: 1.5},
		{DocID: 0, Score: 1.5},
	}
	Sort(docs)
	assert.Equal(t, []ScoredDoc{
		{DocID: 1, Score: 2},
		{DocID: 0, Score: 1.5},
		{DocID: 2, Score: 1.5},
		{DocID: 3, Score: 1.5},
	}, docs)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.2346, Round(1.23456))
	assert.Equal(t, Round(0.1+0.2), Round(0.3))
}
