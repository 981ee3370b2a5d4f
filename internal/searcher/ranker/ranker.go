// Package ranker scores matched documents. Every mode is monotonically
// increasing in term frequency; ties are broken by ascending document id.
package ranker

import (
	"fmt"
	"math"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Mode selects the scoring function.
type Mode string

const (
	BM25  Mode = "bm25"
	TFIDF Mode = "tfidf"
	TF    Mode = "tf"
)

// Modes lists the supported modes, default first.
var Modes = []Mode{BM25, TFIDF, TF}

// ParseMode maps a retrieval-mode selector to a Mode. The empty string
// selects BM25.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bm25", "default":
		return BM25, nil
	case "tfidf", "tf-idf", "classic", "vsm":
		return TFIDF, nil
	case "tf", "logtf":
		return TF, nil
	}
	return "", fmt.Errorf("%w: unknown retrieval mode %q", apperrors.ErrInvalidInput, s)
}

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// Before reports whether a ranks ahead of b.
func Before(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// Sort orders docs by descending score, then ascending id.
func Sort(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		return Before(docs[i], docs[j])
	})
}

// Round keeps four decimals so near-equal floating sums compare equal.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}

type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
}

// Scorer computes the contribution of one matched term (or phrase) to a
// document's score.
type Scorer struct {
	mode   Mode
	params RankParams
}

func NewScorer(mode Mode, params RankParams) *Scorer {
	return &Scorer{mode: mode, params: params}
}

func (s *Scorer) Mode() Mode {
	return s.mode
}

// Score returns the contribution of a term occurring termFreq times in a
// document of docLength tokens, given the term's document frequency.
func (s *Scorer) Score(termFreq, docFreq, docLength int) float64 {
	if termFreq <= 0 {
		return 0
	}
	tf := float64(termFreq)
	switch s.mode {
	case TFIDF:
		return logTF(tf) * computeClassicIDF(s.params.TotalDocs, int64(docFreq))
	case TF:
		return logTF(tf)
	default:
		idf := computeIDF(s.params.TotalDocs, int64(docFreq))
		return idf * computeTFNorm(tf, float64(docLength), s.params.AvgDocLength)
	}
}

func logTF(tf float64) float64 {
	return 1 + math.Log(tf)
}

// computeIDF stays positive when a term occurs in every document.
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeClassicIDF(totalDocs int64, docFreq int64) float64 {
	if docFreq <= 0 {
		return 0
	}
	return math.Log(1 + float64(totalDocs)/float64(docFreq))
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return termFreq * (k1 + 1) / (termFreq + k1)
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
