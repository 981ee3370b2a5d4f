package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/stopwords"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

func parse(t *testing.T, query string, stop ...string) *Query {
	t.Helper()
	q, err := New(nil).Parse(query, stopwords.NewSet(stop...))
	require.NoError(t, err)
	return q
}

func TestParseCanonicalForms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		stop  []string
		want  string
	}{
		{"bare terms are required", "Apple Banana", nil, "+contents:apple +contents:banana"},
		{"phrase", `"Quick Brown"`, nil, `+contents:"quick brown"`},
		{"field term", "contents:Fox", nil, "+contents:fox"},
		{"field is case insensitive", "CONTENTS:fox", nil, "+contents:fox"},
		{"field phrase", `contents:"lazy dog"`, nil, `+contents:"lazy dog"`},
		{"plus and minus", "+apple -banana cherry", nil, "+contents:apple -contents:banana +contents:cherry"},
		{"NOT operator", "apple NOT banana", nil, "+contents:apple -contents:banana"},
		{"AND is a no-op", "apple AND banana", nil, "+contents:apple +contents:banana"},
		{"OR makes neighbours optional", "apple OR banana", nil, "contents:apple contents:banana"},
		{"OR keeps explicit prefixes", "+apple OR banana", nil, "+contents:apple contents:banana"},
		{"AND after OR requires again", "apple OR banana AND cherry", nil, "contents:apple +contents:banana +contents:cherry"},
		{"lowercase operators are terms", "apple or banana", nil, "+contents:apple +contents:or +contents:banana"},
		{"punctuated word becomes phrase", "e-mail", nil, `+contents:"e mail"`},
		{"stop words dropped", "the apple", []string{"the"}, "+contents:apple"},
		{"phrase keeps stop-word gap", `"quick the brown"`, []string{"the"}, `+contents:"quick ? brown"`},
		{"phrase reduced to a term", `"the fox"`, []string{"the"}, "+contents:fox"},
		{"excluded stop word vanishes", "apple -the", []string{"the"}, "+contents:apple"},
		{"OR after removed term is ignored", "apple the OR banana", []string{"the"}, "+contents:apple +contents:banana"},
		{"OR before removed term is ignored", "apple OR the banana", []string{"the"}, "+contents:apple +contents:banana"},
		{"leading removed term and OR", "the OR banana apple", []string{"the"}, "+contents:banana +contents:apple"},
		{"OR chain keeps optional left side", "apple OR banana OR the", []string{"the"}, "contents:apple contents:banana"},
		{"AND before removed term restores OR", "apple OR banana AND the", []string{"the"}, "contents:apple contents:banana"},
		{"pure punctuation ignored", "apple ... !!", nil, "+contents:apple"},
		{"empty phrase ignored", `apple ""`, nil, "+contents:apple"},
		{"word next to phrase", `apple"brown fox"`, nil, `+contents:apple +contents:"brown fox"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := parse(t, tt.query, tt.stop...)
			assert.Equal(t, tt.want, q.String())
			assert.Equal(t, tt.query, q.Raw)
		})
	}
}

func TestParsePhraseOffsets(t *testing.T) {
	q := parse(t, `"a quick the brown fox"`, "the", "a")
	require.Len(t, q.Clauses, 1)
	c := q.Clauses[0]
	assert.True(t, c.IsPhrase())
	assert.Equal(t, []string{"quick", "brown", "fox"}, c.Terms)
	assert.Equal(t, []int{0, 2, 3}, c.Offsets)
	assert.Equal(t, []string{"a", "the"}, q.Stopped)
}

func TestParseRawFragments(t *testing.T) {
	q := parse(t, `+apple contents:"red fruit" -pear`)
	require.Len(t, q.Clauses, 3)
	assert.Equal(t, "+apple", q.Clauses[0].Raw)
	assert.Equal(t, `contents:"red fruit"`, q.Clauses[1].Raw)
	assert.Equal(t, "-pear", q.Clauses[2].Raw)
}

func TestParseEmptyQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		stop  []string
	}{
		{"blank", "   ", nil},
		{"only stop words", "apple", []string{"apple"}},
		{"only exclusions", "-apple NOT pear", nil},
		{"only operators", "AND OR NOT", nil},
		{"only punctuation", "?!", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Parse(tt.query, stopwords.NewSet(tt.stop...))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrEmptyQuery)
		})
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		fragment string
		offset   int
	}{
		{"unterminated quote", `apple "quick brown`, `"quick brown`, 6},
		{"unterminated field phrase", `contents:"open`, `"open`, 9},
		{"empty field name", "apple :banana", ":banana", 6},
		{"unknown field", "title:apple", "title:apple", 0},
		{"missing term after field", "apple contents:", "contents:", 6},
		{"prefixed empty field", "-:x", "-:x", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Parse(tt.query, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrQuerySyntax)

			var se *apperrors.QuerySyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.fragment, se.Fragment)
			assert.Equal(t, tt.offset, se.Offset)
			assert.Equal(t, tt.query, se.Query)
		})
	}
}

func TestParseUsesStemmingTokenizer(t *testing.T) {
	p := New(tokenizer.New(tokenizer.Options{Stem: true}))
	q, err := p.Parse("running dogs", nil)
	require.NoError(t, err)
	assert.Equal(t, "+contents:run +contents:dog", q.String())
}

func TestParseNilStopSet(t *testing.T) {
	q, err := New(nil).Parse("the fox", nil)
	require.NoError(t, err)
	assert.Len(t, q.Clauses, 2)
	assert.Empty(t, q.Stopped)
}

func TestParseRecordsStoppedTerms(t *testing.T) {
	q := parse(t, `the apple OR "a quick fox" the`, "the", "a")
	assert.Equal(t, []string{"the", "a", "the"}, q.Stopped)
	assert.Equal(t, `contents:apple contents:"quick fox"`, q.String())
}

func TestParseIsDeterministic(t *testing.T) {
	query := `+alpha "beta gamma" OR delta -epsilon`
	assert.Equal(t, parse(t, query).String(), parse(t, query).String())
}
