// Package parser turns a free-text query string into clauses the executor
// can evaluate. The syntax is a small Lucene-like subset: bare terms,
// quoted phrases, field:term and field:"phrase", +/- prefixes and the
// AND, OR and NOT operators.
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/errors"
)

// DefaultField is the only field the index holds.
const DefaultField = "contents"

type Occur int

const (
	Must Occur = iota
	Should
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	default:
		return ""
	}
}

// Clause is a single term or phrase. For phrases Offsets[i] is the
// position of Terms[i] relative to Terms[0]; gaps left by removed stop
// words are kept.
type Clause struct {
	Field   string   `json:"field"`
	Terms   []string `json:"terms"`
	Offsets []int    `json:"offsets"`
	Occur   Occur    `json:"occur"`
	Raw     string   `json:"raw"`
}

func (c Clause) IsPhrase() bool {
	return len(c.Terms) > 1
}

// String renders the clause in query syntax. Phrase gaps appear as '?'.
func (c Clause) String() string {
	var sb strings.Builder
	sb.WriteString(c.Occur.String())
	sb.WriteString(c.Field)
	sb.WriteByte(':')
	if !c.IsPhrase() {
		sb.WriteString(c.Terms[0])
		return sb.String()
	}
	sb.WriteByte('"')
	prev := 0
	for i, term := range c.Terms {
		if i > 0 {
			for gap := prev + 1; gap < c.Offsets[i]; gap++ {
				sb.WriteString(" ?")
			}
			sb.WriteByte(' ')
		}
		sb.WriteString(term)
		prev = c.Offsets[i]
	}
	sb.WriteByte('"')
	return sb.String()
}

// Query is a parsed query. Stopped lists the stop words removed from it.
type Query struct {
	Raw     string   `json:"raw"`
	Clauses []Clause `json:"clauses"`
	Stopped []string `json:"stopped,omitempty"`
}

// String is the canonical form of the parsed query; equal strings mean
// equal evaluation.
func (q *Query) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Parser normalises query terms with the same tokenizer used at indexing.
type Parser struct {
	tok *tokenizer.Tokenizer
}

func New(tok *tokenizer.Tokenizer) *Parser {
	if tok == nil {
		tok = tokenizer.New(tokenizer.Options{})
	}
	return &Parser{tok: tok}
}

type operator int

const (
	opNone operator = iota
	opAnd
	opOr
)

type parseState struct {
	clauses  []Clause
	explicit []bool
	stopped  []string
	pending  operator
	negate   bool
	// dropped is set while the latest operand was removed entirely.
	dropped  bool
	// undo restores the clause the pending operator rewrote.
	undo     func()
}

// Parse parses query, dropping terms contained in stop. It fails with an
// EmptyQueryError when no positive clause remains and with a
// QuerySyntaxError on an unterminated quote, an empty or unknown field
// name, or a field without a term.
func (p *Parser) Parse(query string, stop tokenizer.StopSet) (*Query, error) {
	st := &parseState{}
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		occur, explicit := Must, false
		switch query[i] {
		case '+':
			explicit = true
			i++
		case '-':
			occur, explicit = MustNot, true
			i++
		}

		if i < len(query) && query[i] == '"' {
			end, err := scanPhrase(query, i)
			if err != nil {
				return nil, err
			}
			st.add(p.clause(DefaultField, query[i+1:end-1], query[start:end], occur, explicit, stop, st))
			i = end
			continue
		}

		end := scanWord(query, i)
		word := query[i:end]
		if !explicit {
			switch word {
			case "AND":
				st.operator(opAnd)
				i = end
				continue
			case "OR":
				st.operator(opOr)
				i = end
				continue
			case "NOT":
				st.negate = true
				i = end
				continue
			}
		}

		field := DefaultField
		if colon := strings.IndexByte(word, ':'); colon >= 0 {
			name := word[:colon]
			if name == "" {
				return nil, apperrors.NewQuerySyntaxError(query, query[start:end], start, "empty field name")
			}
			if !strings.EqualFold(name, DefaultField) {
				return nil, apperrors.NewQuerySyntaxError(query, query[start:end], start, "unknown field "+name)
			}
			rest := word[colon+1:]
			if rest == "" {
				if end < len(query) && query[end] == '"' {
					phraseEnd, err := scanPhrase(query, end)
					if err != nil {
						return nil, err
					}
					st.add(p.clause(field, query[end+1:phraseEnd-1], query[start:phraseEnd], occur, explicit, stop, st))
					i = phraseEnd
					continue
				}
				return nil, apperrors.NewQuerySyntaxError(query, query[start:end], start, "missing term after field")
			}
			word = rest
		}
		st.add(p.clause(field, word, query[start:end], occur, explicit, stop, st))
		i = end
	}

	positive := false
	for _, c := range st.clauses {
		if c.Occur != MustNot {
			positive = true
			break
		}
	}
	if !positive {
		return nil, &apperrors.EmptyQueryError{Query: query}
	}
	return &Query{Raw: query, Clauses: st.clauses, Stopped: st.stopped}, nil
}

// clause normalises text and builds a term or phrase clause, marked empty
// when every term was a stop word.
func (p *Parser) clause(field, text, raw string, occur Occur, explicit bool, stop tokenizer.StopSet, st *parseState) *pendingClause {
	tok := p.tok
	if stop != nil {
		tok = tok.WithStop(stopRecorder{stop: stop, stopped: &st.stopped})
	}
	terms := make([]string, 0, 4)
	offsets := make([]int, 0, 4)
	base := -1
	for t := range tok.Terms(text) {
		if base < 0 {
			base = t.Position
		}
		terms = append(terms, t.Term)
		offsets = append(offsets, t.Position-base)
	}
	pc := &pendingClause{explicit: explicit}
	if len(terms) == 0 {
		pc.empty = true
		return pc
	}
	pc.clause = Clause{
		Field:   strings.ToLower(field),
		Terms:   terms,
		Offsets: offsets,
		Occur:   occur,
		Raw:     raw,
	}
	return pc
}

// stopRecorder collects the stop words the tokenizer drops.
type stopRecorder struct {
	stop    tokenizer.StopSet
	stopped *[]string
}

func (r stopRecorder) Contains(term string) bool {
	if !r.stop.Contains(term) {
		return false
	}
	*r.stopped = append(*r.stopped, term)
	return true
}

type pendingClause struct {
	clause   Clause
	explicit bool
	empty    bool
}

// add appends a clause, applying NOT and any pending connector. A clause
// whose terms were all removed still consumes the pending operators, and
// the connector then leaves its left operand as it was.
func (st *parseState) add(pc *pendingClause) {
	negate, op, undo := st.negate, st.pending, st.undo
	st.negate, st.pending, st.undo = false, opNone, nil
	if pc.empty {
		st.dropped = true
		if undo != nil {
			undo()
		}
		return
	}
	st.dropped = false
	c := pc.clause
	explicit := pc.explicit
	if negate {
		c.Occur, explicit = MustNot, true
	}
	if !explicit {
		switch op {
		case opOr:
			c.Occur = Should
		case opAnd:
			c.Occur = Must
		}
	}
	st.clauses = append(st.clauses, c)
	st.explicit = append(st.explicit, explicit)
}

// operator records a connector and applies it to the preceding clause. A
// connector whose left operand was removed is ignored.
func (st *parseState) operator(op operator) {
	st.undo = nil
	if st.dropped {
		st.pending = opNone
		return
	}
	st.pending = op
	last := len(st.clauses) - 1
	if last < 0 || st.explicit[last] {
		return
	}
	prev := st.clauses[last].Occur
	switch op {
	case opOr:
		st.clauses[last].Occur = Should
	case opAnd:
		st.clauses[last].Occur = Must
	}
	st.undo = func() { st.clauses[last].Occur = prev }
}

// scanPhrase returns the index just past the closing quote of the phrase
// opening at query[open].
func scanPhrase(query string, open int) (int, error) {
	closing := strings.IndexByte(query[open+1:], '"')
	if closing < 0 {
		return 0, apperrors.NewQuerySyntaxError(query, query[open:], open, "unterminated quote")
	}
	return open + 1 + closing + 1, nil
}

// scanWord returns the end of the word starting at i. A word ends at
// whitespace or at an opening quote.
func scanWord(query string, i int) int {
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		if unicode.IsSpace(r) || r == '"' {
			return i
		}
		i += size
	}
	return i
}
