// Package tokenizer provides text tokenisation for the retrieval engine.
// It lower-cases input and splits on runs of characters that are neither
// letters nor digits. Stemming and stop-word removal are opt-in.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kljensen/snowball/english"
)

// Token represents a single normalised term and its position in the
// original token stream.
type Token struct {
	Term     string
	Position int
}

// StopSet reports whether a normalised term is a stop word.
type StopSet interface {
	Contains(term string) bool
}

// Options selects the optional normalisation steps.
type Options struct {
	// Stem applies the Snowball English stemmer to every term.
	Stem bool
	// Stop drops terms contained in the set. Positions still advance over
	// dropped terms so phrase adjacency refers to the original stream.
	Stop StopSet
}

// Tokenizer turns raw text into terms. The zero value is usable and
// performs only lower-casing and boundary splitting.
type Tokenizer struct {
	opts Options
}

// New returns a Tokenizer with the given options.
func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

var plain = &Tokenizer{}

// Tokenize splits text with the default options.
func Tokenize(text string) []Token {
	return plain.Tokenize(text)
}

// WithStop returns a copy of t that also drops terms in stop.
func (t *Tokenizer) WithStop(stop StopSet) *Tokenizer {
	opts := t.opts
	opts.Stop = stop
	return &Tokenizer{opts: opts}
}

// Stemming reports whether the tokenizer stems terms.
func (t *Tokenizer) Stemming() bool {
	return t.opts.Stem
}

// Tokenize collects Terms(text) into a slice.
func (t *Tokenizer) Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/6)
	for tok := range t.Terms(text) {
		tokens = append(tokens, tok)
	}
	return tokens
}

// Terms yields the tokens of text lazily. Each range over the returned
// sequence rescans text, so repeated iterations produce identical tokens.
func (t *Tokenizer) Terms(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		pos := 0
		for word := range words(text) {
			term := t.normalize(word)
			if term == "" {
				continue
			}
			p := pos
			pos++
			if t.opts.Stop != nil && t.opts.Stop.Contains(term) {
				continue
			}
			if !yield(Token{Term: term, Position: p}) {
				return
			}
		}
	}
}

func (t *Tokenizer) normalize(word string) string {
	word = strings.ToLower(word)
	if t.opts.Stem {
		if stemmed := english.Stem(word, true); stemmed != "" {
			word = stemmed
		}
	}
	return word
}

// words yields every maximal run of letters and digits in text.
func words(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := -1
		for i, r := range text {
			if isWordRune(r) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(text[start:i]) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(text[start:])
		}
	}
}

func isWordRune(r rune) bool {
	if r == utf8.RuneError {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
