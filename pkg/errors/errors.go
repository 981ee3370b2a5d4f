// Package errors defines the error kinds surfaced by the retrieval engine.
// Item-level kinds (unreadable documents, empty or malformed queries) are
// recovered and reported per item; ErrIndexInconsistency signals a bug.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentUnreadable = errors.New("document unreadable")
	ErrEmptyQuery         = errors.New("empty query")
	ErrQuerySyntax        = errors.New("query syntax error")
	ErrIndexInconsistency = errors.New("index inconsistency")
	ErrInvalidInput       = errors.New("invalid input")
)

// DocumentError reports a single document that could not be read or indexed.
type DocumentError struct {
	Path string
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("document %s: %v", e.Path, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

func (e *DocumentError) Is(target error) bool {
	return target == ErrDocumentUnreadable
}

// NewDocumentError wraps err as a DocumentUnreadable failure for path.
func NewDocumentError(path string, err error) *DocumentError {
	return &DocumentError{Path: path, Err: err}
}

// QuerySyntaxError identifies the offending fragment of a query and its
// byte offset in the raw query string.
type QuerySyntaxError struct {
	Query    string
	Fragment string
	Offset   int
	Reason   string
}

func (e *QuerySyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d (%q): %s", ErrQuerySyntax.Error(), e.Offset, e.Fragment, e.Reason)
}

func (e *QuerySyntaxError) Is(target error) bool {
	return target == ErrQuerySyntax
}

// NewQuerySyntaxError builds a QuerySyntaxError for the fragment starting at offset.
func NewQuerySyntaxError(query, fragment string, offset int, reason string) *QuerySyntaxError {
	return &QuerySyntaxError{
		Query:    query,
		Fragment: fragment,
		Offset:   offset,
		Reason:   reason,
	}
}

// EmptyQueryError is returned when nothing searchable is left in a query
// after normalization and stop-word removal.
type EmptyQueryError struct {
	Query string
}

func (e *EmptyQueryError) Error() string {
	return fmt.Sprintf("%s: %q has no searchable terms", ErrEmptyQuery.Error(), e.Query)
}

func (e *EmptyQueryError) Is(target error) bool {
	return target == ErrEmptyQuery
}

// InconsistencyError describes a violated index invariant.
type InconsistencyError struct {
	Term    string
	DocID   int
	Message string
}

func (e *InconsistencyError) Error() string {
	if e.Term == "" {
		return fmt.Sprintf("%s: doc %d: %s", ErrIndexInconsistency.Error(), e.DocID, e.Message)
	}
	return fmt.Sprintf("%s: term %q doc %d: %s", ErrIndexInconsistency.Error(), e.Term, e.DocID, e.Message)
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrIndexInconsistency
}

// Kind maps err to a short label used in reports and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, ErrQuerySyntax):
		return "syntax_error"
	case errors.Is(err, ErrDocumentUnreadable):
		return "document_unreadable"
	case errors.Is(err, ErrIndexInconsistency):
		return "index_inconsistency"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}

// IsRecoverable reports whether err is an item-level error that should be
// reported and skipped rather than aborting the run.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrDocumentUnreadable) ||
		errors.Is(err, ErrEmptyQuery) ||
		errors.Is(err, ErrQuerySyntax)
}
