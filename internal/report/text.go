package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type textFormat int

const (
	formatConsole textFormat = iota
	formatTREC
)

// TextSink renders reports as text. The console format is meant for
// people; the TREC format writes one "qid Q0 path rank score tag" line per
// hit and nothing else, so the file can be fed to trec_eval.
type TextSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	format textFormat
}

func NewConsole(w io.Writer) *TextSink {
	return &TextSink{w: bufio.NewWriter(w), format: formatConsole}
}

// NewTRECFile writes a run file to wc and closes it on Close.
func NewTRECFile(wc io.WriteCloser) *TextSink {
	return &TextSink{w: bufio.NewWriter(wc), closer: wc, format: formatTREC}
}

func (s *TextSink) Name() string {
	if s.format == formatTREC {
		return "trec"
	}
	return "console"
}

func (s *TextSink) Write(_ context.Context, r QueryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.format == formatTREC {
		return s.writeTREC(r)
	}
	return s.writeConsole(r)
}

func (s *TextSink) writeTREC(r QueryReport) error {
	for rank, h := range r.Hits {
		if _, err := fmt.Fprintf(s.w, "%d Q0 %s %d %.4f %s\n", r.QueryID, h.Path, rank+1, h.Score, r.Mode); err != nil {
			return err
		}
	}
	return nil
}

func (s *TextSink) writeConsole(r QueryReport) error {
	fmt.Fprintf(s.w, "Search for query %d: %s\n", r.QueryID, r.Query)
	if r.Error != "" {
		fmt.Fprintf(s.w, "  %s: %s\n", r.ErrorKind, r.Error)
		return s.w.Flush()
	}
	if r.Parsed != "" {
		fmt.Fprintf(s.w, "  parsed: %s\n", r.Parsed)
	}
	fmt.Fprintf(s.w, "%d total matching documents\n", r.TotalHits)
	for rank, h := range r.Hits {
		fmt.Fprintf(s.w, "  %3d. %s (doc %d) score=%.4f\n", rank+1, h.Path, h.DocID, h.Score)
	}
	return s.w.Flush()
}

func (s *TextSink) Summarize(_ context.Context, sum Summary) error {
	if s.format == formatTREC {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	words := make([]string, len(sum.StopWords))
	for i, st := range sum.StopWords {
		words[i] = fmt.Sprintf("%s(%d)", st.Term, st.TotalFreq)
	}
	fmt.Fprintf(s.w, "Run %s (%s)\n", sum.RunID, sum.Mode)
	fmt.Fprintf(s.w, "  documents: %d indexed, %d updated, %d failed, %d in index\n",
		sum.DocsIndexed, sum.DocsUpdated, len(sum.DocsFailed), sum.IndexedTotal)
	for _, fd := range sum.DocsFailed {
		fmt.Fprintf(s.w, "    skipped %s: %s\n", fd.Path, fd.Error)
	}
	fmt.Fprintf(s.w, "  Stop Words: %s\n", strings.Join(words, " "))
	fmt.Fprintf(s.w, "  queries: %d run, %d failed in %s\n", sum.Queries, sum.QueriesFailed, sum.Duration.Round(time.Millisecond))
	return s.w.Flush()
}

func (s *TextSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
