// Package tracing times the phases of a run (indexing, stop-word
// selection, query evaluation, report delivery) as a tree carried through
// the context, and logs the tree once the run ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Phase is one timed step of a run.
type Phase struct {
	Name     string
	RunID    string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	children []*Phase
	attrs    []slog.Attr
}

// Start begins a phase. It becomes a child of the phase already in ctx, or
// a root phase for runID when there is none.
func Start(ctx context.Context, name, runID string) (context.Context, *Phase) {
	p := &Phase{Name: name, RunID: runID, Start: time.Now()}
	if parent := FromContext(ctx); parent != nil {
		p.RunID = parent.RunID
		parent.mu.Lock()
		parent.children = append(parent.children, p)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, p), p
}

// FromContext returns the current phase, or nil.
func FromContext(ctx context.Context) *Phase {
	p, _ := ctx.Value(contextKey{}).(*Phase)
	return p
}

// End fixes the phase duration. Calling End on a nil phase is a no-op.
func (p *Phase) End() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.Duration = time.Since(p.Start)
	p.mu.Unlock()
}

func (p *Phase) SetAttr(key string, value any) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.attrs = append(p.attrs, slog.Any(key, value))
	p.mu.Unlock()
}

// Children returns the direct sub-phases in start order.
func (p *Phase) Children() []*Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Phase(nil), p.children...)
}

// Log writes the phase tree depth-first, one record per phase.
func (p *Phase) Log(logger *slog.Logger) {
	p.log(logger, 0)
}

func (p *Phase) log(logger *slog.Logger, depth int) {
	p.mu.Lock()
	attrs := []slog.Attr{
		slog.String("run_id", p.RunID),
		slog.String("phase", p.Name),
		slog.Int("depth", depth),
		slog.Int64("duration_ms", p.Duration.Milliseconds()),
	}
	attrs = append(attrs, p.attrs...)
	children := append([]*Phase(nil), p.children...)
	p.mu.Unlock()

	logger.LogAttrs(context.Background(), slog.LevelDebug, "phase", attrs...)
	for _, c := range children {
		c.log(logger, depth+1)
	}
}
