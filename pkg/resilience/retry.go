// Package resilience holds the failure-handling helpers used around the
// engine's optional external collaborators: connection retries for result
// sinks and a breaker that lets the query cache fail fast.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Backoff describes an exponential retry schedule. Zero fields other than
// Jitter take the defaults of DefaultBackoff.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	Factor   float64
	Jitter   float64
}

func DefaultBackoff() Backoff {
	return Backoff{
		Attempts: 3,
		Initial:  200 * time.Millisecond,
		Max:      5 * time.Second,
		Factor:   2,
		Jitter:   0.1,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = d.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor <= 0 {
		b.Factor = d.Factor
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

// Delay returns the wait before attempt+1, attempt counting from 1.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	d := float64(b.Initial) * math.Pow(b.Factor, float64(attempt-1))
	d += d * b.Jitter * (2*rand.Float64() - 1)
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d <= 0 {
		d = float64(b.Initial)
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, the attempts run out or ctx is done.
func Retry(ctx context.Context, name string, b Backoff, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	var lastErr error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == b.Attempts {
			break
		}
		delay := b.Delay(attempt)
		logger.Warn("attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", b.Attempts,
			"next_delay", delay,
			"error", lastErr,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %d attempts failed: %w", name, b.Attempts, lastErr)
}
