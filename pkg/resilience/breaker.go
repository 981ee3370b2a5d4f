package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned while a breaker rejects calls.
var ErrOpen = errors.New("circuit open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker opens after Threshold consecutive failures and rejects calls
// for Cooldown, then lets a single trial call through.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	logger   *slog.Logger
}

func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    slog.Default().With("component", "breaker", "name", name),
	}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.state = HalfOpen
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return fmt.Errorf("%w: %s probing", ErrOpen, b.name)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		if b.state != Closed {
			b.logger.Info("circuit closed")
		}
		b.state, b.failures, b.probing = Closed, 0, false
		return
	}
	b.failures++
	if b.state == HalfOpen || b.failures >= b.threshold {
		if b.state != Open {
			b.logger.Warn("circuit opened", "failures", b.failures, "error", err)
		}
		b.state, b.openedAt, b.probing = Open, b.now(), false
	}
}
