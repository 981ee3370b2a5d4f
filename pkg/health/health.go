// Package health aggregates dependency checks (index directory, Redis
// cache) into a single report served next to the metrics endpoint.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check tests one dependency. A nil error means up.
type Check func(ctx context.Context) error

type Component struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Optional bool   `json:"optional,omitempty"`
	Latency  string `json:"latency"`
}

type Report struct {
	Status     Status      `json:"status"`
	Components []Component `json:"components"`
	Timestamp  time.Time   `json:"timestamp"`
}

type registration struct {
	check    Check
	optional bool
}

// Checker runs registered checks concurrently.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]registration
}

func NewChecker() *Checker {
	return &Checker{checks: make(map[string]registration)}
}

// Register adds a required check. A failing required check marks the whole
// report down.
func (c *Checker) Register(name string, check Check) {
	c.register(name, registration{check: check})
}

// RegisterOptional adds a check whose failure only degrades the report.
// The query cache is optional: runs continue without it.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.register(name, registration{check: check, optional: true})
}

func (c *Checker) register(name string, r registration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = r
}

// Run executes every check and returns the report. Components are sorted
// by name.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	regs := make([]registration, len(names))
	for i, name := range names {
		regs[i] = c.checks[name]
	}
	c.mu.RUnlock()

	components := make([]Component, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			start := time.Now()
			err := regs[i].check(ctx)
			comp := Component{Name: name, Status: StatusUp, Optional: regs[i].optional}
			if err != nil {
				comp.Status = StatusDown
				comp.Message = err.Error()
			}
			comp.Latency = time.Since(start).Round(time.Microsecond).String()
			components[i] = comp
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Status: StatusUp, Components: components, Timestamp: time.Now().UTC()}
	for _, comp := range components {
		if comp.Status != StatusDown {
			continue
		}
		if !comp.Optional {
			report.Status = StatusDown
			break
		}
		report.Status = StatusDegraded
	}
	return report
}

// Handler serves the report as JSON. Only a down report answers 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

// DirCheck reports whether dir exists and is a directory. A directory that
// does not exist yet is fine when mustExist is false.
func DirCheck(dir string, mustExist bool) Check {
	return func(context.Context) error {
		fi, err := os.Stat(dir)
		switch {
		case errors.Is(err, os.ErrNotExist) && !mustExist:
			return nil
		case err != nil:
			return err
		case !fi.IsDir():
			return &os.PathError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
		}
		return nil
	}
}
