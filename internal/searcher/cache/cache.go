// Package cache memoises executed queries in an external key/value store.
// Keys cover everything that changes a result: the canonical parsed query,
// the limit, the retrieval mode and the fingerprint of the index snapshot.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/retrieval-engine/pkg/resilience"
)

const keyPrefix = "search:"

// Store is the subset of a key/value client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cached result. Snapshot is the content fingerprint of
// the index the query ran against, so a store shared between collections
// never serves one collection's hits for another.
type Key struct {
	Query    string
	Limit    int
	Mode     ranker.Mode
	Snapshot string
}

func NewKey(q *parser.Query, limit int, mode ranker.Mode, snapshot string) Key {
	return Key{Query: q.String(), Limit: limit, Mode: mode, Snapshot: snapshot}
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|limit=%d|mode=%s|snap=%s", k.Query, k.Limit, k.Mode, k.Snapshot)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns a cached result. Store and decode failures are logged and
// treated as misses.
func (c *QueryCache) Get(ctx context.Context, key Key) (*executor.SearchResult, bool) {
	k := key.String()
	data, found, err := c.store.Get(ctx, k)
	if err != nil {
		c.logger.Error("cache get failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", k, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "query", key.Query, "key", k)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key Key, result *executor.SearchResult) {
	k := key.String()
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", k, "error", err)
		return
	}
	if err := c.store.Set(ctx, k, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", k, "error", err)
	}
}

// GetOrCompute returns the cached result for key or runs compute once per
// key across concurrent callers. The bool reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	key Key,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached query.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

// guardedStore routes store calls through a breaker so an unreachable
// store costs one failed call per cooldown instead of one per query.
type guardedStore struct {
	Store
	breaker *resilience.Breaker
}

// WithBreaker wraps s so that calls fail fast with resilience.ErrOpen
// while b is open.
func WithBreaker(s Store, b *resilience.Breaker) Store {
	return &guardedStore{Store: s, breaker: b}
}

func (g *guardedStore) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		val   string
		found bool
	)
	err := g.breaker.Do(func() error {
		var err error
		val, found, err = g.Store.Get(ctx, key)
		return err
	})
	return val, found, err
}

func (g *guardedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.Store.Set(ctx, key, value, ttl)
	})
}
