// Package cache is the client's query cache: keyed entries with staleness
// metadata, collapsed concurrent fetches, invalidation driven by a fixed
// mutation table, and cursor-paginated queries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrDisabled is returned for a query whose key lacks a required parameter.
var ErrDisabled = errors.New("query disabled")

// Options configures a Coordinator.
type Options struct {
	// StaleTime is how long a fetched value stays fresh. Zero keeps values
	// fresh until they are invalidated.
	StaleTime time.Duration
	// GCTime is how long a value that is no longer fresh is kept before
	// it is dropped. Defaults to five minutes.
	GCTime time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

const defaultGCTime = 5 * time.Minute

// Stats counts cache activity.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Fetches       uint64
	Invalidations uint64
	Entries       int
}

type entry struct {
	key       Key
	value     any
	fetchedAt time.Time
	stale     bool
}

type flight struct {
	key         Key
	invalidated bool
}

type resetter interface {
	reset()
}

// Coordinator owns every cached query of a client. It is safe for
// concurrent use.
type Coordinator struct {
	opts  Options
	log   *zap.Logger
	group singleflight.Group

	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*flight
	infinite map[string]infiniteEntry
	stats    Stats
	swept    time.Time
}

type infiniteEntry struct {
	key   Key
	pages resetter
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GCTime <= 0 {
		opts.GCTime = defaultGCTime
	}
	return &Coordinator{
		opts:     opts,
		log:      opts.Logger,
		entries:  make(map[string]*entry),
		inflight: make(map[string]*flight),
		infinite: make(map[string]infiniteEntry),
	}
}

// Query returns the cached value for key while it is fresh, and otherwise
// runs fetch. Concurrent callers of the same key share one fetch, which is
// not cancelled when one of them gives up. A fetch started before an
// invalidation of key is never joined by later callers. Errors are returned
// to every waiting caller and never cached.
func Query[T any](ctx context.Context, c *Coordinator, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if !key.Enabled() {
		return zero, fmt.Errorf("%s: %w", key.Op, ErrDisabled)
	}
	id := key.String()

	c.mu.Lock()
	c.sweep()
	if e, ok := c.entries[id]; ok && c.fresh(e) {
		if v, ok := e.value.(T); ok {
			c.stats.Hits++
			c.mu.Unlock()
			return v, nil
		}
	}
	c.stats.Misses++
	c.mu.Unlock()

	ch := c.group.DoChan(id, func() (any, error) {
		c.mu.Lock()
		f := &flight{key: key}
		c.inflight[id] = f
		c.stats.Fetches++
		c.mu.Unlock()

		v, err := fetch(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		current := c.inflight[id] == f
		if current {
			delete(c.inflight, id)
		}
		if err != nil {
			return nil, err
		}
		// A superseded flight must not replace what its successor stored.
		if _, exists := c.entries[id]; current || !exists {
			c.entries[id] = &entry{key: key, value: v, fetchedAt: c.opts.Now(), stale: f.invalidated}
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			c.log.Debug("query failed", zap.String("key", key.Op), zap.Error(res.Err))
			return zero, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("%s: cached value has type %T", key.Op, res.Val)
		}
		return v, nil
	}
}

// Mutate runs fn and, when it succeeds, invalidates the prefixes the
// mutation table lists for m narrowed by subject.
func Mutate[T any](ctx context.Context, c *Coordinator, m Mutation, subject string, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	c.Apply(m, subject)
	return v, nil
}

// Apply invalidates what m lists for subject without running anything.
// Mutations observed from other clients arrive this way.
func (c *Coordinator) Apply(m Mutation, subject string) {
	for _, r := range Invalidations[m] {
		c.InvalidatePrefix(r.Prefix(subject))
	}
	c.log.Debug("mutation applied", zap.String("mutation", string(m)), zap.String("subject", subject))
}

// InvalidatePrefix drops every entry under prefix and the loaded infinite
// pages under it. Fetches in flight for those keys finish but their results
// are stored stale, and later callers start a new fetch. It does not
// refetch.
func (c *Coordinator) InvalidatePrefix(prefix Key) {
	c.mu.Lock()
	var resets []resetter
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, id)
		}
	}
	for id, f := range c.inflight {
		if f.key.HasPrefix(prefix) {
			f.invalidated = true
			c.group.Forget(id)
		}
	}
	for _, inf := range c.infinite {
		if inf.key.HasPrefix(prefix) {
			resets = append(resets, inf.pages)
		}
	}
	c.stats.Invalidations++
	c.mu.Unlock()

	for _, r := range resets {
		r.reset()
	}
}

// IsStale reports whether key has no fresh value.
func (c *Coordinator) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	return !ok || !c.fresh(e)
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stats
	st.Entries = len(c.entries)
	return st
}

// sweep drops entries that stopped being fresh more than GCTime ago. It
// runs at most once per GCTime. c.mu must be held.
func (c *Coordinator) sweep() {
	now := c.opts.Now()
	if now.Sub(c.swept) < c.opts.GCTime {
		return
	}
	c.swept = now
	for id, e := range c.entries {
		if !c.fresh(e) && now.Sub(e.fetchedAt) >= c.opts.GCTime {
			delete(c.entries, id)
		}
	}
}

// fresh reports whether e can be served. c.mu must be held.
func (c *Coordinator) fresh(e *entry) bool {
	if e.stale {
		return false
	}
	return c.opts.StaleTime <= 0 || c.opts.Now().Sub(e.fetchedAt) < c.opts.StaleTime
}
