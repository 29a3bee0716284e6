// Package assetcache implements the in-memory preloading cache for assets.
//
// The cache is the single source of truth for "is this asset loaded". It maps
// an opaque locator string to a small per-entry state machine
// (Loading -> Loaded | Error) and coalesces concurrent requests for the same
// locator onto one shared in-flight future, so a locator is fetched at most
// once per cycle no matter how many consumers ask for it.
//
// Key design principles:
//   - Single-writer discipline: only the cache's own methods mutate the map
//   - Errors are cached, never silently retried; fallback is a new locator
//   - Soft size bound enforced by periodic sweeps, not on the request path
//   - Thread-safe for concurrent use by any number of goroutines
//
// The cache stores fetch state only. Decoded bytes live wherever the host's
// loader capability puts them; rendering is entirely the consumer's concern.
package assetcache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/assetcache/internal/logger"
)

// entry is the cache's internal record for one locator.
// All fields are guarded by Cache.mu.
type entry struct {
	locator string
	state   State
	failure Failure

	// insertedAt orders entries for FIFO eviction. Set once at creation.
	insertedAt uint64

	// accessedAt orders entries for LRU eviction. Bumped on request hits.
	accessedAt uint64

	// pending is the shared in-flight future, non-nil only while Loading.
	pending *flight
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{Locator: e.locator, State: e.state, Failure: e.failure}
}

// Options configures optional cache behavior.
type Options struct {
	// Policy selects the eviction ordering. Default PolicyFIFO.
	Policy Policy

	// Metrics receives cache telemetry. Nil disables collection.
	Metrics Metrics
}

// Cache is the process-wide keyed store for asset fetch state.
//
// Inject one instance into consumers rather than reaching for a global;
// Reset provides test isolation.
type Cache struct {
	fetcher Fetcher
	policy  Policy
	metrics Metrics

	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
	closed  bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	coalesced atomic.Uint64
	evicted   atomic.Uint64
}

// New creates a cache with default options (FIFO eviction, no metrics).
func New(fetcher Fetcher) *Cache {
	return NewWithOptions(fetcher, Options{})
}

// NewWithOptions creates a cache with explicit options.
func NewWithOptions(fetcher Fetcher, opts Options) *Cache {
	return &Cache{
		fetcher: fetcher,
		policy:  opts.Policy,
		metrics: opts.Metrics,
		entries: make(map[string]*entry),
	}
}

// Request returns the current state for locator and a subscription that
// settles when the entry leaves StateLoading.
//
// Behavior:
//   - Entry exists and is settled (Loaded or Error): returned immediately,
//     no network access. Cached errors stay cached; re-attempting a failed
//     asset means requesting a different locator (the fallback hop).
//   - Entry is Loading: the caller joins the existing in-flight fetch.
//   - No entry: a Loading entry is created and the fetch is dispatched.
//
// Entry creation and the dedup check happen under one critical section, so
// two Loading entries for the same locator can never coexist.
func (c *Cache) Request(ctx context.Context, locator string) (Snapshot, *Subscription, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, nil, err
	}

	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, nil, ErrCacheClosed
	}

	if ent, ok := c.entries[locator]; ok {
		if ent.state != StateLoading {
			// Settled entry: cache hit.
			if c.policy == PolicyLRU {
				c.seq++
				ent.accessedAt = c.seq
			}
			snap := ent.snapshot()
			c.mu.Unlock()

			c.hits.Add(1)
			c.recordRequest("hit")
			return snap, newSettledSubscription(snap), nil
		}

		// In-flight: join the shared future instead of fetching again.
		fl := ent.pending
		c.mu.Unlock()

		c.coalesced.Add(1)
		c.recordRequest("coalesced")
		return Snapshot{Locator: locator, State: StateLoading}, newSubscription(fl), nil
	}

	snap, sub := c.startFetchLocked(locator)
	c.mu.Unlock()

	c.misses.Add(1)
	c.recordRequest("miss")
	return snap, sub, nil
}

// Retry discards a cached Error entry for locator and starts a fresh fetch
// cycle. This is the explicit consumer-triggered re-request; Request alone
// never re-fetches a settled locator.
//
// If the entry is Loading the existing future is joined; if it is Loaded the
// cached result is returned unchanged.
func (c *Cache) Retry(ctx context.Context, locator string) (Snapshot, *Subscription, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, nil, ErrCacheClosed
	}
	if ent, ok := c.entries[locator]; ok && ent.state == StateError {
		delete(c.entries, locator)
	}
	c.mu.Unlock()

	return c.Request(ctx, locator)
}

// startFetchLocked creates a Loading entry for locator and dispatches the
// fetch. Caller must hold c.mu and have verified no entry exists.
func (c *Cache) startFetchLocked(locator string) (Snapshot, *Subscription) {
	c.seq++
	fl := newFlight(locator)
	ent := &entry{
		locator:    locator,
		state:      StateLoading,
		insertedAt: c.seq,
		accessedAt: c.seq,
		pending:    fl,
	}
	c.entries[locator] = ent

	go c.runFetch(locator, fl)

	return ent.snapshot(), newSubscription(fl)
}

// runFetch performs one fetch cycle and settles the entry.
//
// The fetch deliberately runs under a background context: a consumer
// unmounting cancels only its own subscription, never the shared load.
// The scheduler's timeout budget bounds the call.
func (c *Cache) runFetch(locator string, fl *flight) {
	start := time.Now()
	err := c.fetcher.Load(context.Background(), locator)
	c.settle(locator, fl, err, time.Since(start))
}

// settle applies the fetch outcome to the entry, provided the entry still
// belongs to this fetch cycle. A settlement whose future no longer matches
// the entry (evicted mid-flight, or reset) is discarded: the result would be
// stale and applying it could violate the monotonic-transition invariant.
func (c *Cache) settle(locator string, fl *flight, err error, elapsed time.Duration) {
	snap := Snapshot{Locator: locator, State: StateLoaded}
	if err != nil {
		snap.State = StateError
		snap.Failure = classifyFailure(err)
	}

	c.mu.Lock()
	ent, ok := c.entries[locator]
	if !ok || ent.pending != fl {
		c.mu.Unlock()
		// Wake waiters anyway; they observe the outcome of the cycle they
		// subscribed to even though the cache no longer tracks it.
		fl.settle(snap)
		return
	}

	ent.state = snap.State
	ent.failure = snap.Failure
	ent.pending = nil
	size := len(c.entries)
	c.mu.Unlock()

	fl.settle(snap)

	if err != nil {
		logger.Warn("asset load failed",
			logger.Locator(locator),
			logger.Reason(snap.Failure.String()),
			logger.Err(err),
			logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	} else {
		logger.Debug("asset loaded",
			logger.Locator(locator),
			logger.DurationMs(float64(elapsed.Microseconds())/1000.0))
	}

	c.recordFetch(snap, elapsed)
	c.recordSize(size)
}

// Get returns a non-blocking snapshot for locator.
//
// Visibility-gated consumers use this to skip scheduling work for locators
// that already resolved. Get never counts as a use for LRU ordering; only
// Request does.
func (c *Cache) Get(locator string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return Snapshot{}, false
	}

	ent, ok := c.entries[locator]
	if !ok {
		return Snapshot{}, false
	}
	return ent.snapshot(), true
}

// EvictOldest removes all but the keep most recent entries and returns the
// number removed. Recency is insertion order under PolicyFIFO and last
// request-hit order under PolicyLRU.
//
// Entries with a live in-flight future are never evicted: a subscriber must
// not end up awaiting a future the sweep detached from the map.
func (c *Cache) EvictOldest(keep int) int {
	if keep < 0 {
		keep = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.entries) <= keep {
		return 0
	}

	ordered := make([]*entry, 0, len(c.entries))
	for _, ent := range c.entries {
		ordered = append(ordered, ent)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return c.orderKey(ordered[i]) > c.orderKey(ordered[j])
	})

	removed := 0
	for _, ent := range ordered[keep:] {
		if ent.pending != nil {
			continue
		}
		delete(c.entries, ent.locator)
		removed++
	}

	if removed > 0 {
		c.evicted.Add(uint64(removed))
		c.recordEviction(removed)
		c.recordSize(len(c.entries))
	}
	return removed
}

func (c *Cache) orderKey(ent *entry) uint64 {
	if c.policy == PolicyLRU {
		return ent.accessedAt
	}
	return ent.insertedAt
}

// Reset clears all entries and counters. Intended for test isolation.
//
// In-flight fetches keep running; their settlements are discarded by the
// cycle guard in settle, and their subscribers still observe the outcome.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.entries = make(map[string]*entry)
	c.hits.Store(0)
	c.misses.Store(0)
	c.coalesced.Store(0)
	c.evicted.Store(0)
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return Stats{}
	}

	stats := Stats{
		Entries:   len(c.entries),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Coalesced: c.coalesced.Load(),
		Evicted:   c.evicted.Load(),
	}
	for _, ent := range c.entries {
		switch ent.state {
		case StateLoading:
			stats.Loading++
		case StateLoaded:
			stats.Loaded++
		case StateError:
			stats.Errored++
		}
	}
	return stats
}

// Close releases the cache. After Close all operations return ErrCacheClosed
// (or report absence). Idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.entries = nil
	return nil
}

// classifyFailure maps a fetch error onto the telemetry taxonomy. Anything
// reporting Timeout() true (the scheduler's budget error, or a net.Error)
// counts as a timeout; everything else is a network failure.
func classifyFailure(err error) Failure {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) && te.Timeout() {
		return FailureTimeout
	}
	return FailureNetwork
}

// ============================================================================
// Nil-safe metrics helpers
// ============================================================================

func (c *Cache) recordRequest(result string) {
	if c.metrics != nil {
		c.metrics.RecordRequest(result)
	}
}

func (c *Cache) recordFetch(snap Snapshot, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "loaded"
	if snap.State == StateError {
		outcome = snap.Failure.String()
	}
	c.metrics.ObserveFetch(outcome, elapsed)
}

func (c *Cache) recordEviction(n int) {
	if c.metrics != nil {
		c.metrics.RecordEviction(n)
	}
}

func (c *Cache) recordSize(n int) {
	if c.metrics != nil {
		c.metrics.RecordSize(n)
	}
}
