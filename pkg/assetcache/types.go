// Package assetcache implements the in-memory preloading cache for assets.
package assetcache

import (
	"context"
	"errors"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrCacheClosed is returned when operations are attempted on a closed cache.
	ErrCacheClosed = errors.New("asset cache is closed")

	// ErrSubscriptionCancelled is returned by Subscription.Wait after Cancel.
	ErrSubscriptionCancelled = errors.New("subscription cancelled")
)

// ============================================================================
// Entry State
// ============================================================================

// State represents the fetch state of a cache entry.
//
// An absent entry stands in for the implicit idle state: no entry exists
// before the first request for a locator. Per request cycle, transitions are
// monotonic: Loading moves to Loaded or Error exactly once and never back.
type State int

const (
	// StateLoading indicates a fetch is in flight for the locator.
	StateLoading State = iota

	// StateLoaded indicates the asset loaded successfully.
	StateLoaded

	// StateError indicates the fetch failed. Errors are cached: the same
	// locator is not silently retried; a fallback request uses a different
	// locator and therefore a different entry.
	StateError
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Failure classifies why an entry is in StateError.
//
// Timeouts and network failures are identical for state-machine purposes but
// are kept distinguishable for telemetry.
type Failure int

const (
	// FailureNone means the entry is not in StateError.
	FailureNone Failure = iota

	// FailureNetwork means the loader capability reported failure.
	FailureNetwork

	// FailureTimeout means no settlement arrived within the timeout budget.
	FailureTimeout
)

// String returns the string representation of Failure.
func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNetwork:
		return "network"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ============================================================================
// Fetcher capability
// ============================================================================

// Fetcher performs the actual network load for one locator.
//
// The cache delegates all I/O to this interface; pkg/fetch provides the
// scheduler implementation with timeout budgets and request coalescing.
// Load must return nil on success and an error on failure or timeout.
type Fetcher interface {
	Load(ctx context.Context, locator string) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, locator string) error

// Load calls f(ctx, locator).
func (f FetcherFunc) Load(ctx context.Context, locator string) error {
	return f(ctx, locator)
}

// ============================================================================
// Eviction Policy
// ============================================================================

// Policy selects the ordering key used by EvictOldest.
type Policy int

const (
	// PolicyFIFO evicts by insertion order regardless of later access.
	// This is the default: a frequently-read early entry is still evicted
	// before a never-read late one.
	PolicyFIFO Policy = iota

	// PolicyLRU reorders entries on request hits so recently-used entries
	// survive a sweep.
	PolicyLRU
)

// String returns the string representation of Policy.
func (p Policy) String() string {
	switch p {
	case PolicyFIFO:
		return "fifo"
	case PolicyLRU:
		return "lru"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a config string into a Policy. Unknown values map to
// PolicyFIFO.
func ParsePolicy(s string) Policy {
	if s == "lru" {
		return PolicyLRU
	}
	return PolicyFIFO
}

// ============================================================================
// Snapshots and Stats
// ============================================================================

// Snapshot is a read-only copy of an entry's observable state.
// Consumers only ever hold snapshots; entries are owned by the cache.
type Snapshot struct {
	// Locator is the entry's key.
	Locator string

	// State is the entry state at snapshot time.
	State State

	// Failure is the failure classification, FailureNone unless StateError.
	Failure Failure
}

// Stats contains cache statistics for observability.
type Stats struct {
	// Entries is the current number of cache entries.
	Entries int

	// Loading, Loaded and Errored break Entries down by state.
	Loading int
	Loaded  int
	Errored int

	// Hits counts requests answered from a settled entry.
	Hits uint64

	// Misses counts requests that started a fresh fetch cycle.
	Misses uint64

	// Coalesced counts requests that joined an in-flight fetch.
	Coalesced uint64

	// Evicted counts entries removed by eviction since creation or Reset.
	Evicted uint64
}

// ============================================================================
// In-flight future
// ============================================================================

// flight is the shared future for one fetch cycle. All requesters of a
// Loading locator hold the same flight; it settles exactly once.
type flight struct {
	locator string
	done    chan struct{}
	snap    Snapshot // readable only after done is closed
}

func newFlight(locator string) *flight {
	return &flight{
		locator: locator,
		done:    make(chan struct{}),
	}
}

// settle publishes the final snapshot and wakes all waiters.
// Must be called at most once.
func (f *flight) settle(snap Snapshot) {
	f.snap = snap
	close(f.done)
}

// snapshot returns the current observable state of the flight.
func (f *flight) snapshot() Snapshot {
	select {
	case <-f.done:
		return f.snap
	default:
		return Snapshot{Locator: f.locator, State: StateLoading}
	}
}
