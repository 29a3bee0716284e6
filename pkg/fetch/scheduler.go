// Package fetch schedules network loads for asset locators.
//
// The scheduler sits between the asset cache and the host's loader
// capability. It enforces a per-request timeout budget, collapses concurrent
// loads for the same locator into one underlying call, and guarantees that a
// load which outlives its budget cannot deliver a late result to the caller.
package fetch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marmos91/assetcache/internal/logger"
)

// DefaultTimeout is the per-request budget. A load that has not settled
// within this window is reported as timed out.
const DefaultTimeout = 10 * time.Second

// TimeoutError reports that a load exceeded its budget. It satisfies the
// Timeout() accessor so callers can classify it without importing this
// package.
type TimeoutError struct {
	Locator string
	Budget  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: no result within %s", e.Locator, e.Budget)
}

// Timeout reports true. Matches the net.Error convention.
func (e *TimeoutError) Timeout() bool { return true }

// Loader performs the actual transfer for one locator.
//
// The scheduler owns timeout and dedup; implementations just move bytes.
// Fetch must return nil only when the asset is fully retrieved and decodable.
type Loader interface {
	Fetch(ctx context.Context, locator string) error
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, locator string) error

// Fetch calls f(ctx, locator).
func (f LoaderFunc) Fetch(ctx context.Context, locator string) error {
	return f(ctx, locator)
}

// Options configures a Scheduler.
type Options struct {
	// Timeout is the per-request budget. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Scheduler dispatches loads with a timeout budget and in-flight dedup.
//
// Concurrent Load calls for the same locator share one underlying Fetch.
// Each caller still gets its own budget: a caller whose timer fires walks
// away with a TimeoutError while the shared load keeps running for the
// others. The underlying load is never cancelled by a caller timeout; if it
// eventually succeeds, later cache cycles see the host's warm state.
type Scheduler struct {
	loader  Loader
	timeout time.Duration
	group   singleflight.Group

	inFlight atomic.Int64
	timeouts atomic.Uint64
}

// NewScheduler creates a scheduler with the default timeout budget.
func NewScheduler(loader Loader) *Scheduler {
	return NewSchedulerWithOptions(loader, Options{})
}

// NewSchedulerWithOptions creates a scheduler with explicit options.
func NewSchedulerWithOptions(loader Loader, opts Options) *Scheduler {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Scheduler{loader: loader, timeout: timeout}
}

// Load fetches locator, returning nil on success.
//
// Returns:
//   - nil when the loader settles successfully within the budget
//   - the loader's error when it settles with failure within the budget
//   - *TimeoutError when the budget elapses first
//   - ctx.Err() when the caller's context expires first
//
// Load satisfies the cache's Fetcher interface.
func (s *Scheduler) Load(ctx context.Context, locator string) error {
	ch := s.group.DoChan(locator, func() (any, error) {
		s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		// Deliberately detached from any caller context: one consumer
		// giving up must not abort the shared transfer.
		return nil, s.loader.Fetch(context.Background(), locator)
	})

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.Err
	case <-timer.C:
		s.timeouts.Add(1)
		logger.Warn("fetch budget exceeded",
			logger.Locator(locator),
			logger.DurationMs(float64(s.timeout.Milliseconds())))
		return &TimeoutError{Locator: locator, Budget: s.timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the number of loads currently running.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Timeouts returns the number of Load calls that exceeded their budget.
func (s *Scheduler) Timeouts() uint64 {
	return s.timeouts.Load()
}
