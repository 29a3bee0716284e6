// Package sweep runs the periodic eviction pass that bounds cache size.
//
// The cache itself never evicts on the request path; a background sweeper
// trims it down to a soft cap at a fixed cadence. A short burst above the cap
// between sweeps is acceptable by design.
package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/assetcache/internal/logger"
)

const (
	// DefaultInterval is the cadence between eviction passes.
	DefaultInterval = 5 * time.Minute

	// DefaultKeep is the soft cap: each pass keeps at most this many
	// entries.
	DefaultKeep = 100
)

var (
	// ErrAlreadyRunning is returned by Start when the sweeper is active.
	ErrAlreadyRunning = errors.New("sweeper already running")

	// ErrStopTimeout is returned by Stop when the loop does not exit in
	// time.
	ErrStopTimeout = errors.New("timeout waiting for sweeper to stop")
)

// Target is the cache surface the sweeper drives.
type Target interface {
	// EvictOldest removes all but the keep most recent entries and
	// returns the number removed.
	EvictOldest(keep int) int
}

// Options configures a Sweeper.
type Options struct {
	// Interval between passes. Zero means DefaultInterval.
	Interval time.Duration

	// Keep is the per-pass retention cap. Zero means DefaultKeep.
	Keep int
}

// Sweeper periodically evicts old cache entries.
//
// Lifecycle follows the usual background-worker shape: Start spawns the
// loop, Stop signals it and waits with a timeout. Both are safe to call from
// any goroutine; Start on a running sweeper fails.
type Sweeper struct {
	target   Target
	interval time.Duration
	keep     int

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}

	sweeps  atomic.Uint64
	evicted atomic.Uint64
}

// New creates a sweeper with default cadence and cap.
func New(target Target) *Sweeper {
	return NewWithOptions(target, Options{})
}

// NewWithOptions creates a sweeper with explicit options.
func NewWithOptions(target Target, opts Options) *Sweeper {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	keep := opts.Keep
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &Sweeper{target: target, interval: interval, keep: keep}
}

// Start launches the sweep loop. The loop exits when ctx is cancelled or
// Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})

	go s.loop(ctx, s.stopCh, s.stoppedCh)

	logger.Info("eviction sweeper started",
		logger.Kept(s.keep),
		logger.DurationMs(float64(s.interval.Milliseconds())))
	return nil
}

func (s *Sweeper) loop(ctx context.Context, stopCh <-chan struct{}, stoppedCh chan<- struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the loop and waits up to timeout for it to exit.
// Stopping an idle sweeper is a no-op.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	stoppedCh := s.stoppedCh
	s.mu.Unlock()

	select {
	case <-stoppedCh:
		logger.Info("eviction sweeper stopped")
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// RunOnce performs a single eviction pass and returns the number of entries
// removed. Exposed for manual sweeps and tests.
func (s *Sweeper) RunOnce() int {
	start := time.Now()
	removed := s.target.EvictOldest(s.keep)

	s.sweeps.Add(1)
	s.evicted.Add(uint64(removed))

	if removed > 0 {
		logger.Debug("eviction sweep completed",
			logger.Evicted(removed),
			logger.Kept(s.keep),
			logger.DurationMs(float64(time.Since(start).Microseconds())/1000.0))
	}
	return removed
}

// Sweeps returns the number of passes performed.
func (s *Sweeper) Sweeps() uint64 {
	return s.sweeps.Load()
}

// Evicted returns the total entries removed across all passes.
func (s *Sweeper) Evicted() uint64 {
	return s.evicted.Load()
}
