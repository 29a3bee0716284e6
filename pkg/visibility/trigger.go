// Package visibility defers asset loading until a target approaches the
// viewport.
//
// The trigger wraps a host-provided observation source (an intersection
// observer or equivalent). Observation is a one-shot latch: the first
// intersecting event arms the observer permanently, and later "not
// intersecting" events never disarm it. Scrolling an asset out of view must
// not cancel a load that its appearance started.
//
// When no observation source is available the trigger fails open and arms
// immediately: an eager load is a performance cost, a never-armed observer is
// a correctness bug.
package visibility

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/marmos91/assetcache/internal/logger"
)

// DefaultRootMargin expands the observation rectangle so loads start before
// the target actually enters the viewport.
const DefaultRootMargin = 50

// ErrUnavailable is returned by a Source that cannot observe in the current
// environment. The trigger treats it as a signal to fail open.
var ErrUnavailable = errors.New("visibility source unavailable")

// Event is one observation delivered by a Source.
type Event struct {
	// Intersecting reports whether the target currently intersects the
	// expanded viewport rectangle.
	Intersecting bool
}

// Options configures how targets are observed.
type Options struct {
	// RootMargin is the viewport expansion in layout units. Zero means
	// DefaultRootMargin; use a negative value for a strict viewport.
	RootMargin int

	// Threshold is the intersection ratio that counts as visible,
	// in [0, 1]. Zero means any overlap.
	Threshold float64
}

func (o Options) withDefaults() Options {
	if o.RootMargin == 0 {
		o.RootMargin = DefaultRootMargin
	}
	return o
}

// Source delivers intersection events for a target.
//
// Watch returns a channel of events and a stop function releasing the
// underlying observation. Implementations that cannot observe return
// ErrUnavailable.
type Source interface {
	Watch(target string, opts Options) (<-chan Event, func(), error)
}

// Trigger creates visibility observers for targets.
type Trigger struct {
	source Source
	opts   Options
}

// New creates a trigger with default options. A nil source fails open: every
// observer arms immediately.
func New(source Source) *Trigger {
	return NewWithOptions(source, Options{})
}

// NewWithOptions creates a trigger with explicit options.
func NewWithOptions(source Source, opts Options) *Trigger {
	return &Trigger{source: source, opts: opts.withDefaults()}
}

// Observe starts watching target and returns its observer.
// Call Close on the observer when the consumer goes away.
func (t *Trigger) Observe(target string) *Observer {
	obs := &Observer{armed: make(chan struct{})}

	if t.source == nil {
		obs.arm()
		return obs
	}

	events, stop, err := t.source.Watch(target, t.opts)
	if err != nil {
		logger.Warn("visibility observation failed, loading eagerly",
			logger.Locator(target),
			logger.Err(err))
		obs.arm()
		return obs
	}

	obs.stop = stop
	go obs.consume(events)
	return obs
}

// Observer is the one-shot visibility latch for a single target.
type Observer struct {
	armed        chan struct{}
	fired        atomic.Bool
	intersecting atomic.Bool

	closeOnce sync.Once
	closed    atomic.Bool
	stop      func()
}

func (o *Observer) arm() {
	if o.fired.CompareAndSwap(false, true) {
		close(o.armed)
	}
}

func (o *Observer) consume(events <-chan Event) {
	for ev := range events {
		o.intersecting.Store(ev.Intersecting)
		if ev.Intersecting {
			o.arm()
			// The latch never reverts; no reason to keep observing.
			o.Close()
			return
		}
	}
	// Source went away without ever intersecting: fail open, unless the
	// consumer itself closed the observation.
	if !o.closed.Load() {
		o.arm()
	}
}

// Armed returns a channel closed once the target has intersected.
// The channel stays closed forever after the first intersection.
func (o *Observer) Armed() <-chan struct{} {
	return o.armed
}

// HasIntersected reports whether the target has ever intersected.
func (o *Observer) HasIntersected() bool {
	return o.fired.Load()
}

// IsIntersecting reports the most recently observed intersection state.
// Unlike HasIntersected it follows the target in and out of the viewport
// while the observation is live.
func (o *Observer) IsIntersecting() bool {
	return o.intersecting.Load()
}

// Wait blocks until the target intersects or ctx expires.
func (o *Observer) Wait(ctx context.Context) error {
	select {
	case <-o.armed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the underlying observation. The latch state is preserved:
// an armed observer stays armed. Idempotent.
func (o *Observer) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		if o.stop != nil {
			o.stop()
		}
	})
}
