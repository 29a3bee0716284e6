package assetcache

import (
	"context"
	"sync"
)

// Subscription lets one consumer await the settlement of a fetch cycle.
//
// Every Request hands out a fresh Subscription, even when the underlying
// flight is shared: Cancel affects only the holder, never the other
// subscribers or the fetch itself. A consumer that goes away calls Cancel so
// no completion is delivered afterwards, replacing the "am I still mounted"
// checks callers would otherwise need.
type Subscription struct {
	fl *flight

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

func newSubscription(fl *flight) *Subscription {
	return &Subscription{
		fl:       fl,
		cancelCh: make(chan struct{}),
	}
}

// newSettledSubscription wraps an already-settled snapshot so hit paths and
// miss paths hand back the same type.
func newSettledSubscription(snap Snapshot) *Subscription {
	fl := newFlight(snap.Locator)
	fl.settle(snap)
	return newSubscription(fl)
}

// Wait blocks until the fetch cycle settles, the context expires, or the
// subscription is cancelled.
//
// Returns:
//   - The settled snapshot (StateLoaded or StateError) on normal completion
//   - ErrSubscriptionCancelled if Cancel was called
//   - The context's error if ctx expires first
//
// Note that a StateError snapshot is a successful Wait: the error is a cached
// outcome the consumer reacts to, not a failure of the subscription.
func (s *Subscription) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-s.cancelCh:
		return Snapshot{}, ErrSubscriptionCancelled
	default:
	}

	select {
	case <-s.cancelCh:
		return Snapshot{}, ErrSubscriptionCancelled
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.fl.done:
		return s.fl.snap, nil
	}
}

// Done returns a channel closed when the fetch cycle settles.
// Select-based callers combine this with their own cancellation.
func (s *Subscription) Done() <-chan struct{} {
	return s.fl.done
}

// Snapshot returns the current observable state without blocking.
func (s *Subscription) Snapshot() Snapshot {
	return s.fl.snapshot()
}

// Cancel detaches the subscriber. Any Wait in progress (or after) returns
// ErrSubscriptionCancelled. The shared fetch keeps running for the remaining
// subscribers. Idempotent.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelCh)
	})
}

// Cancelled reports whether Cancel has been called.
func (s *Subscription) Cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}
