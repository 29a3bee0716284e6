package assetref

import (
	"context"
	"sync/atomic"

	"github.com/marmos91/assetcache/internal/logger"
	"github.com/marmos91/assetcache/pkg/assetcache"
	"github.com/marmos91/assetcache/pkg/preload"
	"github.com/marmos91/assetcache/pkg/visibility"
)

// Cache is the cache surface the resolver needs.
type Cache interface {
	Request(ctx context.Context, locator string) (assetcache.Snapshot, *assetcache.Subscription, error)
	Get(locator string) (assetcache.Snapshot, bool)
}

// Warmer speculatively warms variant locators after a successful resolve.
type Warmer interface {
	Nearby(ctx context.Context, locators []string) preload.Report
}

// Resolver resolves Refs against the cache.
//
// The trigger and warmer are optional: a nil trigger disables visibility
// gating entirely, a nil warmer disables variant warm-up.
type Resolver struct {
	cache   Cache
	warmer  Warmer
	trigger *visibility.Trigger
}

// NewResolver wires a resolver. cache is required.
func NewResolver(cache Cache, warmer Warmer, trigger *visibility.Trigger) *Resolver {
	return &Resolver{cache: cache, warmer: warmer, trigger: trigger}
}

// Resolve loads the asset named by ref and blocks until it settles.
//
// Resolution order:
//  1. If any locator in the chain is already Loaded, return it at once,
//     skipping the visibility gate.
//  2. Unless ref.Priority is set, wait for ref.Target to approach the
//     viewport.
//  3. Request the primary; on a settled error, hop to the fallback.
//
// Returns:
//   - Result with the first locator that loaded
//   - *ExhaustedError (wrapping ErrFallbackExhausted) when every locator
//     settled in error
//   - ctx.Err() or the cache's error when resolution was interrupted
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Result, error) {
	if err := ref.Validate(); err != nil {
		return Result{}, err
	}

	chain := ref.chain()

	// Already-warm assets render immediately regardless of visibility.
	for i, locator := range chain {
		if snap, ok := r.cache.Get(locator); ok && snap.State == assetcache.StateLoaded {
			r.warmVariants(ctx, ref)
			return Result{Locator: locator, Snapshot: snap, UsedFallback: i > 0}, nil
		}
	}

	if err := r.gate(ctx, ref); err != nil {
		return Result{}, err
	}

	var attempts []assetcache.Snapshot
	for i, locator := range chain {
		snap, sub, err := r.cache.Request(ctx, locator)
		if err != nil {
			return Result{}, err
		}
		if snap.State == assetcache.StateLoading {
			if snap, err = sub.Wait(ctx); err != nil {
				return Result{}, err
			}
		}

		if snap.State == assetcache.StateLoaded {
			if i > 0 {
				logger.Debug("asset resolved via fallback",
					logger.Locator(chain[0]),
					logger.Fallback(locator))
			}
			r.warmVariants(ctx, ref)
			return Result{Locator: locator, Snapshot: snap, UsedFallback: i > 0}, nil
		}

		attempts = append(attempts, snap)
		if i < len(chain)-1 {
			logger.Debug("asset failed, trying fallback",
				logger.Locator(locator),
				logger.Reason(snap.Failure.String()),
				logger.Fallback(chain[i+1]))
		}
	}

	return Result{}, &ExhaustedError{Attempts: attempts}
}

// gate blocks until the ref's target approaches the viewport. Priority refs,
// refs without a target, and resolvers without a trigger pass immediately.
func (r *Resolver) gate(ctx context.Context, ref Ref) error {
	if ref.Priority || ref.Target == "" || r.trigger == nil {
		return nil
	}

	obs := r.trigger.Observe(ref.Target)
	defer obs.Close()
	return obs.Wait(ctx)
}

// warmVariants kicks off speculative warm-up for the ref's size variants.
// Detached from the caller's context: the consumer completing its resolve
// must not abort variant warming already underway.
func (r *Resolver) warmVariants(ctx context.Context, ref Ref) {
	if r.warmer == nil || len(ref.SizeVariants) == 0 {
		return
	}
	go r.warmer.Nearby(context.WithoutCancel(ctx), ref.SizeVariants)
}

// ============================================================================
// Asynchronous resolution
// ============================================================================

// Callbacks receives the outcome of an asynchronous resolve.
// Either OnLoad or OnError fires at most once; neither fires after Cancel.
type Callbacks struct {
	OnLoad  func(Result)
	OnError func(error)
}

// Task is a cancellable asynchronous resolution.
type Task struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

// Go resolves ref in the background and delivers the outcome through cb.
//
// Cancel replaces the mounted-state checks consumers would otherwise need:
// after Cancel returns no callback will fire, so a consumer tears down
// without guarding its handlers.
func (r *Resolver) Go(ctx context.Context, ref Ref, cb Callbacks) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := &Task{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(task.done)
		defer cancel()

		res, err := r.Resolve(ctx, ref)

		if task.cancelled.Load() {
			return
		}
		if err != nil {
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}
		if cb.OnLoad != nil {
			cb.OnLoad(res)
		}
	}()

	return task
}

// Cancel stops the task. The underlying fetch, if any, keeps running as
// shared cache state; only this consumer's delivery is suppressed.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Done returns a channel closed when the task has finished, whether by
// delivery or cancellation.
func (t *Task) Done() <-chan struct{} {
	return t.done
}
