// Package preload warms the asset cache for known-upcoming asset sets.
//
// The preloader walks a list of locators in fixed-size chunks, requesting
// each through the cache and waiting for settlement. A chunk must fully
// settle before the next one starts, which caps concurrent fetches at the
// chunk size regardless of list length. Warming is best effort: individual
// failures are recorded and skipped, never fatal.
package preload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marmos91/assetcache/internal/logger"
	"github.com/marmos91/assetcache/pkg/assetcache"
)

const (
	// DefaultConcurrency is the chunk size for bulk warm-up.
	DefaultConcurrency = 3

	// NearbyConcurrency is the smaller chunk size used when warming
	// assets adjacent to the one a consumer just resolved, so speculative
	// work never crowds out demand fetches.
	NearbyConcurrency = 2
)

// Requester is the cache surface the preloader needs.
type Requester interface {
	Request(ctx context.Context, locator string) (assetcache.Snapshot, *assetcache.Subscription, error)
}

// Result records the outcome of warming one locator.
type Result struct {
	Locator string
	State   assetcache.State
	Failure assetcache.Failure

	// Err is set when the request could not even be scheduled or was
	// interrupted, as opposed to settling in StateError.
	Err error
}

// Report summarizes one warm-up run.
type Report struct {
	Requested int
	Loaded    int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
	Results   []Result
}

// Preloader warms cache entries in sequential chunks.
type Preloader struct {
	cache       Requester
	concurrency int
}

// New creates a preloader with DefaultConcurrency.
func New(cache Requester) *Preloader {
	return NewWithConcurrency(cache, DefaultConcurrency)
}

// NewWithConcurrency creates a preloader with an explicit chunk size.
// Values below 1 fall back to DefaultConcurrency.
func NewWithConcurrency(cache Requester, concurrency int) *Preloader {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Preloader{cache: cache, concurrency: concurrency}
}

// Run warms every locator in order, at most the configured chunk size in
// flight at once.
//
// Cancelling ctx stops the run between chunks; locators of the current chunk
// still settle (their fetches are shared cache state, not ours to abort) and
// the remaining ones are reported as skipped.
func (p *Preloader) Run(ctx context.Context, locators []string) Report {
	return p.run(ctx, locators, p.concurrency, logger.Info)
}

// Nearby warms locators adjacent to a just-resolved asset, using the reduced
// NearbyConcurrency chunk size. Nearby runs fire once per resolved asset, so
// their summary is logged at debug level to keep steady-state output quiet.
func (p *Preloader) Nearby(ctx context.Context, locators []string) Report {
	return p.run(ctx, locators, NearbyConcurrency, logger.Debug)
}

func (p *Preloader) run(ctx context.Context, locators []string, chunkSize int, logFn func(string, ...any)) Report {
	start := time.Now()
	report := Report{
		Requested: len(locators),
		Results:   make([]Result, 0, len(locators)),
	}

	for offset := 0; offset < len(locators); offset += chunkSize {
		if ctx.Err() != nil {
			report.Skipped = len(locators) - offset
			break
		}

		end := offset + chunkSize
		if end > len(locators) {
			end = len(locators)
		}
		chunk := locators[offset:end]

		results := make([]Result, len(chunk))
		var wg sync.WaitGroup
		for i, locator := range chunk {
			wg.Add(1)
			go func(i int, locator string) {
				defer wg.Done()
				results[i] = p.warmOne(ctx, locator)
			}(i, locator)
		}
		wg.Wait()

		report.Results = append(report.Results, results...)
	}

	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			report.Failed++
		case res.State == assetcache.StateLoaded:
			report.Loaded++
		default:
			report.Failed++
		}
	}

	report.Elapsed = time.Since(start)
	logFn("warm-up run finished",
		logger.Count(report.Requested),
		slog.Int("loaded", report.Loaded),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		logger.DurationMs(float64(report.Elapsed.Microseconds())/1000.0))
	return report
}

// warmOne requests a single locator and waits for it to settle.
func (p *Preloader) warmOne(ctx context.Context, locator string) Result {
	snap, sub, err := p.cache.Request(ctx, locator)
	if err != nil {
		return Result{Locator: locator, Err: err}
	}
	if snap.State != assetcache.StateLoading {
		return Result{Locator: locator, State: snap.State, Failure: snap.Failure}
	}

	final, err := sub.Wait(ctx)
	if err != nil {
		// Interrupted wait, not a settled failure. The fetch itself keeps
		// running in the cache.
		return Result{Locator: locator, State: assetcache.StateLoading, Err: err}
	}
	return Result{Locator: locator, State: final.State, Failure: final.Failure}
}
