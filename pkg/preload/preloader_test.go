package preload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/assetcache/internal/logger"
	"github.com/marmos91/assetcache/pkg/assetcache"
)

// trackingFetcher records the peak number of concurrently running loads.
type trackingFetcher struct {
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
	delay    time.Duration
	failOn   func(locator string) bool
}

func (f *trackingFetcher) Load(_ context.Context, locator string) error {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		prev := f.peak.Load()
		if cur <= prev || f.peak.CompareAndSwap(prev, cur) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failOn != nil && f.failOn(locator) {
		return errors.New("load failed")
	}
	return nil
}

func locatorList(n int) []string {
	list := make([]string, n)
	for i := range list {
		list[i] = fmt.Sprintf("asset/%03d", i)
	}
	return list
}

func TestRunWarmsAll(t *testing.T) {
	t.Parallel()

	fetcher := &trackingFetcher{}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	report := pre.Run(context.Background(), locatorList(10))
	assert.Equal(t, 10, report.Requested)
	assert.Equal(t, 10, report.Loaded)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, report.Skipped)
	assert.Len(t, report.Results, 10)
	assert.Equal(t, int64(10), fetcher.calls.Load())
}

func TestRunRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	fetcher := &trackingFetcher{delay: 20 * time.Millisecond}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	pre.Run(context.Background(), locatorList(12))
	assert.LessOrEqual(t, fetcher.peak.Load(), int64(DefaultConcurrency))
}

func TestNearbyUsesReducedCap(t *testing.T) {
	t.Parallel()

	fetcher := &trackingFetcher{delay: 20 * time.Millisecond}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	report := pre.Nearby(context.Background(), locatorList(8))
	assert.Equal(t, 8, report.Loaded)
	assert.LessOrEqual(t, fetcher.peak.Load(), int64(NearbyConcurrency))
}

func TestRunBestEffortOnFailures(t *testing.T) {
	t.Parallel()

	fetcher := &trackingFetcher{failOn: func(locator string) bool {
		return locator == "asset/002" || locator == "asset/005"
	}}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	report := pre.Run(context.Background(), locatorList(8))
	assert.Equal(t, 6, report.Loaded)
	assert.Equal(t, 2, report.Failed)

	// Failures are cached entries, not aborted runs.
	snap, ok := cache.Get("asset/002")
	require.True(t, ok)
	assert.Equal(t, assetcache.StateError, snap.State)
	snap, ok = cache.Get("asset/007")
	require.True(t, ok)
	assert.Equal(t, assetcache.StateLoaded, snap.State)
}

func TestRunSkipsRemainingAfterCancel(t *testing.T) {
	t.Parallel()

	fetcher := &trackingFetcher{delay: 30 * time.Millisecond}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	report := pre.Run(ctx, locatorList(30))
	assert.Positive(t, report.Skipped)
	assert.Less(t, len(report.Results), 30)
	assert.Equal(t, 30, report.Requested)
}

func TestRunEmptyList(t *testing.T) {
	t.Parallel()

	cache := assetcache.New(&trackingFetcher{})
	report := New(cache).Run(context.Background(), nil)
	assert.Equal(t, 0, report.Requested)
	assert.Empty(t, report.Results)
}

func TestRunAlreadyWarmEntriesHit(t *testing.T) {
	t.Parallel()

	fetcher := &trackingFetcher{}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	pre.Run(context.Background(), locatorList(5))
	report := pre.Run(context.Background(), locatorList(5))

	assert.Equal(t, 5, report.Loaded)
	assert.Equal(t, int64(5), fetcher.calls.Load())
}

func TestNearbySummaryLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "INFO", "text")
	defer logger.InitWithWriter(io.Discard, "INFO", "text")

	fetcher := &trackingFetcher{}
	cache := assetcache.New(fetcher)
	pre := New(cache)

	pre.Nearby(context.Background(), locatorList(2))
	assert.NotContains(t, buf.String(), "warm-up run finished")

	pre.Run(context.Background(), locatorList(2))
	assert.Contains(t, buf.String(), "warm-up run finished")

	buf.Reset()
	logger.SetLevel("DEBUG")
	pre.Nearby(context.Background(), locatorList(2))
	assert.Contains(t, buf.String(), "warm-up run finished")
}

func TestNewWithConcurrencyFloor(t *testing.T) {
	t.Parallel()

	cache := assetcache.New(&trackingFetcher{})
	pre := NewWithConcurrency(cache, 0)
	assert.Equal(t, DefaultConcurrency, pre.concurrency)
}
