package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetcher lets tests hold fetches open and release them on demand.
type blockingFetcher struct {
	mu    sync.Mutex
	gates map[string]chan error
	calls atomic.Int64
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{gates: make(map[string]chan error)}
}

func (f *blockingFetcher) Load(_ context.Context, locator string) error {
	f.calls.Add(1)
	f.mu.Lock()
	gate, ok := f.gates[locator]
	if !ok {
		gate = make(chan error, 1)
		f.gates[locator] = gate
	}
	f.mu.Unlock()
	return <-gate
}

func (f *blockingFetcher) release(locator string, err error) {
	f.mu.Lock()
	gate, ok := f.gates[locator]
	if !ok {
		gate = make(chan error, 1)
		f.gates[locator] = gate
	}
	f.mu.Unlock()
	gate <- err
}

func waitLoaded(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := sub.Wait(ctx)
	require.NoError(t, err)
	return snap
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "deadline exceeded" }
func (timeoutErr) Timeout() bool { return true }

func TestRequestMissThenLoaded(t *testing.T) {
	t.Parallel()

	cache := New(FetcherFunc(func(context.Context, string) error { return nil }))

	snap, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	assert.Equal(t, StateLoading, snap.State)

	final := waitLoaded(t, sub)
	assert.Equal(t, StateLoaded, final.State)
	assert.Equal(t, FailureNone, final.Failure)
	assert.Equal(t, "asset/a", final.Locator)
}

func TestRequestCoalescesInFlight(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub1, err := cache.Request(context.Background(), "asset/shared")
	require.NoError(t, err)

	// Second request while the first is still loading must join it.
	snap2, sub2, err := cache.Request(context.Background(), "asset/shared")
	require.NoError(t, err)
	assert.Equal(t, StateLoading, snap2.State)

	fetcher.release("asset/shared", nil)

	assert.Equal(t, StateLoaded, waitLoaded(t, sub1).State)
	assert.Equal(t, StateLoaded, waitLoaded(t, sub2).State)
	assert.Equal(t, int64(1), fetcher.calls.Load())

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Coalesced)
}

func TestRequestHitAfterLoad(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	fetcher.release("asset/a", nil)
	waitLoaded(t, sub)

	snap, sub2, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, snap.State)

	// Hit subscriptions resolve immediately.
	final := waitLoaded(t, sub2)
	assert.Equal(t, StateLoaded, final.State)
	assert.Equal(t, int64(1), fetcher.calls.Load())
	assert.Equal(t, uint64(1), cache.Stats().Hits)
}

func TestErrorIsCached(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/bad")
	require.NoError(t, err)
	fetcher.release("asset/bad", errors.New("connection refused"))

	final := waitLoaded(t, sub)
	assert.Equal(t, StateError, final.State)
	assert.Equal(t, FailureNetwork, final.Failure)

	// Re-requesting a failed locator returns the cached error, no refetch.
	snap, _, err := cache.Request(context.Background(), "asset/bad")
	require.NoError(t, err)
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestTimeoutClassification(t *testing.T) {
	t.Parallel()

	cache := New(FetcherFunc(func(context.Context, string) error {
		return fmt.Errorf("fetch asset/slow: %w", timeoutErr{})
	}))

	_, sub, err := cache.Request(context.Background(), "asset/slow")
	require.NoError(t, err)

	final := waitLoaded(t, sub)
	assert.Equal(t, StateError, final.State)
	assert.Equal(t, FailureTimeout, final.Failure)
}

func TestRetryStartsFreshCycle(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	cache := New(FetcherFunc(func(context.Context, string) error {
		if fail.Load() {
			return errors.New("boom")
		}
		return nil
	}))

	_, sub, err := cache.Request(context.Background(), "asset/flaky")
	require.NoError(t, err)
	require.Equal(t, StateError, waitLoaded(t, sub).State)

	fail.Store(false)

	_, sub, err = cache.Retry(context.Background(), "asset/flaky")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, waitLoaded(t, sub).State)
}

func TestRetryKeepsLoadedEntry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	cache := New(FetcherFunc(func(context.Context, string) error {
		calls.Add(1)
		return nil
	}))

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	waitLoaded(t, sub)

	snap, _, err := cache.Retry(context.Background(), "asset/a")
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, snap.State)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGetNonBlocking(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, ok := cache.Get("asset/absent")
	assert.False(t, ok)

	_, _, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	snap, ok := cache.Get("asset/a")
	require.True(t, ok)
	assert.Equal(t, StateLoading, snap.State)

	fetcher.release("asset/a", nil)
}

func TestConcurrentRequestsSingleFetch(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	const workers = 32
	subs := make([]*Subscription, workers)

	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, sub, err := cache.Request(context.Background(), "asset/hot")
			require.NoError(t, err)
			subs[i] = sub
		}(i)
	}
	wg.Wait()

	fetcher.release("asset/hot", nil)
	for _, sub := range subs {
		assert.Equal(t, StateLoaded, waitLoaded(t, sub).State)
	}
	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestResetClearsEntries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	cache := New(FetcherFunc(func(context.Context, string) error {
		calls.Add(1)
		return nil
	}))

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	waitLoaded(t, sub)

	cache.Reset()

	stats := cache.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, uint64(0), stats.Misses)

	_, sub, err = cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	waitLoaded(t, sub)
	assert.Equal(t, int64(2), calls.Load())
}

func TestResetDiscardsLateSettlement(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	cache.Reset()
	fetcher.release("asset/a", nil)

	// The original subscriber still sees its cycle settle.
	assert.Equal(t, StateLoaded, waitLoaded(t, sub).State)

	// But the cache no longer tracks the stale cycle's result.
	_, ok := cache.Get("asset/a")
	assert.False(t, ok)
}

func TestCloseRejectsOperations(t *testing.T) {
	t.Parallel()

	cache := New(FetcherFunc(func(context.Context, string) error { return nil }))
	require.NoError(t, cache.Close())
	require.NoError(t, cache.Close())

	_, _, err := cache.Request(context.Background(), "asset/a")
	assert.ErrorIs(t, err, ErrCacheClosed)

	_, ok := cache.Get("asset/a")
	assert.False(t, ok)
}

func TestRequestCancelledContext(t *testing.T) {
	t.Parallel()

	cache := New(FetcherFunc(func(context.Context, string) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := cache.Request(ctx, "asset/a")
	assert.ErrorIs(t, err, context.Canceled)
}
