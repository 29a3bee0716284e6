package assetcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionCancel(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	sub.Cancel()
	assert.True(t, sub.Cancelled())

	_, err = sub.Wait(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionCancelled)

	// Cancel is per-subscriber: the shared fetch still settles.
	_, sub2, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)
	fetcher.release("asset/a", nil)
	assert.Equal(t, StateLoaded, waitLoaded(t, sub2).State)
}

func TestSubscriptionCancelIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	sub.Cancel()
	sub.Cancel()
	assert.True(t, sub.Cancelled())

	fetcher.release("asset/a", nil)
}

func TestSubscriptionCancelDuringWait(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Wait(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSubscriptionCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Cancel")
	}

	fetcher.release("asset/a", nil)
}

func TestSubscriptionWaitContextExpiry(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	fetcher.release("asset/a", nil)
}

func TestSubscriptionSnapshotProgression(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	assert.Equal(t, StateLoading, sub.Snapshot().State)

	fetcher.release("asset/a", nil)
	waitLoaded(t, sub)
	assert.Equal(t, StateLoaded, sub.Snapshot().State)
}

func TestSubscriptionDoneChannel(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher()
	cache := New(fetcher)

	_, sub, err := cache.Request(context.Background(), "asset/a")
	require.NoError(t, err)

	select {
	case <-sub.Done():
		t.Fatal("Done closed before settlement")
	default:
	}

	fetcher.release("asset/a", nil)

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done not closed after settlement")
	}
	assert.Equal(t, StateLoaded, sub.Snapshot().State)
}
