package fetch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/assetcache/pkg/assetcache"
	"github.com/marmos91/assetcache/pkg/fetch"
)

// The scheduler satisfies the cache's fetcher contract directly. This test
// runs the two together: a load that blows the timeout budget settles the
// entry as a timeout error, and the loader finishing afterwards must not
// flip the entry back to loaded.
func TestCacheEntryTimesOutAndIgnoresLateSuccess(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	completed := make(chan struct{})
	sched := fetch.NewSchedulerWithOptions(
		fetch.LoaderFunc(func(context.Context, string) error {
			<-release
			close(completed)
			return nil
		}),
		fetch.Options{Timeout: 30 * time.Millisecond},
	)
	cache := assetcache.New(sched)

	_, sub, err := cache.Request(context.Background(), "asset/slow")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := sub.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, assetcache.StateError, snap.State)
	assert.Equal(t, assetcache.FailureTimeout, snap.Failure)
	assert.Equal(t, uint64(1), sched.Timeouts())

	close(release)
	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("loader never finished")
	}

	snap, ok := cache.Get("asset/slow")
	require.True(t, ok)
	assert.Equal(t, assetcache.StateError, snap.State)
	assert.Equal(t, assetcache.FailureTimeout, snap.Failure)
}
