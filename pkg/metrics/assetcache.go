package metrics

import (
	"github.com/marmos91/assetcache/pkg/assetcache"
)

// NewAssetCacheMetrics creates a new Prometheus-backed assetcache.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers pass nil to the cache, which results in
// zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	cache := assetcache.NewWithOptions(fetcher, assetcache.Options{
//		Metrics: metrics.NewAssetCacheMetrics(),
//	})
//
//	// Without metrics (zero overhead)
//	cache := assetcache.New(fetcher)
func NewAssetCacheMetrics() assetcache.Metrics {
	if !IsEnabled() || newPrometheusAssetCacheMetrics == nil {
		return nil
	}

	// The prometheus subpackage provides the implementation. Going through
	// the registered constructor avoids an import cycle.
	return newPrometheusAssetCacheMetrics()
}

// newPrometheusAssetCacheMetrics is implemented in
// pkg/metrics/prometheus/assetcache.go.
var newPrometheusAssetCacheMetrics func() assetcache.Metrics

// RegisterAssetCacheMetricsConstructor registers the Prometheus constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterAssetCacheMetricsConstructor(constructor func() assetcache.Metrics) {
	newPrometheusAssetCacheMetrics = constructor
}
