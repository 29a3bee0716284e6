// Package prometheus provides the Prometheus implementations behind the
// pkg/metrics constructors. Importing it (usually blank) wires the
// implementations into the parent package.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/assetcache/pkg/assetcache"
	"github.com/marmos91/assetcache/pkg/metrics"
)

func init() {
	metrics.RegisterAssetCacheMetricsConstructor(NewAssetCacheMetrics)
}

// assetCacheMetrics is the Prometheus implementation of assetcache.Metrics.
type assetCacheMetrics struct {
	requests      *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	evictions     prometheus.Counter
	entries       prometheus.Gauge
}

// NewAssetCacheMetrics creates a new Prometheus-backed assetcache.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewAssetCacheMetrics() assetcache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &assetCacheMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetcache_requests_total",
				Help: "Total cache requests by resolution",
			},
			[]string{"result"}, // "hit", "miss", "coalesced"
		),
		fetchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "assetcache_fetch_duration_milliseconds",
				Help: "Duration of fetch cycles in milliseconds by outcome",
				Buckets: []float64{
					10,    // 10ms - local or warmed CDN edge
					50,    // 50ms
					100,   // 100ms
					250,   // 250ms
					500,   // 500ms
					1000,  // 1s
					2500,  // 2.5s
					5000,  // 5s
					10000, // 10s - the default budget
				},
			},
			[]string{"outcome"}, // "loaded", "network", "timeout"
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "assetcache_evictions_total",
				Help: "Total entries removed by eviction sweeps",
			},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "assetcache_entries",
				Help: "Current number of cache entries",
			},
		),
	}
}

func (m *assetCacheMetrics) RecordRequest(result string) {
	m.requests.WithLabelValues(result).Inc()
}

func (m *assetCacheMetrics) ObserveFetch(outcome string, elapsed time.Duration) {
	m.fetchDuration.WithLabelValues(outcome).Observe(float64(elapsed.Microseconds()) / 1000.0)
}

func (m *assetCacheMetrics) RecordEviction(n int) {
	m.evictions.Add(float64(n))
}

func (m *assetCacheMetrics) RecordSize(n int) {
	m.entries.Set(float64(n))
}
