package assetcache

import "time"

// Metrics is the interface for recording cache telemetry.
//
// Implementations must be safe for concurrent use. The cache treats a nil
// Metrics as a no-op, so callers that do not care about observability pass
// nothing.
type Metrics interface {
	// RecordRequest records one Request call with its resolution:
	// "hit", "miss" or "coalesced".
	RecordRequest(result string)

	// ObserveFetch records a completed fetch cycle with its outcome
	// ("loaded", "network" or "timeout") and duration.
	ObserveFetch(outcome string, elapsed time.Duration)

	// RecordEviction records n entries removed by one eviction pass.
	RecordEviction(n int)

	// RecordSize records the current entry count.
	RecordSize(n int)
}
