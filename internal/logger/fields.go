package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so cache activity can be aggregated and queried.
const (
	KeyLocator    = "locator"     // resolved asset locator
	KeyState      = "state"       // entry state: loading, loaded, error
	KeyReason     = "reason"      // failure reason: network, timeout
	KeyCount      = "count"       // generic item count
	KeyEvicted    = "evicted"     // entries removed by a sweep
	KeyKept       = "kept"        // entries retained by a sweep
	KeyChunk      = "chunk"       // batch chunk index
	KeyBatchSize  = "batch_size"  // locators in a preload batch
	KeyConcurrent = "concurrency" // preload concurrency cap
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyCacheSize  = "cache_size"  // current number of cache entries
	KeyPriority   = "priority"    // priority asset indicator
	KeyFallback   = "fallback"    // fallback locator
	KeyListen     = "listen"      // diagnostics listen address
)

// Locator returns a slog.Attr for a resolved asset locator.
func Locator(l string) slog.Attr {
	return slog.String(KeyLocator, l)
}

// State returns a slog.Attr for an entry state.
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Reason returns a slog.Attr for a failure reason.
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// Count returns a slog.Attr for a generic count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Evicted returns a slog.Attr for the number of evicted entries.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Kept returns a slog.Attr for the number of retained entries.
func Kept(n int) slog.Attr {
	return slog.Int(KeyKept, n)
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// CacheSize returns a slog.Attr for the current cache size.
func CacheSize(n int) slog.Attr {
	return slog.Int(KeyCacheSize, n)
}

// Fallback returns a slog.Attr for a fallback locator.
func Fallback(l string) slog.Attr {
	return slog.String(KeyFallback, l)
}

// Listen returns a slog.Attr for a diagnostics listen address.
func Listen(addr string) slog.Attr {
	return slog.String(KeyListen, addr)
}
