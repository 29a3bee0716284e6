// Package assetref is the consumer-facing contract for resolving assets
// through the preloading cache.
//
// A Ref names an asset by its primary locator plus an optional fallback and
// size variants. The resolver turns a Ref into a settled cache entry:
// gated on visibility for ordinary assets, immediately for priority ones,
// hopping to the fallback when the primary fails. Consumers never talk to
// the cache's entry map directly; they hold Refs and receive Results.
package assetref

import (
	"errors"
	"fmt"

	"github.com/marmos91/assetcache/pkg/assetcache"
)

// ErrFallbackExhausted is returned when the primary and every fallback
// locator settled in error. The chain is exhausted; the consumer shows its
// placeholder.
var ErrFallbackExhausted = errors.New("all asset locators failed")

// ErrEmptyRef is returned when a Ref has no primary locator.
var ErrEmptyRef = errors.New("asset ref has no primary locator")

// Ref names one asset and its loading behavior.
type Ref struct {
	// Primary is the locator tried first. Required.
	Primary string

	// Fallback is tried when Primary settles in error. Optional. A
	// fallback equal to Primary is ignored; the hop exists to try a
	// different locator, not to retry the same one.
	Fallback string

	// SizeVariants are additional locators for the same asset at other
	// sizes, warmed speculatively after Primary loads.
	SizeVariants []string

	// Target identifies the element whose visibility gates this load.
	// Empty means no gating.
	Target string

	// Priority marks above-the-fold assets that load immediately,
	// bypassing the visibility gate.
	Priority bool
}

// Validate reports whether the ref is usable.
func (r Ref) Validate() error {
	if r.Primary == "" {
		return ErrEmptyRef
	}
	return nil
}

// chain returns the locators to try, in order, without duplicates.
func (r Ref) chain() []string {
	if r.Fallback == "" || r.Fallback == r.Primary {
		return []string{r.Primary}
	}
	return []string{r.Primary, r.Fallback}
}

// Result is a successfully resolved ref.
type Result struct {
	// Locator is the locator that actually loaded; the fallback when the
	// primary failed.
	Locator string

	// Snapshot is the settled cache entry, always StateLoaded.
	Snapshot assetcache.Snapshot

	// UsedFallback reports whether the fallback hop happened.
	UsedFallback bool
}

// ExhaustedError wraps ErrFallbackExhausted with the per-locator outcomes.
type ExhaustedError struct {
	// Attempts lists the settled error snapshots in attempt order.
	Attempts []assetcache.Snapshot
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrFallbackExhausted.Error()
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("%s: %d attempted, last %s (%s)",
		ErrFallbackExhausted, len(e.Attempts), last.Locator, last.Failure)
}

// Unwrap matches errors.Is(err, ErrFallbackExhausted).
func (e *ExhaustedError) Unwrap() error {
	return ErrFallbackExhausted
}
