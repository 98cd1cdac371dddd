package fetch

import "errors"

// Taxonomy for the cache-aside fetch path. Callers branch with errors.Is;
// wrapping keeps the underlying cause in the chain.
var (
	// ErrCacheUnavailable marks a store read/write failure. It is always
	// propagated, never traded for a fallback.
	ErrCacheUnavailable = errors.New("cache store unavailable")

	// ErrFetchTimeout marks a remote fetch that exceeded its deadline.
	ErrFetchTimeout = errors.New("remote fetch timed out")

	// ErrFetchFailed marks any non-timeout remote failure: non-2xx status,
	// malformed payload, or connection error.
	ErrFetchFailed = errors.New("remote fetch failed")

	// ErrNoFallbackAvailable is terminal for a key: the fetch failed and
	// either stale fallback is disabled or nothing cached remains.
	ErrNoFallbackAvailable = errors.New("no cached fallback available")
)
