package ratelimit

import "errors"

// Error taxonomy for the counter tiers. The coordinator absorbs tier
// failures instead of returning them, but it wraps them in these
// sentinels before logging, so log consumers and tests can classify the
// failure mode with errors.Is.
var (
	// ErrStorageUnavailable marks a primary-tier failure that triggered
	// the fallback tier.
	ErrStorageUnavailable = errors.New("primary counter storage unavailable")

	// ErrStorageDegraded marks a failure of both tiers that triggered
	// fail-open.
	ErrStorageDegraded = errors.New("all counter storage tiers degraded")
)
