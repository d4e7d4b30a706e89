package policy

import (
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

// Reason explains a decision. The values are part of the wire surface:
// they appear in logs, metrics labels and admin output.
type Reason string

const (
	// ReasonAllowed admits the request.
	ReasonAllowed Reason = "ALLOWED"

	// ReasonDenyListed rejects an identity on the deny list or carrying
	// a permanent ban.
	ReasonDenyListed Reason = "IP_BLACKLISTED"

	// ReasonGeoRestricted rejects an identity resolving to a restricted
	// country.
	ReasonGeoRestricted Reason = "GEO_RESTRICTED"

	// ReasonTemporarilyBlocked rejects an identity under an active
	// penalty block. The decision carries when the block expires.
	ReasonTemporarilyBlocked Reason = "TEMPORARILY_BLOCKED"

	// ReasonRateLimitExceeded rejects an identity whose usage reached a
	// window limit.
	ReasonRateLimitExceeded Reason = "RATE_LIMIT_EXCEEDED"
)

// Limits maps each window kind to its maximum count for a consumer. A
// missing kind or a zero value means unlimited.
type Limits map[window.Kind]uint64

// LimitProvider resolves the limits that apply to a consumer. The config
// layer implements it; tests use fixed maps.
type LimitProvider interface {
	LimitsFor(consumer string) Limits
}

// StaticLimits is a LimitProvider serving the same limits to every
// consumer.
type StaticLimits Limits

// LimitsFor returns the fixed limits.
func (s StaticLimits) LimitsFor(string) Limits {
	return Limits(s)
}

// Decision is the outcome of one Evaluate call.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Reason explains the outcome.
	Reason Reason

	// Usage is the observed count per tracked window kind. Empty when
	// the decision was made before counters were consulted.
	Usage map[window.Kind]uint64

	// Limits are the limits that applied.
	Limits Limits

	// ResetAt is the boundary of the current window per kind.
	ResetAt map[window.Kind]time.Time

	// BlockExpiresAt is set when the rejection came from a temporary
	// block. Zero for permanent bans and all other reasons.
	BlockExpiresAt time.Time

	// RetryAfter is how long the caller should wait before trying again.
	// Zero when retrying is pointless or the request was admitted.
	RetryAfter time.Duration
}
