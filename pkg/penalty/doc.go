// Package penalty tracks violations and escalating blocks per identity.
//
// # State machine
//
// Identities move strictly forward through
//
//	Clean → Warned (soft) → TemporarilyBlocked (hard) → PermanentlyBanned (ban)
//
// as their violation count crosses the configured thresholds. Warned is
// informational only. Temporary blocks carry an expiry that scales with the
// violation count; a block whose expiry has passed is equivalent to no
// block, but the violation count is remembered, so the next violation
// blocks again immediately. Banned is terminal: nothing short of an
// explicit administrative reset relaxes it.
//
// Violation state is shared mutable data touched by every evaluation that
// denies, so writes go through the same atomic read-modify-write
// discipline as the window counters.
package penalty
