// Package fallback implements the best-effort counter tier.
//
// The fallback counter is consulted only when the strongly consistent
// counter store is unreachable. It performs an optimistic read-modify-write
// with bounded retries and exponential backoff; concurrent increments for
// the same key can lose updates, and that is accepted: when the primary
// tier is down the system degrades from linearizable counting to
// best-effort counting rather than refusing service.
//
// Entries carry a TTL equal to the remaining window length, so the store
// self-expires and a sweep is only needed for backends without native TTL
// support (the in-memory store).
package fallback
