// Package counter implements the strongly consistent window-counter store.
//
// # Overview
//
// The counter store tracks request counts per (identity, window kind,
// consumer, window id). All operations for a single identity serialize
// through that identity's actor, so concurrent increments for the same key
// never lose updates: for N concurrent increments the final count is
// exactly N. This is the load-bearing correctness property of the admission
// subsystem; everything above it (coordinator fallback, fail-open) degrades
// precision but never violates it on this path.
//
// # Storage layout
//
// One entry per (identity, kind, consumer, window id), keyed as
// "identity|kind|consumer|windowID". Values are JSON-encoded Records.
// Deployments upgraded from the previous generation may still hold bare
// integer values at the same keys; those are decoded through the
// StoredValue tagged union and migrated to structured Records on the first
// increment that touches them.
//
// # Backends
//
// Two Backend implementations are provided: an in-memory map (default, no
// persistence) and SQLite (single writer, WAL mode, one transaction per
// increment).
//
// The store performs no retries and absorbs no errors; failure handling is
// the coordinator's job.
package counter
