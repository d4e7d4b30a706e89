// Package ratelimit coordinates window counting across the two counter
// tiers.
//
// # Tiering
//
// The coordinator tries the strongly consistent counter store first, with a
// short per-call timeout. On error or timeout it logs a warning and retries
// the same logical operation against the best-effort fallback tier. If both
// tiers fail it fails open: the request proceeds with the last known usage
// (from a small window-boundary-expiring cache) and nothing is incremented.
// Availability is prioritized over perfect accounting; Consume and Peek
// never return an error to the request path.
//
// # Consume vs Peek
//
// Peek reads usage without mutating it and is what admission decisions are
// computed from. Consume increments and is called at most once per logical
// request, only after the caller's own work succeeded, so failed downstream
// work never burns quota. Consume is deliberately not idempotent.
package ratelimit
