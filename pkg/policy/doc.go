// Package policy is the admission decision engine. It composes the access
// lists, the geo resolver, the penalty ledger and the window counters into
// one Evaluate call per request.
//
// # Decision order
//
// Evaluate walks a fixed ladder and stops at the first step that decides:
//
//  1. deny list match            → rejected
//  2. geo restriction            → rejected
//  3. allow list match           → admitted, limits bypassed
//  4. permanent ban              → rejected
//  5. active temporary block     → rejected
//  6. usage at or over any limit → violation recorded, rejected
//  7. otherwise                  → admitted
//
// Evaluate never increments counters. Callers admit the request, do its
// work, and call Commit to consume quota, so failed requests cost nothing.
//
// Storage trouble never rejects: counter reads degrade through the
// fallback tier and fail open, and an unreadable penalty or list store is
// logged and treated as empty for the request at hand.
package policy
