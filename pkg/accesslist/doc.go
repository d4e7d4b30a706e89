// Package accesslist maintains the allow and deny lists consulted before
// any rate limit math runs.
//
// A deny match rejects outright and an allow match bypasses window limits
// entirely, so both lists sit at the very front of the decision order.
// Entries match identities exactly, or by prefix when the pattern ends in
// "*". Identities banned by the penalty ledger are promoted onto the deny
// list so the ban survives a penalty-store reset.
package accesslist
