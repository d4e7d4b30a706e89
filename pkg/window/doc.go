// Package window maps instants to canonical rate-limit window identifiers.
//
// A window identifier names a fixed UTC time window (hourly, daily, weekly,
// or monthly) and is stable for every instant falling inside that window.
// Identifiers are embedded in storage keys and records, so their format is
// part of the persisted layout and must not change between releases.
//
// All computation is UTC-based. Weekly windows use ISO-8601 week numbering
// (the week containing a Thursday belongs to that Thursday's year; Monday is
// the first day of the week), which matters at year boundaries where Jan 1
// can belong to the final week of the previous year.
package window
