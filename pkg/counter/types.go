package counter

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

// Record is the structured value stored for one live window of one
// (identity, kind, consumer). Count only ever increases within a window;
// a new window id starts a fresh record.
type Record struct {
	// Count is the number of committed requests in this window.
	Count uint64 `json:"count"`

	// Kind is the window cadence this record belongs to.
	Kind window.Kind `json:"window_kind"`

	// Consumer is the logical service or endpoint being limited.
	Consumer string `json:"consumer"`

	// WindowID is the canonical identifier of the window (see package window).
	WindowID string `json:"window_id"`

	// ExpiresAt is the window boundary. The record is logically dead after
	// this instant and eligible for deletion once retention lapses.
	ExpiresAt time.Time `json:"expires_at"`

	// LastIncrementAt is when the count last changed.
	LastIncrementAt time.Time `json:"last_increment_at"`
}

// Key addresses one window entry in backend storage.
type Key struct {
	Identity string
	Kind     window.Kind
	Consumer string
	WindowID string
}

// String renders the storage key. The separator is part of the persisted
// layout; identities and consumers must not contain '|'.
func (k Key) String() string {
	return strings.Join([]string{k.Identity, string(k.Kind), k.Consumer, k.WindowID}, "|")
}

// ParseKey parses a storage key back into its parts. Returns false for
// keys that do not match the four-segment layout.
func ParseKey(s string) (Key, bool) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Key{}, false
	}
	return Key{
		Identity: parts[0],
		Kind:     window.Kind(parts[1]),
		Consumer: parts[2],
		WindowID: parts[3],
	}, true
}

// StoredValue is the tagged union at the storage boundary. The previous
// generation of the store wrote bare integers; the current one writes JSON
// Records. Decoding happens exactly once, here, instead of type-sniffing at
// every read site.
type StoredValue struct {
	// Legacy is true when the raw value was a bare integer.
	Legacy bool

	// LegacyCount holds the count for legacy values.
	LegacyCount uint64

	// Record holds the decoded record for current-format values.
	Record Record
}

// Count returns the count regardless of representation.
func (v StoredValue) Count() uint64 {
	if v.Legacy {
		return v.LegacyCount
	}
	return v.Record.Count
}

// DecodeValue decodes a raw stored value into the tagged union.
func DecodeValue(raw []byte) (StoredValue, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return StoredValue{}, fmt.Errorf("empty stored value")
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return StoredValue{Legacy: true, LegacyCount: n}, nil
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StoredValue{}, fmt.Errorf("undecodable stored value: %w", err)
	}
	return StoredValue{Record: rec}, nil
}

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}
