package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

func newTestStore() *Store {
	return NewStore(NewMemoryBackend(), nil)
}

// TestStore_IncrementAtomicity verifies that N concurrent increments on the
// same key never lose an update.
func TestStore_IncrementAtomicity(t *testing.T) {
	for _, n := range []int{1, 10, 100} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			store := newTestStore()
			defer store.Close()

			ctx := context.Background()
			now := time.Date(2025, 6, 24, 14, 30, 0, 0, time.UTC)

			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := store.Increment(ctx, "203.0.113.5", window.KindHourly, "chat", now); err != nil {
						t.Errorf("Increment failed: %v", err)
					}
				}()
			}
			wg.Wait()

			rec, err := store.Read(ctx, "203.0.113.5", window.KindHourly, "chat", now)
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if rec.Count != uint64(n) {
				t.Errorf("Expected count %d, got %d", n, rec.Count)
			}
		})
	}
}

// TestStore_WindowRollover verifies that increments straddling a window
// boundary land in distinct records.
func TestStore_WindowRollover(t *testing.T) {
	store := newTestStore()
	defer store.Close()

	ctx := context.Background()
	boundary := time.Date(2025, 6, 24, 15, 0, 0, 0, time.UTC)

	before, err := store.Increment(ctx, "203.0.113.5", window.KindHourly, "chat", boundary.Add(-time.Millisecond))
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	after, err := store.Increment(ctx, "203.0.113.5", window.KindHourly, "chat", boundary.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	if before.WindowID == after.WindowID {
		t.Fatalf("Expected distinct windows, both landed in %q", before.WindowID)
	}
	if before.Count != 1 || after.Count != 1 {
		t.Errorf("Expected counts 1 and 1, got %d and %d", before.Count, after.Count)
	}
}

// TestStore_LegacyMigration verifies that a bare-integer value is treated as
// a count and upgraded to a structured record on the next increment.
func TestStore_LegacyMigration(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend, nil)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 24, 14, 30, 0, 0, time.UTC)

	id, _, err := window.KeyFor(window.KindDaily, now)
	if err != nil {
		t.Fatalf("KeyFor failed: %v", err)
	}
	key := Key{Identity: "198.51.100.7", Kind: window.KindDaily, Consumer: "chat", WindowID: id}

	// Seed a legacy bare-integer value.
	if err := backend.Update(ctx, key.String(), func([]byte, bool) ([]byte, error) {
		return []byte("41"), nil
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	rec, err := store.Read(ctx, "198.51.100.7", window.KindDaily, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 41 {
		t.Errorf("Expected legacy count 41 on read, got %d", rec.Count)
	}

	rec, err = store.Increment(ctx, "198.51.100.7", window.KindDaily, "chat", now)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if rec.Count != 42 {
		t.Errorf("Expected migrated count 42, got %d", rec.Count)
	}
	if rec.WindowID != id {
		t.Errorf("Expected window id %q, got %q", id, rec.WindowID)
	}

	// The stored value must now be a structured record.
	raw, found, err := backend.Get(ctx, key.String())
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
	stored, err := DecodeValue(raw)
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if stored.Legacy {
		t.Error("Expected structured record after migration, still legacy")
	}
}

// TestStore_ReadMissing verifies the zero-record shape for unknown keys.
func TestStore_ReadMissing(t *testing.T) {
	store := newTestStore()
	defer store.Close()

	now := time.Date(2025, 6, 24, 14, 30, 0, 0, time.UTC)
	rec, err := store.Read(context.Background(), "192.0.2.1", window.KindMonthly, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 0 {
		t.Errorf("Expected count 0, got %d", rec.Count)
	}
	if rec.WindowID != "2025-06" {
		t.Errorf("Expected window id 2025-06, got %q", rec.WindowID)
	}
	if !rec.ExpiresAt.Equal(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected expiry %v", rec.ExpiresAt)
	}
}

func TestStore_InvalidKind(t *testing.T) {
	store := newTestStore()
	defer store.Close()

	_, err := store.Increment(context.Background(), "192.0.2.1", window.Kind("bogus"), "chat", time.Now())
	if !errors.Is(err, window.ErrInvalidKind) {
		t.Errorf("Expected ErrInvalidKind, got %v", err)
	}
}

// TestStore_SweepExpired covers expired structured records, legacy aging by
// window id, and the legacy-weekly unknown-age skip.
func TestStore_SweepExpired(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend, nil)
	defer store.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)

	// Live record: incremented just now, must survive.
	if _, err := store.Increment(ctx, "a", window.KindHourly, "chat", now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	// Expired record from two days ago.
	if _, err := store.Increment(ctx, "b", window.KindHourly, "chat", now.AddDate(0, 0, -2)); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	seedLegacy := func(identity string, kind window.Kind, windowID string) {
		key := Key{Identity: identity, Kind: kind, Consumer: "chat", WindowID: windowID}
		if err := backend.Update(ctx, key.String(), func([]byte, bool) ([]byte, error) {
			return []byte("7"), nil
		}); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	// Legacy daily entry from last year: age parseable, expired.
	seedLegacy("c", window.KindDaily, "2024-06-24")
	// Legacy weekly entry: age unknown, must be skipped.
	seedLegacy("d", window.KindWeekly, "2024-W26")

	result, err := store.SweepExpired(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}

	if result.Deleted != 2 {
		t.Errorf("Expected 2 deletions, got %d", result.Deleted)
	}
	if result.UnknownAge != 1 {
		t.Errorf("Expected 1 unknown-age entry, got %d", result.UnknownAge)
	}
	if result.Errors != 0 {
		t.Errorf("Expected 0 errors, got %d", result.Errors)
	}

	// Live record still readable with its count intact.
	rec, err := store.Read(ctx, "a", window.KindHourly, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("Expected surviving count 1, got %d", rec.Count)
	}

	// The legacy weekly entry survives the sweep.
	weekKey := Key{Identity: "d", Kind: window.KindWeekly, Consumer: "chat", WindowID: "2024-W26"}
	if _, found, _ := backend.Get(ctx, weekKey.String()); !found {
		t.Error("Expected legacy weekly entry to be skipped, it was deleted")
	}
}

// faultyBackend fails reads for configured keys so sweep error tolerance can
// be exercised.
type faultyBackend struct {
	*MemoryBackend
	failGet map[string]bool
}

func (f *faultyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet[key] {
		return nil, false, errors.New("simulated read failure")
	}
	return f.MemoryBackend.Get(ctx, key)
}

func TestStore_SweepToleratesPerKeyErrors(t *testing.T) {
	inner := NewMemoryBackend()
	backend := &faultyBackend{MemoryBackend: inner, failGet: make(map[string]bool)}
	store := NewStore(backend, nil)

	ctx := context.Background()
	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -2)

	// Two expired entries; reads for the first will fail.
	if _, err := store.Increment(ctx, "x", window.KindHourly, "chat", old); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if _, err := store.Increment(ctx, "y", window.KindHourly, "chat", old); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	id, _, _ := window.KeyFor(window.KindHourly, old)
	backend.failGet[Key{Identity: "x", Kind: window.KindHourly, Consumer: "chat", WindowID: id}.String()] = true

	result, err := store.SweepExpired(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired failed: %v", err)
	}
	if result.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", result.Errors)
	}
	if result.Deleted != 1 {
		t.Errorf("Expected sweep to continue past the failure and delete 1, got %d", result.Deleted)
	}
}
