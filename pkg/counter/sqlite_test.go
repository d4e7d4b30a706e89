package counter

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

func newTestSQLiteBackend(t *testing.T) (*SQLiteBackend, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "counters.db")
	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	return backend, func() { backend.Close() }
}

func TestSQLiteBackend_GetUpdateDelete(t *testing.T) {
	backend, cleanup := newTestSQLiteBackend(t)
	defer cleanup()

	ctx := context.Background()

	// Missing key.
	_, found, err := backend.Get(ctx, "a|hourly|chat|2025-06-24-14")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected missing key, got found")
	}

	// Insert through Update.
	err = backend.Update(ctx, "a|hourly|chat|2025-06-24-14", func(old []byte, found bool) ([]byte, error) {
		if found {
			t.Errorf("Expected no prior value, got %q", old)
		}
		return []byte(`{"count":1}`), nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// Read back and update again.
	err = backend.Update(ctx, "a|hourly|chat|2025-06-24-14", func(old []byte, found bool) ([]byte, error) {
		if !found {
			t.Error("Expected prior value")
		}
		return []byte(`{"count":2}`), nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	raw, found, err := backend.Get(ctx, "a|hourly|chat|2025-06-24-14")
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
	if string(raw) != `{"count":2}` {
		t.Errorf("Unexpected stored value %q", raw)
	}

	keys, err := backend.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("Expected 1 key, got %d", len(keys))
	}

	if err := backend.Delete(ctx, "a|hourly|chat|2025-06-24-14"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, found, _ = backend.Get(ctx, "a|hourly|chat|2025-06-24-14")
	if found {
		t.Error("Expected key deleted")
	}
}

func TestSQLiteBackend_UpdateAborts(t *testing.T) {
	backend, cleanup := newTestSQLiteBackend(t)
	defer cleanup()

	ctx := context.Background()

	wantErr := fmt.Errorf("refused")
	err := backend.Update(ctx, "k", func([]byte, bool) ([]byte, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("Expected callback error to propagate, got %v", err)
	}

	_, found, _ := backend.Get(ctx, "k")
	if found {
		t.Error("Expected aborted update to leave no value")
	}
}

// TestSQLiteStore_ConcurrentIncrements runs the atomicity property against
// the durable backend.
func TestSQLiteStore_ConcurrentIncrements(t *testing.T) {
	backend, cleanup := newTestSQLiteBackend(t)
	defer cleanup()

	store := NewStore(backend, nil)
	ctx := context.Background()
	now := time.Date(2025, 6, 24, 14, 30, 0, 0, time.UTC)

	const n = 50
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
	if rec.Count != n {
		t.Errorf("Expected count %d, got %d", n, rec.Count)
	}
}

func TestSQLiteBackend_SurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counters.db")

	backend, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}

	ctx := context.Background()
	store := NewStore(backend, nil)
	now := time.Date(2025, 6, 24, 14, 30, 0, 0, time.UTC)

	if _, err := store.Increment(ctx, "a", window.KindDaily, "chat", now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen backend: %v", err)
	}
	defer reopened.Close()

	rec, err := NewStore(reopened, nil).Read(ctx, "a", window.KindDaily, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("Expected persisted count 1, got %d", rec.Count)
	}
}
