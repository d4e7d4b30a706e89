package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

func TestCounter_IncrementAndRead(t *testing.T) {
	c := New(NewMemoryStore(), Config{}, nil)
	defer c.Close()

	ctx := context.Background()
	now := time.Date(2025, 6, 24, 14, 30, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		rec, err := c.Increment(ctx, "203.0.113.5", window.KindHourly, "chat", now)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if rec.Count != uint64(i) {
			t.Errorf("Expected count %d, got %d", i, rec.Count)
		}
	}

	rec, err := c.Read(ctx, "203.0.113.5", window.KindHourly, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 3 {
		t.Errorf("Expected count 3, got %d", rec.Count)
	}
	if rec.WindowID != "2025-06-24-14" {
		t.Errorf("Unexpected window id %q", rec.WindowID)
	}
}

func TestCounter_ReadMissing(t *testing.T) {
	c := New(NewMemoryStore(), Config{}, nil)
	defer c.Close()

	rec, err := c.Read(context.Background(), "192.0.2.1", window.KindDaily, "chat", time.Now())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 0 {
		t.Errorf("Expected count 0, got %d", rec.Count)
	}
}

// flakyStore fails the first N Set calls, then recovers.
type flakyStore struct {
	*MemoryStore
	failures int
}

func (f *flakyStore) Set(ctx context.Context, key string, value uint64, ttl time.Duration) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("simulated write failure")
	}
	return f.MemoryStore.Set(ctx, key, value, ttl)
}

func TestCounter_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	c := New(store, Config{MaxRetries: 3, BackoffBase: time.Millisecond}, nil)

	rec, err := c.Increment(context.Background(), "a", window.KindHourly, "chat", time.Now())
	if err != nil {
		t.Fatalf("Expected retries to succeed, got %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("Expected count 1, got %d", rec.Count)
	}
}

func TestCounter_ExhaustsRetries(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}
	c := New(store, Config{MaxRetries: 2, BackoffBase: time.Millisecond}, nil)

	_, err := c.Increment(context.Background(), "a", window.KindHourly, "chat", time.Now())
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
}

func TestCounter_RespectsContextDuringBackoff(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}
	c := New(store, Config{MaxRetries: 5, BackoffBase: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Increment(ctx, "a", window.KindHourly, "chat", time.Now())
	if err == nil {
		t.Fatal("Expected error")
	}
	if time.Since(start) > time.Second {
		t.Error("Expected cancellation to cut the backoff short")
	}
}

func TestMemoryStore_ExpiryAndPurge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", 5, -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Expired entries read as missing.
	_, found, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("Expected expired entry to read as missing")
	}

	purged, err := store.Purge(ctx, time.Now())
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged entry, got %d", purged)
	}
	if store.Size() != 0 {
		t.Errorf("Expected empty store, got %d entries", store.Size())
	}
}
