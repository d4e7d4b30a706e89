package fallback

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-process map and explicit expiry
// timestamps. Expired entries read as missing immediately; Purge reclaims
// the memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     uint64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory fallback store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Get returns the current count for key.
func (m *MemoryStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok || entry.expiresAt.Before(time.Now()) {
		return 0, false, nil
	}
	return entry.value, true, nil
}

// Set writes the count for key with the given time-to-live.
func (m *MemoryStore) Set(ctx context.Context, key string, value uint64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Purge removes expired entries.
func (m *MemoryStore) Purge(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for key, entry := range m.entries {
		if entry.expiresAt.Before(now) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged, nil
}

// Size returns the number of stored entries, including expired ones not yet
// purged. Useful for tests.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close releases store resources. No-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
