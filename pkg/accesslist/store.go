package accesslist

import (
	"context"
	"sync"
)

// Store persists access list entries. Add with an already-listed pattern
// replaces the existing entry for that (list, pattern) pair.
type Store interface {
	Add(ctx context.Context, entry Entry) error
	Remove(ctx context.Context, list Type, pattern string) (bool, error)
	Entries(ctx context.Context, list Type) ([]Entry, error)
	Close() error
}

// MemoryStore implements Store with an in-memory map.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Type]map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: map[Type]map[string]Entry{
			TypeAllow: {},
			TypeDeny:  {},
		},
	}
}

// Add stores an entry, replacing any existing entry with the same pattern.
func (m *MemoryStore) Add(ctx context.Context, entry Entry) error {
	if !entry.List.Valid() {
		return ErrInvalidType
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.List][entry.Pattern] = entry
	return nil
}

// Remove deletes the entry with the given pattern, reporting whether one
// existed.
func (m *MemoryStore) Remove(ctx context.Context, list Type, pattern string) (bool, error) {
	if !list.Valid() {
		return false, ErrInvalidType
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[list][pattern]; !ok {
		return false, nil
	}
	delete(m.entries[list], pattern)
	return true, nil
}

// Entries returns copies of all entries on the given list.
func (m *MemoryStore) Entries(ctx context.Context, list Type) ([]Entry, error) {
	if !list.Valid() {
		return nil, ErrInvalidType
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries[list]))
	for _, entry := range m.entries[list] {
		out = append(out, entry)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
