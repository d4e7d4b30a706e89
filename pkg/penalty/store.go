package penalty

import (
	"context"
	"sync"
)

// Store persists violation state per identity. Update runs its callback
// atomically with respect to other updates of the same identity; the
// callback receives nil when no state exists and returns the state to
// persist, or nil to delete.
type Store interface {
	Get(ctx context.Context, identity string) (*State, error)
	Update(ctx context.Context, identity string, fn func(cur *State) (*State, error)) (*State, error)
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context) ([]*State, error)
	Close() error
}

// MemoryStore implements Store with an in-memory map. Used in tests and
// for deployments that accept losing penalty state on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Get returns a copy of the state for identity, or nil if none exists.
func (m *MemoryStore) Get(ctx context.Context, identity string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[identity]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

// Update atomically transforms the state for identity.
func (m *MemoryStore) Update(ctx context.Context, identity string, fn func(cur *State) (*State, error)) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur *State
	if st, ok := m.states[identity]; ok {
		cp := st
		cur = &cp
	}

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		delete(m.states, identity)
		return nil, nil
	}
	m.states[identity] = *next
	cp := *next
	return &cp, nil
}

// Delete removes the state for identity.
func (m *MemoryStore) Delete(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, identity)
	return nil
}

// List returns copies of all stored states.
func (m *MemoryStore) List(ctx context.Context) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*State, 0, len(m.states))
	for _, st := range m.states {
		cp := st
		out = append(out, &cp)
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
