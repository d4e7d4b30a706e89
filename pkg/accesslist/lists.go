package accesslist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lists serves allow and deny lookups from an in-memory index over a
// Store. Lookups happen on every evaluation, so they never touch storage;
// the index is loaded once and kept current through this type's mutating
// methods.
type Lists struct {
	store  Store
	logger *slog.Logger

	mu    sync.RWMutex
	allow []Entry
	deny  []Entry
}

// NewLists creates the service and loads both lists from the store.
func NewLists(ctx context.Context, store Store, logger *slog.Logger) (*Lists, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Lists{
		store:  store,
		logger: logger.With("component", "accesslist"),
	}
	if err := l.reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load access lists: %w", err)
	}
	return l, nil
}

// Add creates an entry and stores it. An existing entry for the same
// (list, pattern) is replaced.
func (l *Lists) Add(ctx context.Context, list Type, pattern, reason, addedBy string) (Entry, error) {
	if !list.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidType, list)
	}
	if pattern == "" {
		return Entry{}, fmt.Errorf("pattern cannot be empty")
	}

	entry := Entry{
		ID:      uuid.New(),
		List:    list,
		Pattern: pattern,
		Reason:  reason,
		AddedBy: addedBy,
		AddedAt: time.Now().UTC(),
	}
	if err := l.store.Add(ctx, entry); err != nil {
		return Entry{}, err
	}
	if err := l.reload(ctx); err != nil {
		return Entry{}, err
	}

	l.logger.Info("access list entry added",
		"list", list,
		"pattern", pattern,
		"added_by", addedBy,
	)
	return entry, nil
}

// Remove deletes the entry with the given pattern, reporting whether one
// existed.
func (l *Lists) Remove(ctx context.Context, list Type, pattern string) (bool, error) {
	removed, err := l.store.Remove(ctx, list, pattern)
	if err != nil {
		return false, err
	}
	if removed {
		if err := l.reload(ctx); err != nil {
			return false, err
		}
		l.logger.Info("access list entry removed", "list", list, "pattern", pattern)
	}
	return removed, nil
}

// Match returns the first entry on the given list covering identity.
func (l *Lists) Match(list Type, identity string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := l.allow
	if list == TypeDeny {
		entries = l.deny
	}
	for _, entry := range entries {
		if entry.Matches(identity) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Entries returns the current entries on the given list.
func (l *Lists) Entries(ctx context.Context, list Type) ([]Entry, error) {
	return l.store.Entries(ctx, list)
}

// Close releases the underlying store.
func (l *Lists) Close() error {
	return l.store.Close()
}

// reload replaces the in-memory index from the store.
func (l *Lists) reload(ctx context.Context) error {
	allow, err := l.store.Entries(ctx, TypeAllow)
	if err != nil {
		return err
	}
	deny, err := l.store.Entries(ctx, TypeDeny)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.allow = allow
	l.deny = deny
	l.mu.Unlock()
	return nil
}
