package counter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/gatekeeper/pkg/window"
)

// Store serializes counter operations per identity on top of a Backend.
//
// Conceptually there is one actor per identity: all increments and reads for
// an identity take that identity's lock, so observed counts are linearizable
// per key. Identities never share a lock, so distinct identities proceed
// fully in parallel.
//
// The store holds its lock only around the backend call itself; callers are
// expected to bound those calls with a context deadline.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu     sync.Mutex
	actors map[string]*sync.Mutex
}

// SweepResult summarizes one expiry sweep.
type SweepResult struct {
	// Deleted is the number of entries removed.
	Deleted int

	// UnknownAge is the number of legacy entries whose age could not be
	// determined from the window identifier (legacy weekly ids carry no
	// parseable timestamp). These are skipped, not deleted: a known
	// retention leak inherited from the previous generation, surfaced
	// here instead of silently guessed at.
	UnknownAge int

	// Errors is the number of entries that failed to decode or delete.
	// Per-key failures never abort the sweep.
	Errors int
}

// NewStore creates a counter store over the given backend.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		logger:  logger.With("component", "counter.store"),
		actors:  make(map[string]*sync.Mutex),
	}
}

// Increment atomically adds one to the live window record for
// (identity, kind, consumer) and returns the updated record. A legacy bare
// integer found at the key is migrated to a structured record carrying
// count+1. Storage errors propagate unchanged; the store performs no
// retries.
func (s *Store) Increment(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", window.ErrInvalidKind, kind)
	}

	id, expiresAt, err := window.KeyFor(kind, now)
	if err != nil {
		return Record{}, err
	}
	key := Key{Identity: identity, Kind: kind, Consumer: consumer, WindowID: id}

	actor := s.actorFor(identity)
	actor.Lock()
	defer actor.Unlock()

	var rec Record
	err = s.backend.Update(ctx, key.String(), func(old []byte, found bool) ([]byte, error) {
		var count uint64
		if found {
			stored, err := DecodeValue(old)
			if err != nil {
				return nil, err
			}
			count = stored.Count()
		}

		rec = Record{
			Count:           count + 1,
			Kind:            kind,
			Consumer:        consumer,
			WindowID:        id,
			ExpiresAt:       expiresAt,
			LastIncrementAt: now.UTC(),
		}
		return EncodeRecord(rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Read returns a point-in-time snapshot of the live window record. A
// missing key yields a zero-count record for the current window. Read does
// not mutate state.
func (s *Store) Read(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", window.ErrInvalidKind, kind)
	}

	id, expiresAt, err := window.KeyFor(kind, now)
	if err != nil {
		return Record{}, err
	}
	key := Key{Identity: identity, Kind: kind, Consumer: consumer, WindowID: id}

	zero := Record{
		Kind:      kind,
		Consumer:  consumer,
		WindowID:  id,
		ExpiresAt: expiresAt,
	}

	raw, found, err := s.backend.Get(ctx, key.String())
	if err != nil {
		return Record{}, err
	}
	if !found {
		return zero, nil
	}

	stored, err := DecodeValue(raw)
	if err != nil {
		return Record{}, err
	}
	if stored.Legacy {
		// Bare integer: count with no metadata, attributed to the
		// current window.
		zero.Count = stored.LegacyCount
		return zero, nil
	}
	return stored.Record, nil
}

// SweepExpired deletes entries whose window has passed or whose last
// increment predates the retention horizon. Legacy entries are aged by the
// window identifier encoded in their key; identifiers that cannot be parsed
// are counted as UnknownAge and left alone. Per-key errors are logged and
// counted without aborting the sweep.
func (s *Store) SweepExpired(ctx context.Context, now time.Time, retention time.Duration) (SweepResult, error) {
	var result SweepResult

	keys, err := s.backend.Keys(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list counter keys: %w", err)
	}

	horizon := now.Add(-retention)

	for _, raw := range keys {
		key, ok := ParseKey(raw)
		if !ok {
			result.Errors++
			s.logger.Warn("sweep: unparseable counter key", "key", raw)
			continue
		}

		value, found, err := s.backend.Get(ctx, raw)
		if err != nil {
			result.Errors++
			s.logger.Warn("sweep: failed to read entry", "key", raw, "error", err)
			continue
		}
		if !found {
			continue
		}

		stored, err := DecodeValue(value)
		if err != nil {
			result.Errors++
			s.logger.Warn("sweep: undecodable entry", "key", raw, "error", err)
			continue
		}

		var expired bool
		if stored.Legacy {
			start, ok := window.StartOf(key.WindowID)
			if !ok {
				result.UnknownAge++
				continue
			}
			expired = start.Add(key.Kind.Duration()).Before(now) || start.Before(horizon)
		} else {
			rec := stored.Record
			expired = rec.ExpiresAt.Before(now) ||
				(!rec.LastIncrementAt.IsZero() && rec.LastIncrementAt.Before(horizon))
		}
		if !expired {
			continue
		}

		actor := s.actorFor(key.Identity)
		actor.Lock()
		err = s.backend.Delete(ctx, raw)
		actor.Unlock()
		if err != nil {
			result.Errors++
			s.logger.Warn("sweep: failed to delete entry", "key", raw, "error", err)
			continue
		}
		result.Deleted++
	}

	return result, nil
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// actorFor returns the serialization lock for an identity, creating it on
// first use.
func (s *Store) actorFor(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	actor, ok := s.actors[identity]
	if !ok {
		actor = &sync.Mutex{}
		s.actors[identity] = actor
	}
	return actor
}
