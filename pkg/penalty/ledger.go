package penalty

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/gatekeeper/pkg/telemetry/metrics"
)

// Ledger records violations and derives escalation decisions. All writes go
// through the store's atomic update, so two concurrent violations for the
// same identity always produce two counted violations.
type Ledger struct {
	store      Store
	thresholds Thresholds
	logger     *slog.Logger
	metrics    *metrics.Collector

	onBan func(ctx context.Context, identity string)
}

// NewLedger creates a ledger over the given store. Zero threshold fields
// take defaults.
func NewLedger(store Store, thresholds Thresholds, logger *slog.Logger, collector *metrics.Collector) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:      store,
		thresholds: thresholds.WithDefaults(),
		logger:     logger.With("component", "penalty.ledger"),
		metrics:    collector,
	}
}

// OnBan registers a hook invoked once when an identity crosses the ban
// threshold. Used to promote banned identities onto the deny list.
func (l *Ledger) OnBan(fn func(ctx context.Context, identity string)) {
	l.onBan = fn
}

// Thresholds returns the effective ladder after defaults.
func (l *Ledger) Thresholds() Thresholds {
	return l.thresholds
}

// Check returns the current state for identity, or nil if the identity has
// no violations on record.
func (l *Ledger) Check(ctx context.Context, identity string) (*State, error) {
	return l.store.Get(ctx, identity)
}

// RecordViolation counts one violation for identity and applies whatever
// escalation the new count triggers. The returned state reflects the
// violation: callers read the phase from it rather than re-fetching.
//
// Escalation is monotonic. A banned identity stays banned no matter what,
// and each violation at or past the hard threshold issues a block at least
// as long as the previous one, capped at MaxBlockDuration.
func (l *Ledger) RecordViolation(ctx context.Context, identity, consumer string, now time.Time) (*State, error) {
	var wasBanned bool

	st, err := l.store.Update(ctx, identity, func(cur *State) (*State, error) {
		next := State{Identity: identity}
		if cur != nil {
			next = *cur
			wasBanned = cur.Banned
		}

		next.ViolationCount++
		next.LastViolationAt = now.UTC()

		switch {
		case next.ViolationCount >= l.thresholds.Ban:
			next.Banned = true
		case next.ViolationCount >= l.thresholds.Hard:
			next.BlockExpiresAt = now.UTC().Add(l.thresholds.blockFor(next.ViolationCount))
		}
		return &next, nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.RecordViolation(consumer)

	phase := st.Phase(l.thresholds, now)
	l.logger.Info("violation recorded",
		"identity", identity,
		"consumer", consumer,
		"violation_count", st.ViolationCount,
		"phase", phase,
	)

	if st.Banned && !wasBanned {
		l.logger.Warn("identity permanently banned",
			"identity", identity,
			"violation_count", st.ViolationCount,
		)
		if l.onBan != nil {
			l.onBan(ctx, identity)
		}
	}

	return st, nil
}

// Reset clears all penalty state for identity, including a permanent ban.
// Administrative operation.
func (l *Ledger) Reset(ctx context.Context, identity string) error {
	if err := l.store.Delete(ctx, identity); err != nil {
		return err
	}
	l.logger.Info("penalty state reset", "identity", identity)
	return nil
}

// ActiveBlocks returns the identities under a temporary block at now.
func (l *Ledger) ActiveBlocks(ctx context.Context, now time.Time) ([]*State, error) {
	states, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var blocked []*State
	for _, st := range states {
		if !st.Banned && st.Blocked(now) {
			blocked = append(blocked, st)
		}
	}
	l.metrics.SetActiveBlocks(len(blocked))
	return blocked, nil
}

// SweepStale deletes entries whose last violation predates the retention
// horizon, unless the identity is banned or still blocked. Bans are never
// swept. Returns the number of entries removed.
func (l *Ledger) SweepStale(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	states, err := l.store.List(ctx)
	if err != nil {
		return 0, err
	}

	horizon := now.Add(-retention)
	deleted := 0

	for _, st := range states {
		if st.Banned || st.Blocked(now) {
			continue
		}
		if !st.LastViolationAt.Before(horizon) {
			continue
		}
		if err := l.store.Delete(ctx, st.Identity); err != nil {
			l.logger.Warn("sweep: failed to delete penalty state",
				"identity", st.Identity,
				"error", err,
			)
			continue
		}
		deleted++
	}

	return deleted, nil
}

// Close releases the underlying store.
func (l *Ledger) Close() error {
	return l.store.Close()
}
