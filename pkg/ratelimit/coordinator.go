package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/gatekeeper/pkg/counter"
	"mercator-hq/gatekeeper/pkg/telemetry/metrics"
	"mercator-hq/gatekeeper/pkg/window"
)

// Tier is a counter store the coordinator can drive. Both the strongly
// consistent store and the fallback counter satisfy it.
type Tier interface {
	Increment(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time) (counter.Record, error)
	Read(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time) (counter.Record, error)
}

// Config configures the coordinator.
type Config struct {
	// Kinds are the window kinds tracked per request.
	// Default: all four kinds.
	Kinds []window.Kind

	// Timeout bounds each storage call. A timeout on the primary tier is
	// treated like any other error and triggers the fallback.
	// Default: 250ms
	Timeout time.Duration

	// CacheEntries bounds the last-known-usage cache.
	// Default: 10000
	CacheEntries int
}

// Snapshot is the usage observed across all tracked window kinds for one
// (identity, consumer).
type Snapshot struct {
	// Usage maps each window kind to its current count.
	Usage map[window.Kind]uint64

	// ResetAt maps each window kind to the boundary of its current window.
	ResetAt map[window.Kind]time.Time

	// Degraded is true when at least one kind was served by fail-open
	// rather than a counter tier.
	Degraded bool
}

// Coordinator is the public entry point for window counting. It never
// returns an error: storage failures degrade through the fallback tier and
// then to fail-open.
type Coordinator struct {
	primary   Tier
	secondary Tier
	cfg       Config
	cache     *usageCache
	logger    *slog.Logger
	metrics   *metrics.Collector
}

// NewCoordinator creates a coordinator over the two tiers. secondary may be
// nil, in which case a primary failure degrades straight to fail-open.
func NewCoordinator(primary, secondary Tier, cfg Config, logger *slog.Logger, collector *metrics.Collector) *Coordinator {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = window.Kinds()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		primary:   primary,
		secondary: secondary,
		cfg:       cfg,
		cache:     newUsageCache(cfg.CacheEntries),
		logger:    logger.With("component", "ratelimit.coordinator"),
		metrics:   collector,
	}
}

// Consume increments every tracked window for (identity, consumer) and
// returns the resulting usage. Not idempotent: call at most once per
// logical request, after the request's own work succeeded.
func (c *Coordinator) Consume(ctx context.Context, identity, consumer string, now time.Time) Snapshot {
	return c.each(ctx, identity, consumer, now, true)
}

// Peek returns current usage without incrementing anything.
func (c *Coordinator) Peek(ctx context.Context, identity, consumer string, now time.Time) Snapshot {
	return c.each(ctx, identity, consumer, now, false)
}

func (c *Coordinator) each(ctx context.Context, identity, consumer string, now time.Time, mutate bool) Snapshot {
	snap := Snapshot{
		Usage:   make(map[window.Kind]uint64, len(c.cfg.Kinds)),
		ResetAt: make(map[window.Kind]time.Time, len(c.cfg.Kinds)),
	}

	operation := "peek"
	if mutate {
		operation = "consume"
	}

	for _, kind := range c.cfg.Kinds {
		rec, degraded := c.one(ctx, identity, kind, consumer, now, mutate, operation)
		snap.Usage[kind] = rec.Count
		snap.ResetAt[kind] = rec.ExpiresAt
		if degraded {
			snap.Degraded = true
		}
	}
	return snap
}

// one resolves the count for a single window kind, walking the tiers.
// Tier failures are wrapped in the package sentinels before logging so
// errors.Is can classify the failure mode.
func (c *Coordinator) one(ctx context.Context, identity string, kind window.Kind, consumer string, now time.Time, mutate bool, operation string) (counter.Record, bool) {
	rec, err := c.call(ctx, c.primary, identity, kind, consumer, now, mutate)
	c.metrics.RecordIncrement("primary", err == nil)
	if err == nil {
		c.cache.put(identity, consumer, kind, rec.Count, rec.ExpiresAt)
		return rec, false
	}

	err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	c.logger.Warn("primary counter tier failed",
		"operation", operation,
		"identity", identity,
		"window_kind", kind,
		"error", err,
	)
	c.metrics.RecordFallback(operation)

	if c.secondary != nil {
		var serr error
		rec, serr = c.call(ctx, c.secondary, identity, kind, consumer, now, mutate)
		c.metrics.RecordIncrement("fallback", serr == nil)
		if serr == nil {
			c.cache.put(identity, consumer, kind, rec.Count, rec.ExpiresAt)
			return rec, false
		}
		err = fmt.Errorf("%w: %v", ErrStorageDegraded, serr)
	} else {
		err = fmt.Errorf("%w: %v", ErrStorageDegraded, err)
	}

	// Fail-open: report the last known usage without incrementing.
	// Unavailability degrades precision, never availability.
	c.logger.Error("all counter tiers failed, serving last known usage",
		"operation", operation,
		"identity", identity,
		"window_kind", kind,
		"error", err,
	)
	c.metrics.RecordFailOpen(operation)
	return c.lastKnown(identity, kind, consumer, now), true
}

// call runs one tier operation under the configured timeout.
func (c *Coordinator) call(ctx context.Context, tier Tier, identity string, kind window.Kind, consumer string, now time.Time, mutate bool) (counter.Record, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if mutate {
		return tier.Increment(callCtx, identity, kind, consumer, now)
	}
	return tier.Read(callCtx, identity, kind, consumer, now)
}

// lastKnown builds a record from the usage cache, or a zero-count record
// when nothing usable is cached.
func (c *Coordinator) lastKnown(identity string, kind window.Kind, consumer string, now time.Time) counter.Record {
	id, expiresAt, err := window.KeyFor(kind, now)
	if err != nil {
		// Kinds are validated at configuration load; an invalid kind
		// here cannot produce a usable record either way.
		return counter.Record{Kind: kind, Consumer: consumer}
	}

	rec := counter.Record{
		Kind:      kind,
		Consumer:  consumer,
		WindowID:  id,
		ExpiresAt: expiresAt,
	}
	if count, ok := c.cache.get(identity, consumer, kind, now); ok {
		rec.Count = count
	}
	return rec
}
