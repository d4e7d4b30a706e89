// Package janitor sweeps expired window counters, fallback entries and
// stale penalty state on a cron schedule. Retention is the engine's only
// defense against unbounded growth: counters rotate to new window
// identifiers rather than resetting in place, so old identifiers pile up
// until a sweep removes them.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/gatekeeper/pkg/counter"
	"mercator-hq/gatekeeper/pkg/penalty"
	"mercator-hq/gatekeeper/pkg/telemetry/metrics"
)

// FallbackSweeper removes expired entries from the fallback tier. The
// fallback counter satisfies it; TTL-native stores report 0.
type FallbackSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Config configures the janitor.
type Config struct {
	// Schedule is a standard cron expression. Empty disables scheduled
	// sweeps; RunOnce still works.
	//
	// Common expressions:
	//   - "0 * * * *"   - Hourly
	//   - "0 3 * * *"   - Daily at 3 AM
	Schedule string

	// CounterRetention is how long untouched counter entries survive
	// past their window. Default: 35 days
	CounterRetention time.Duration

	// PenaltyRetention is how long violation-free penalty state
	// survives. Bans are never swept. Default: 30 days
	PenaltyRetention time.Duration

	// SweepTimeout bounds one full sweep. Default: 5 minutes
	SweepTimeout time.Duration
}

// Report summarizes one sweep across all stores.
type Report struct {
	Counters counter.SweepResult
	Fallback int
	Penalty  int
}

// Janitor runs retention sweeps. A failed sweep is logged and counted; the
// schedule always continues, so one bad run never ends retention.
type Janitor struct {
	counters *counter.Store
	fallback FallbackSweeper
	ledger   *penalty.Ledger
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Collector

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// New creates a janitor over the three stores. fallback and ledger may be
// nil when the deployment runs without those tiers.
func New(counters *counter.Store, fallback FallbackSweeper, ledger *penalty.Ledger, cfg Config, logger *slog.Logger, collector *metrics.Collector) *Janitor {
	if cfg.CounterRetention <= 0 {
		cfg.CounterRetention = 35 * 24 * time.Hour
	}
	if cfg.PenaltyRetention <= 0 {
		cfg.PenaltyRetention = 30 * 24 * time.Hour
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		counters: counters,
		fallback: fallback,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With("component", "janitor"),
		metrics:  collector,
		cron:     cron.New(),
	}
}

// Start begins scheduled sweeps. If no schedule is configured the janitor
// does nothing. The schedule stops when ctx is canceled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cfg.Schedule == "" {
		j.logger.Info("sweep schedule not configured, skipping janitor")
		return nil
	}

	if _, err := cron.ParseStandard(j.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", j.cfg.Schedule, err)
	}

	_, err := j.cron.AddFunc(j.cfg.Schedule, func() {
		j.runScheduled(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info("janitor started",
		"schedule", j.cfg.Schedule,
		"counter_retention", j.cfg.CounterRetention,
		"penalty_retention", j.cfg.PenaltyRetention,
	)

	go func() {
		<-ctx.Done()
		j.Stop()
	}()

	return nil
}

// runScheduled executes one sweep cycle under the sweep timeout.
func (j *Janitor) runScheduled(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, j.cfg.SweepTimeout)
	defer cancel()

	report, err := j.RunOnce(sweepCtx, time.Now())
	if err != nil {
		j.logger.Error("scheduled sweep failed", "error", err)
		return
	}

	j.logger.Info("scheduled sweep completed",
		"counters_deleted", report.Counters.Deleted,
		"counters_unknown_age", report.Counters.UnknownAge,
		"counters_errors", report.Counters.Errors,
		"fallback_deleted", report.Fallback,
		"penalty_deleted", report.Penalty,
	)
}

// RunOnce sweeps every store once. Failures in one store are recorded and
// do not stop the others; the returned error wraps the first failure so
// callers can still tell a clean sweep from a partial one.
func (j *Janitor) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	var (
		report   Report
		firstErr error
	)

	result, err := j.counters.SweepExpired(ctx, now, j.cfg.CounterRetention)
	report.Counters = result
	j.metrics.RecordSweep("counters", result.Deleted, err != nil)
	if err != nil {
		j.logger.Error("counter sweep failed", "error", err)
		firstErr = fmt.Errorf("counter sweep: %w", err)
	}

	if j.fallback != nil {
		deleted, err := j.fallback.Sweep(ctx, now)
		report.Fallback = deleted
		j.metrics.RecordSweep("fallback", deleted, err != nil)
		if err != nil {
			j.logger.Error("fallback sweep failed", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("fallback sweep: %w", err)
			}
		}
	}

	if j.ledger != nil {
		deleted, err := j.ledger.SweepStale(ctx, now, j.cfg.PenaltyRetention)
		report.Penalty = deleted
		j.metrics.RecordSweep("penalty", deleted, err != nil)
		if err != nil {
			j.logger.Error("penalty sweep failed", "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("penalty sweep: %w", err)
			}
		}
	}

	return report, firstErr
}

// Stop stops the schedule and waits for a running sweep to complete.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cron != nil && j.running {
		ctx := j.cron.Stop()
		<-ctx.Done()
		j.running = false
		j.logger.Info("janitor stopped")
	}
}

// IsRunning reports whether scheduled sweeps are active.
func (j *Janitor) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// NextRun returns the next scheduled sweep time, or nil when no schedule
// is active.
func (j *Janitor) NextRun() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries := j.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
