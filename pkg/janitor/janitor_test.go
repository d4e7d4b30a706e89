package janitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"mercator-hq/gatekeeper/pkg/counter"
	"mercator-hq/gatekeeper/pkg/counter/fallback"
	"mercator-hq/gatekeeper/pkg/penalty"
	"mercator-hq/gatekeeper/pkg/window"
)

func newTestJanitor(t *testing.T, cfg Config) (*Janitor, *counter.Store, *fallback.Counter, *penalty.Ledger) {
	t.Helper()

	counters := counter.NewStore(counter.NewMemoryBackend(), nil)
	fb := fallback.New(fallback.NewMemoryStore(), fallback.Config{BackoffBase: time.Millisecond}, nil)
	ledger := penalty.NewLedger(penalty.NewMemoryStore(), penalty.Thresholds{}, nil, nil)

	return New(counters, fb, ledger, cfg, nil, nil), counters, fb, ledger
}

func TestJanitor_RunOnce(t *testing.T) {
	counters := counter.NewStore(counter.NewMemoryBackend(), nil)
	fbStore := fallback.NewMemoryStore()
	fb := fallback.New(fbStore, fallback.Config{BackoffBase: time.Millisecond}, nil)
	ledger := penalty.NewLedger(penalty.NewMemoryStore(), penalty.Thresholds{}, nil, nil)
	j := New(counters, fb, ledger, Config{
		CounterRetention: 30 * 24 * time.Hour,
		PenaltyRetention: 30 * 24 * time.Hour,
	}, nil, nil)

	ctx := context.Background()
	// The fallback store anchors TTL expiry to the wall clock, so this
	// test works in real time.
	now := time.Now().UTC()
	old := now.Add(-84 * 24 * time.Hour)

	// Expired counter in a long-gone hourly window.
	if _, err := counters.Increment(ctx, "a", window.KindHourly, "chat", old); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	// Live counter in the current window.
	if _, err := counters.Increment(ctx, "b", window.KindHourly, "chat", now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	// Already-expired fallback entry.
	if err := fbStore.Set(ctx, "stale-key", 1, -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Stale penalty state.
	if _, err := ledger.RecordViolation(ctx, "a", "chat", old); err != nil {
		t.Fatalf("RecordViolation failed: %v", err)
	}

	report, err := j.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if report.Counters.Deleted != 1 {
		t.Errorf("Expected 1 counter entry deleted, got %d", report.Counters.Deleted)
	}
	if report.Fallback != 1 {
		t.Errorf("Expected 1 fallback entry deleted, got %d", report.Fallback)
	}
	if report.Penalty != 1 {
		t.Errorf("Expected 1 penalty entry deleted, got %d", report.Penalty)
	}

	// The live counter survived.
	rec, err := counters.Read(ctx, "b", window.KindHourly, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("Expected live counter to survive the sweep, got count %d", rec.Count)
	}
}

type failingSweeper struct{}

func (failingSweeper) Sweep(context.Context, time.Time) (int, error) {
	return 0, errors.New("store unreachable")
}

// TestJanitor_PartialFailure checks that one failing store does not stop
// the others from being swept.
func TestJanitor_PartialFailure(t *testing.T) {
	counters := counter.NewStore(counter.NewMemoryBackend(), nil)
	ledger := penalty.NewLedger(penalty.NewMemoryStore(), penalty.Thresholds{}, nil, nil)
	j := New(counters, failingSweeper{}, ledger, Config{PenaltyRetention: 24 * time.Hour}, nil, nil)

	ctx := context.Background()
	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)

	ledger.RecordViolation(ctx, "stale", "chat", now.Add(-48*time.Hour))

	report, err := j.RunOnce(ctx, now)
	if err == nil {
		t.Error("Expected error from failing fallback sweeper")
	}
	if report.Penalty != 1 {
		t.Errorf("Expected penalty sweep to proceed despite fallback failure, got %d", report.Penalty)
	}
}

func TestJanitor_StartValidatesSchedule(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{"valid hourly schedule", "0 * * * *", true, false},
		{"valid daily schedule", "0 3 * * *", true, false},
		{"empty schedule disables", "", false, false},
		{"invalid schedule", "not cron", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, _, _, _ := newTestJanitor(t, Config{Schedule: tt.schedule})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := j.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if j.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", j.IsRunning(), tt.wantRunning)
			}

			if tt.wantRunning {
				if next := j.NextRun(); next == nil {
					t.Error("NextRun() returned nil for running janitor")
				}
			}

			j.Stop()
			if j.IsRunning() {
				t.Error("Janitor still running after Stop()")
			}
		})
	}
}

func TestJanitor_ContextCancelStops(t *testing.T) {
	j, _, _, _ := newTestJanitor(t, Config{Schedule: "0 * * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := j.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()
	time.Sleep(100 * time.Millisecond)

	if j.IsRunning() {
		t.Error("Janitor still running after context cancellation")
	}
}
