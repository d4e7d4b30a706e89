//go:build integration

package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/gatekeeper/pkg/accesslist"
	"mercator-hq/gatekeeper/pkg/counter"
	"mercator-hq/gatekeeper/pkg/counter/fallback"
	"mercator-hq/gatekeeper/pkg/janitor"
	"mercator-hq/gatekeeper/pkg/penalty"
	"mercator-hq/gatekeeper/pkg/policy"
	"mercator-hq/gatekeeper/pkg/ratelimit"
	"mercator-hq/gatekeeper/pkg/window"
)

// stack bundles the SQLite-backed engine components for end-to-end tests.
type stack struct {
	counters *counter.Store
	ledger   *penalty.Ledger
	lists    *accesslist.Lists
	policy   *policy.Policy
	janitor  *janitor.Janitor
}

func newStack(t *testing.T, dbPath string, limits policy.Limits, th penalty.Thresholds) *stack {
	t.Helper()

	backend, err := counter.NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("failed to open counter backend: %v", err)
	}
	counters := counter.NewStore(backend, nil)

	coord := ratelimit.NewCoordinator(
		counters,
		fallback.New(fallback.NewMemoryStore(), fallback.Config{BackoffBase: time.Millisecond}, nil),
		ratelimit.Config{Kinds: []window.Kind{window.KindHourly, window.KindDaily}},
		nil, nil,
	)

	pstore, err := penalty.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open penalty store: %v", err)
	}
	ledger := penalty.NewLedger(pstore, th, nil, nil)

	lstore, err := accesslist.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open access list store: %v", err)
	}
	lists, err := accesslist.NewLists(context.Background(), lstore, nil)
	if err != nil {
		t.Fatalf("failed to load access lists: %v", err)
	}

	pol := policy.New(policy.StaticLimits(limits), coord, ledger, lists, nil, policy.Config{}, nil, nil)

	jan := janitor.New(counters, nil, ledger, janitor.Config{}, nil, nil)

	s := &stack{counters: counters, ledger: ledger, lists: lists, policy: pol, janitor: jan}
	t.Cleanup(func() {
		s.lists.Close()
		s.ledger.Close()
		s.counters.Close()
	})
	return s
}

// TestAdmissionLifecycle walks one identity through the full protective
// ladder against real SQLite storage: quota exhaustion, violation
// escalation into a temporary block, promotion to a permanent ban with a
// deny list entry, and finally an operator unban.
func TestAdmissionLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gatekeeper.db")
	th := penalty.Thresholds{
		Soft:          1,
		Hard:          2,
		Ban:           3,
		BlockDuration: time.Hour,
	}
	s := newStack(t, dbPath, policy.Limits{window.KindHourly: 2}, th)

	ctx := context.Background()
	now := time.Date(2025, 6, 24, 14, 0, 0, 0, time.UTC)
	identity := "203.0.113.5"

	// Within quota.
	for i := 0; i < 2; i++ {
		d := s.policy.Evaluate(ctx, identity, "chat", now)
		if !d.Allowed {
			t.Fatalf("request %d: expected admission, got %s", i+1, d.Reason)
		}
		s.policy.Commit(ctx, identity, "chat", now)
	}

	// Violations 1 and 2; the second crosses Hard and installs a block.
	for i := 0; i < 2; i++ {
		d := s.policy.Evaluate(ctx, identity, "chat", now)
		if d.Allowed || d.Reason != policy.ReasonRateLimitExceeded {
			t.Fatalf("violation %d: expected %s, got %s", i+1, policy.ReasonRateLimitExceeded, d.Reason)
		}
	}

	d := s.policy.Evaluate(ctx, identity, "chat", now)
	if d.Reason != policy.ReasonTemporarilyBlocked {
		t.Fatalf("expected %s after hard threshold, got %s", policy.ReasonTemporarilyBlocked, d.Reason)
	}
	if d.BlockExpiresAt.IsZero() {
		t.Error("expected block expiry on a temporary block")
	}

	// Violation 3 crosses Ban; the ban propagates to the deny list.
	if _, err := s.ledger.RecordViolation(ctx, identity, "chat", now); err != nil {
		t.Fatalf("RecordViolation failed: %v", err)
	}

	d = s.policy.Evaluate(ctx, identity, "chat", now)
	if d.Reason != policy.ReasonDenyListed {
		t.Fatalf("expected %s after ban, got %s", policy.ReasonDenyListed, d.Reason)
	}
	entry, found := s.lists.Match(accesslist.TypeDeny, identity)
	if !found {
		t.Fatal("expected a deny list entry for the banned identity")
	}
	if entry.AddedBy != "penalty" {
		t.Errorf("expected deny entry added by penalty, got %q", entry.AddedBy)
	}

	// The ban survives a full restart of the storage layer.
	s.lists.Close()
	s.ledger.Close()
	s.counters.Close()

	s2 := newStack(t, dbPath, policy.Limits{window.KindHourly: 2}, th)
	d = s2.policy.Evaluate(ctx, identity, "chat", now)
	if d.Reason != policy.ReasonDenyListed {
		t.Fatalf("expected %s after restart, got %s", policy.ReasonDenyListed, d.Reason)
	}

	// Operator unban: remove the deny entry and clear penalty state.
	if _, err := s2.policy.RemoveFromDenyList(ctx, identity); err != nil {
		t.Fatalf("RemoveFromDenyList failed: %v", err)
	}
	if err := s2.policy.ClearBlocks(ctx, identity); err != nil {
		t.Fatalf("ClearBlocks failed: %v", err)
	}

	// Fresh window, clean slate.
	later := now.Add(time.Hour)
	d = s2.policy.Evaluate(ctx, identity, "chat", later)
	if !d.Allowed {
		t.Fatalf("expected admission after unban in a fresh window, got %s", d.Reason)
	}
}

// TestSweepAcrossStores verifies one janitor pass prunes expired counters
// and stale penalty state from SQLite while leaving live records alone.
func TestSweepAcrossStores(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "gatekeeper.db")
	s := newStack(t, dbPath, policy.Limits{window.KindHourly: 100}, penalty.Thresholds{})

	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-90 * 24 * time.Hour)

	// One counter long past retention, one current.
	if _, err := s.counters.Increment(ctx, "old-identity", window.KindHourly, "chat", old); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if _, err := s.counters.Increment(ctx, "live-identity", window.KindHourly, "chat", now); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}

	// Stale penalty state.
	if _, err := s.ledger.RecordViolation(ctx, "old-identity", "chat", old); err != nil {
		t.Fatalf("RecordViolation failed: %v", err)
	}

	report, err := s.janitor.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Counters.Deleted != 1 {
		t.Errorf("expected 1 expired counter deleted, got %d", report.Counters.Deleted)
	}
	if report.Penalty != 1 {
		t.Errorf("expected 1 stale penalty record deleted, got %d", report.Penalty)
	}

	rec, err := s.counters.Read(ctx, "live-identity", window.KindHourly, "chat", now)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("expected live counter to survive the sweep, got count %d", rec.Count)
	}
}
