package penalty

import (
	"context"
	"sync"
	"testing"
	"time"
)

func newTestLedger(t *testing.T, th Thresholds) *Ledger {
	t.Helper()
	return NewLedger(NewMemoryStore(), th, nil, nil)
}

func TestLedger_EscalationLadder(t *testing.T) {
	th := Thresholds{Soft: 3, Hard: 5, Ban: 10, BlockDuration: time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	wantPhases := map[uint32]Phase{
		1:  PhaseClean,
		2:  PhaseClean,
		3:  PhaseWarned,
		4:  PhaseWarned,
		5:  PhaseTemporarilyBlocked,
		9:  PhaseTemporarilyBlocked,
		10: PhaseBanned,
	}

	for i := uint32(1); i <= 12; i++ {
		st, err := ledger.RecordViolation(ctx, "198.51.100.7", "chat", now)
		if err != nil {
			t.Fatalf("RecordViolation %d failed: %v", i, err)
		}
		if st.ViolationCount != i {
			t.Fatalf("Expected violation count %d, got %d", i, st.ViolationCount)
		}
		if want, ok := wantPhases[i]; ok {
			if got := st.Phase(ledger.Thresholds(), now); got != want {
				t.Errorf("Violation %d: expected phase %s, got %s", i, want, got)
			}
		}
	}
}

func TestLedger_BlockDurationScales(t *testing.T) {
	th := Thresholds{Soft: 3, Hard: 5, Ban: 100, BlockDuration: time.Hour, MaxBlockDuration: 24 * time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 8; i++ {
		st, err := ledger.RecordViolation(ctx, "a", "chat", now)
		if err != nil {
			t.Fatalf("RecordViolation failed: %v", err)
		}
		if st.ViolationCount < th.Hard {
			continue
		}
		if !prev.IsZero() && st.BlockExpiresAt.Before(prev) {
			t.Errorf("Violation %d: block expiry %v regressed below previous %v",
				st.ViolationCount, st.BlockExpiresAt, prev)
		}
		prev = st.BlockExpiresAt
	}

	// Fifth violation blocks for the base duration, each one after adds
	// another multiple.
	wantFirst := now.Add(time.Hour)
	ledger2 := newTestLedger(t, th)
	var st *State
	var err error
	for i := 0; i < 5; i++ {
		st, err = ledger2.RecordViolation(ctx, "b", "chat", now)
		if err != nil {
			t.Fatalf("RecordViolation failed: %v", err)
		}
	}
	if !st.BlockExpiresAt.Equal(wantFirst) {
		t.Errorf("Expected first block to expire at %v, got %v", wantFirst, st.BlockExpiresAt)
	}
	st, err = ledger2.RecordViolation(ctx, "b", "chat", now)
	if err != nil {
		t.Fatalf("RecordViolation failed: %v", err)
	}
	if want := now.Add(2 * time.Hour); !st.BlockExpiresAt.Equal(want) {
		t.Errorf("Expected second block to expire at %v, got %v", want, st.BlockExpiresAt)
	}
}

func TestLedger_BlockDurationCapped(t *testing.T) {
	th := Thresholds{Soft: 1, Hard: 2, Ban: 1000, BlockDuration: time.Hour, MaxBlockDuration: 3 * time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	var st *State
	var err error
	for i := 0; i < 10; i++ {
		st, err = ledger.RecordViolation(ctx, "a", "chat", now)
		if err != nil {
			t.Fatalf("RecordViolation failed: %v", err)
		}
	}
	if want := now.Add(3 * time.Hour); !st.BlockExpiresAt.Equal(want) {
		t.Errorf("Expected block capped at %v, got %v", want, st.BlockExpiresAt)
	}
}

func TestLedger_BlockExpiryReadmits(t *testing.T) {
	th := Thresholds{Soft: 1, Hard: 2, Ban: 10, BlockDuration: time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	ledger.RecordViolation(ctx, "a", "chat", now)
	st, err := ledger.RecordViolation(ctx, "a", "chat", now)
	if err != nil {
		t.Fatalf("RecordViolation failed: %v", err)
	}
	if st.Phase(th.WithDefaults(), now) != PhaseTemporarilyBlocked {
		t.Fatal("Expected identity to be blocked")
	}

	// Past the expiry the block no longer applies, but the count remains.
	later := st.BlockExpiresAt.Add(time.Second)
	got, err := ledger.Check(ctx, "a")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got.Blocked(later) {
		t.Error("Expected block to have expired")
	}
	if got.ViolationCount != 2 {
		t.Errorf("Expected violation count to persist past expiry, got %d", got.ViolationCount)
	}
}

func TestLedger_BanIsTerminal(t *testing.T) {
	th := Thresholds{Soft: 1, Hard: 2, Ban: 3, BlockDuration: time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	var banned []string
	ledger.OnBan(func(_ context.Context, identity string) {
		banned = append(banned, identity)
	})

	for i := 0; i < 5; i++ {
		if _, err := ledger.RecordViolation(ctx, "a", "chat", now); err != nil {
			t.Fatalf("RecordViolation failed: %v", err)
		}
	}

	st, err := ledger.Check(ctx, "a")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !st.Banned {
		t.Error("Expected identity to be banned")
	}
	if st.Phase(ledger.Thresholds(), now.Add(1000*time.Hour)) != PhaseBanned {
		t.Error("Expected ban to persist regardless of elapsed time")
	}
	if len(banned) != 1 || banned[0] != "a" {
		t.Errorf("Expected exactly one ban notification for %q, got %v", "a", banned)
	}
}

func TestLedger_ResetClearsBan(t *testing.T) {
	th := Thresholds{Soft: 1, Hard: 2, Ban: 3, BlockDuration: time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ledger.RecordViolation(ctx, "a", "chat", now)
	}
	if err := ledger.Reset(ctx, "a"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	st, err := ledger.Check(ctx, "a")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if st != nil {
		t.Errorf("Expected no state after reset, got %+v", st)
	}
}

// TestLedger_ConcurrentViolations checks that violations recorded from many
// goroutines are all counted.
func TestLedger_ConcurrentViolations(t *testing.T) {
	ledger := newTestLedger(t, Thresholds{Ban: 10000})

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.RecordViolation(ctx, "a", "chat", now); err != nil {
				t.Errorf("RecordViolation failed: %v", err)
			}
		}()
	}
	wg.Wait()

	st, err := ledger.Check(ctx, "a")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if st.ViolationCount != n {
		t.Errorf("Expected %d violations, got %d", n, st.ViolationCount)
	}
}

func TestLedger_SweepStale(t *testing.T) {
	th := Thresholds{Soft: 2, Hard: 3, Ban: 4, BlockDuration: time.Hour}
	ledger := newTestLedger(t, th)

	now := time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)
	old := now.Add(-60 * 24 * time.Hour)
	ctx := context.Background()

	// Stale entry, eligible for sweep.
	ledger.RecordViolation(ctx, "stale", "chat", old)

	// Recent entry, kept.
	ledger.RecordViolation(ctx, "recent", "chat", now)

	// Banned long ago; bans are never swept.
	for i := 0; i < 4; i++ {
		ledger.RecordViolation(ctx, "banned", "chat", old)
	}

	deleted, err := ledger.SweepStale(ctx, now, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("SweepStale failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 entry swept, got %d", deleted)
	}

	if st, _ := ledger.Check(ctx, "stale"); st != nil {
		t.Error("Expected stale entry to be removed")
	}
	if st, _ := ledger.Check(ctx, "recent"); st == nil {
		t.Error("Expected recent entry to survive")
	}
	if st, _ := ledger.Check(ctx, "banned"); st == nil || !st.Banned {
		t.Error("Expected banned entry to survive the sweep")
	}
}

func TestThresholds_Validate(t *testing.T) {
	cases := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", Thresholds{}.WithDefaults(), false},
		{"soft above hard", Thresholds{Soft: 6, Hard: 5, Ban: 10}.WithDefaults(), true},
		{"hard above ban", Thresholds{Soft: 3, Hard: 11, Ban: 10}.WithDefaults(), true},
		{"block above max", Thresholds{BlockDuration: 48 * time.Hour}.WithDefaults(), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.th.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}
