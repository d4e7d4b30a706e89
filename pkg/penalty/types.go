package penalty

import (
	"fmt"
	"time"
)

// Phase is the escalation phase an identity is in, derived from its state
// and the configured thresholds at a given instant.
type Phase string

const (
	// PhaseClean means no violations, or too few to matter.
	PhaseClean Phase = "clean"

	// PhaseWarned means the soft threshold was crossed. Informational:
	// the identity is still admitted.
	PhaseWarned Phase = "warned"

	// PhaseTemporarilyBlocked means a block is in force until its expiry.
	PhaseTemporarilyBlocked Phase = "temporarily_blocked"

	// PhaseBanned is terminal and only cleared by administrative reset.
	PhaseBanned Phase = "banned"
)

// State is the persisted violation record for one identity.
type State struct {
	// Identity is the subject of the record.
	Identity string `json:"identity"`

	// ViolationCount is the lifetime violation count. It only grows;
	// expiry of a block does not decrement it.
	ViolationCount uint32 `json:"violationCount"`

	// LastViolationAt is when the most recent violation was recorded.
	LastViolationAt time.Time `json:"lastViolationAt"`

	// BlockExpiresAt is when the current temporary block ends. The zero
	// time means no block was ever issued.
	BlockExpiresAt time.Time `json:"blockExpiresAt,omitempty"`

	// Banned marks the identity permanently banned.
	Banned bool `json:"banned"`
}

// Blocked reports whether a temporary block is in force at now.
func (s *State) Blocked(now time.Time) bool {
	return s != nil && !s.BlockExpiresAt.IsZero() && s.BlockExpiresAt.After(now)
}

// Phase derives the escalation phase at now under the given thresholds.
func (s *State) Phase(th Thresholds, now time.Time) Phase {
	switch {
	case s == nil:
		return PhaseClean
	case s.Banned:
		return PhaseBanned
	case s.Blocked(now):
		return PhaseTemporarilyBlocked
	case s.ViolationCount >= th.Soft:
		return PhaseWarned
	default:
		return PhaseClean
	}
}

// Thresholds configures the escalation ladder.
type Thresholds struct {
	// Soft is the violation count at which an identity becomes Warned.
	// Default: 3
	Soft uint32

	// Hard is the violation count at which temporary blocks begin.
	// Default: 5
	Hard uint32

	// Ban is the violation count at which the identity is permanently
	// banned. Default: 10
	Ban uint32

	// BlockDuration is the base temporary block length. Each violation
	// past the hard threshold adds one more multiple of it.
	// Default: 1 hour
	BlockDuration time.Duration

	// MaxBlockDuration caps the scaled block length.
	// Default: 24 hours
	MaxBlockDuration time.Duration
}

// WithDefaults fills zero fields with the default ladder.
func (t Thresholds) WithDefaults() Thresholds {
	if t.Soft == 0 {
		t.Soft = 3
	}
	if t.Hard == 0 {
		t.Hard = 5
	}
	if t.Ban == 0 {
		t.Ban = 10
	}
	if t.BlockDuration == 0 {
		t.BlockDuration = time.Hour
	}
	if t.MaxBlockDuration == 0 {
		t.MaxBlockDuration = 24 * time.Hour
	}
	return t
}

// Validate checks that the ladder is ordered.
func (t Thresholds) Validate() error {
	if t.Soft > t.Hard {
		return fmt.Errorf("soft threshold %d exceeds hard threshold %d", t.Soft, t.Hard)
	}
	if t.Hard > t.Ban {
		return fmt.Errorf("hard threshold %d exceeds ban threshold %d", t.Hard, t.Ban)
	}
	if t.BlockDuration > t.MaxBlockDuration {
		return fmt.Errorf("block duration %v exceeds maximum %v", t.BlockDuration, t.MaxBlockDuration)
	}
	return nil
}

// blockFor computes the scaled block length for a violation count at or
// past the hard threshold.
func (t Thresholds) blockFor(violations uint32) time.Duration {
	multiple := time.Duration(violations-t.Hard) + 1
	d := t.BlockDuration * multiple
	if d > t.MaxBlockDuration || d < 0 {
		d = t.MaxBlockDuration
	}
	return d
}
