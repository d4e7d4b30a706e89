package policy

import (
	"context"
	"time"

	"mercator-hq/gatekeeper/pkg/accesslist"
	"mercator-hq/gatekeeper/pkg/penalty"
	"mercator-hq/gatekeeper/pkg/window"
)

// Analytics is a point-in-time summary of the engine's protective state.
type Analytics struct {
	AllowEntries  int `json:"allowEntries"`
	DenyEntries   int `json:"denyEntries"`
	ActiveBlocks  int `json:"activeBlocks"`
	BannedForever int `json:"bannedForever"`
}

// IdentityReport is the admin view of one identity's standing: current
// usage per window, the limits that apply, penalty state and list
// membership.
type IdentityReport struct {
	Identity    string                    `json:"identity"`
	Consumer    string                    `json:"consumer"`
	Usage       map[window.Kind]uint64    `json:"usage"`
	ResetAt     map[window.Kind]time.Time `json:"resetAt"`
	Limits      Limits                    `json:"limits"`
	Phase       penalty.Phase             `json:"phase"`
	Penalty     *penalty.State            `json:"penalty,omitempty"`
	OnAllowList bool                      `json:"onAllowList"`
	OnDenyList  bool                      `json:"onDenyList"`
}

// Inspect reports identity's standing without consuming quota.
func (p *Policy) Inspect(ctx context.Context, identity, consumer string, now time.Time) (IdentityReport, error) {
	state, err := p.ledger.Check(ctx, identity)
	if err != nil {
		return IdentityReport{}, err
	}

	snap := p.coordinator.Peek(ctx, identity, consumer, now)

	_, onAllow := p.lists.Match(accesslist.TypeAllow, identity)
	_, onDeny := p.lists.Match(accesslist.TypeDeny, identity)

	return IdentityReport{
		Identity:    identity,
		Consumer:    consumer,
		Usage:       snap.Usage,
		ResetAt:     snap.ResetAt,
		Limits:      p.limits.LimitsFor(consumer),
		Phase:       state.Phase(p.ledger.Thresholds(), now),
		Penalty:     state,
		OnAllowList: onAllow,
		OnDenyList:  onDeny,
	}, nil
}

// AddToAllowList adds an identity pattern to the allow list.
func (p *Policy) AddToAllowList(ctx context.Context, pattern, reason, addedBy string) (accesslist.Entry, error) {
	return p.lists.Add(ctx, accesslist.TypeAllow, pattern, reason, addedBy)
}

// AddToDenyList adds an identity pattern to the deny list.
func (p *Policy) AddToDenyList(ctx context.Context, pattern, reason, addedBy string) (accesslist.Entry, error) {
	return p.lists.Add(ctx, accesslist.TypeDeny, pattern, reason, addedBy)
}

// RemoveFromAllowList removes a pattern from the allow list.
func (p *Policy) RemoveFromAllowList(ctx context.Context, pattern string) (bool, error) {
	return p.lists.Remove(ctx, accesslist.TypeAllow, pattern)
}

// RemoveFromDenyList removes a pattern from the deny list. For a banned
// identity this is half of an unban; ClearBlocks is the other half.
func (p *Policy) RemoveFromDenyList(ctx context.Context, pattern string) (bool, error) {
	return p.lists.Remove(ctx, accesslist.TypeDeny, pattern)
}

// ClearBlocks resets all penalty state for an identity, lifting any
// temporary block and clearing its violation history and ban flag.
func (p *Policy) ClearBlocks(ctx context.Context, identity string) error {
	return p.ledger.Reset(ctx, identity)
}

// Snapshot builds the analytics summary.
func (p *Policy) Snapshot(ctx context.Context, now time.Time) (Analytics, error) {
	var a Analytics

	allow, err := p.lists.Entries(ctx, accesslist.TypeAllow)
	if err != nil {
		return a, err
	}
	deny, err := p.lists.Entries(ctx, accesslist.TypeDeny)
	if err != nil {
		return a, err
	}
	a.AllowEntries = len(allow)
	a.DenyEntries = len(deny)

	blocked, err := p.ledger.ActiveBlocks(ctx, now)
	if err != nil {
		return a, err
	}
	a.ActiveBlocks = len(blocked)

	for _, entry := range deny {
		if entry.AddedBy == "penalty" {
			a.BannedForever++
		}
	}
	return a, nil
}
