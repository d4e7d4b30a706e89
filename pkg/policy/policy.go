package policy

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/gatekeeper/pkg/accesslist"
	"mercator-hq/gatekeeper/pkg/penalty"
	"mercator-hq/gatekeeper/pkg/ratelimit"
	"mercator-hq/gatekeeper/pkg/telemetry/metrics"
	"mercator-hq/gatekeeper/pkg/window"
)

// Config configures the policy engine.
type Config struct {
	// RestrictedCountries are ISO 3166-1 alpha-2 codes rejected at the
	// geo step. Empty disables geo restriction.
	RestrictedCountries []string
}

// Policy is the admission decision engine.
type Policy struct {
	limits      LimitProvider
	coordinator *ratelimit.Coordinator
	ledger      *penalty.Ledger
	lists       *accesslist.Lists
	geo         GeoResolver
	restricted  map[string]struct{}
	logger      *slog.Logger
	metrics     *metrics.Collector
}

// New creates the engine and wires ban promotion: an identity banned by
// the ledger lands on the deny list so the ban survives a penalty reset.
// geo may be nil to disable the geo step entirely.
func New(limits LimitProvider, coordinator *ratelimit.Coordinator, ledger *penalty.Ledger, lists *accesslist.Lists, geo GeoResolver, cfg Config, logger *slog.Logger, collector *metrics.Collector) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	restricted := make(map[string]struct{}, len(cfg.RestrictedCountries))
	for _, country := range cfg.RestrictedCountries {
		restricted[strings.ToUpper(country)] = struct{}{}
	}

	p := &Policy{
		limits:      limits,
		coordinator: coordinator,
		ledger:      ledger,
		lists:       lists,
		geo:         geo,
		restricted:  restricted,
		logger:      logger.With("component", "policy"),
		metrics:     collector,
	}

	ledger.OnBan(func(ctx context.Context, identity string) {
		if _, err := lists.Add(ctx, accesslist.TypeDeny, identity, "permanently banned", "penalty"); err != nil {
			p.logger.Error("failed to promote ban to deny list",
				"identity", identity,
				"error", err,
			)
		}
	})

	return p
}

// Evaluate decides whether to admit one request from identity on behalf of
// consumer. It reads counters without consuming quota; admitted requests
// consume via Commit after their work succeeds.
func (p *Policy) Evaluate(ctx context.Context, identity, consumer string, now time.Time) Decision {
	start := time.Now()
	decision := p.evaluate(ctx, identity, consumer, now)
	p.metrics.RecordEvaluation(consumer, string(decision.Reason), time.Since(start))

	if !decision.Allowed {
		p.logger.Info("request rejected",
			"identity", identity,
			"consumer", consumer,
			"reason", decision.Reason,
		)
	}
	return decision
}

func (p *Policy) evaluate(ctx context.Context, identity, consumer string, now time.Time) Decision {
	if entry, ok := p.lists.Match(accesslist.TypeDeny, identity); ok {
		p.logger.Debug("deny list match", "identity", identity, "pattern", entry.Pattern)
		return Decision{Reason: ReasonDenyListed}
	}

	if p.geo != nil && len(p.restricted) > 0 {
		country, err := p.geo.Country(ctx, identity)
		if err != nil {
			// An unreachable resolver must not reject; treat as unknown.
			p.logger.Warn("geo resolution failed", "identity", identity, "error", err)
		} else if _, ok := p.restricted[country]; ok {
			return Decision{Reason: ReasonGeoRestricted}
		}
	}

	if _, ok := p.lists.Match(accesslist.TypeAllow, identity); ok {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}

	state, err := p.ledger.Check(ctx, identity)
	if err != nil {
		p.logger.Warn("penalty lookup failed", "identity", identity, "error", err)
		state = nil
	}
	if state != nil {
		if state.Banned {
			// A ban is normally rejected by the deny list mirror above;
			// this path catches a failed promotion or a removed entry.
			// No BlockExpiresAt and no RetryAfter: a ban does not expire.
			return Decision{Reason: ReasonDenyListed}
		}
		if state.Blocked(now) {
			return Decision{
				Reason:         ReasonTemporarilyBlocked,
				BlockExpiresAt: state.BlockExpiresAt,
				RetryAfter:     state.BlockExpiresAt.Sub(now),
			}
		}
	}

	limits := p.limits.LimitsFor(consumer)
	snap := p.coordinator.Peek(ctx, identity, consumer, now)

	if kind, ok := exceeded(snap, limits); ok {
		return p.violation(ctx, identity, consumer, now, snap, limits, kind)
	}

	return Decision{
		Allowed: true,
		Reason:  ReasonAllowed,
		Usage:   snap.Usage,
		Limits:  limits,
		ResetAt: snap.ResetAt,
	}
}

// violation records the violation and builds the rejection, folding in any
// block the violation itself just triggered.
func (p *Policy) violation(ctx context.Context, identity, consumer string, now time.Time, snap ratelimit.Snapshot, limits Limits, kind window.Kind) Decision {
	decision := Decision{
		Reason:     ReasonRateLimitExceeded,
		Usage:      snap.Usage,
		Limits:     limits,
		ResetAt:    snap.ResetAt,
		RetryAfter: snap.ResetAt[kind].Sub(now),
	}

	state, err := p.ledger.RecordViolation(ctx, identity, consumer, now)
	if err != nil {
		// The rejection stands either way; only the escalation is lost.
		p.logger.Warn("failed to record violation", "identity", identity, "error", err)
		return decision
	}

	if !state.Banned && state.Blocked(now) {
		decision.BlockExpiresAt = state.BlockExpiresAt
		if wait := state.BlockExpiresAt.Sub(now); wait > decision.RetryAfter {
			decision.RetryAfter = wait
		}
	}
	return decision
}

// Commit consumes quota for an admitted request. Call exactly once after
// the request's own work succeeded.
func (p *Policy) Commit(ctx context.Context, identity, consumer string, now time.Time) ratelimit.Snapshot {
	return p.coordinator.Consume(ctx, identity, consumer, now)
}

// exceeded returns the first window kind whose usage reached its limit,
// checking kinds in a fixed order so RetryAfter is deterministic.
func exceeded(snap ratelimit.Snapshot, limits Limits) (window.Kind, bool) {
	for _, kind := range window.Kinds() {
		limit, ok := limits[kind]
		if !ok || limit == 0 {
			continue
		}
		if usage, ok := snap.Usage[kind]; ok && usage >= limit {
			return kind, true
		}
	}
	return "", false
}
