package config

import (
	"sync"

	"mercator-hq/gatekeeper/pkg/policy"
	"mercator-hq/gatekeeper/pkg/window"
)

// LimitProvider serves per-consumer window limits to the policy engine
// and supports atomic replacement on configuration reload.
type LimitProvider struct {
	mu        sync.RWMutex
	defaults  policy.Limits
	consumers map[string]policy.Limits
}

// NewLimitProvider creates a provider from the limits section of cfg.
func NewLimitProvider(cfg *Config) *LimitProvider {
	p := &LimitProvider{}
	p.Update(cfg)
	return p
}

// LimitsFor returns the limits for consumer: its own entry if one is
// configured, the defaults otherwise.
func (p *LimitProvider) LimitsFor(consumer string) policy.Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if limits, ok := p.consumers[consumer]; ok {
		return limits
	}
	return p.defaults
}

// Update atomically replaces the served limits from cfg. Called by the
// config watcher on reload.
func (p *LimitProvider) Update(cfg *Config) {
	consumers := make(map[string]policy.Limits, len(cfg.Limits.Consumers))
	for consumer, limits := range cfg.Limits.Consumers {
		consumers[consumer] = limits.ToLimits()
	}
	defaults := cfg.Limits.Defaults.ToLimits()

	p.mu.Lock()
	p.defaults = defaults
	p.consumers = consumers
	p.mu.Unlock()
}

// ToLimits converts the YAML shape to the policy engine's limit map,
// dropping unlimited (zero) kinds.
func (w WindowLimits) ToLimits() policy.Limits {
	limits := policy.Limits{}
	if w.Hourly > 0 {
		limits[window.KindHourly] = w.Hourly
	}
	if w.Daily > 0 {
		limits[window.KindDaily] = w.Daily
	}
	if w.Weekly > 0 {
		limits[window.KindWeekly] = w.Weekly
	}
	if w.Monthly > 0 {
		limits[window.KindMonthly] = w.Monthly
	}
	return limits
}
