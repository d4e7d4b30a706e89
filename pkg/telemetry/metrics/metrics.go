// Package metrics provides Prometheus instrumentation for the admission
// engine. All collectors register against a caller-supplied registry so
// tests can build isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every Prometheus metric the engine emits. All record
// methods are nil-safe, so components can treat a nil *Collector as
// "metrics disabled".
type Collector struct {
	registry *prometheus.Registry

	evaluations   *prometheus.CounterVec
	increments    *prometheus.CounterVec
	fallbackUsed  *prometheus.CounterVec
	failOpenUsed  *prometheus.CounterVec
	violations    *prometheus.CounterVec
	blocksActive  prometheus.Gauge
	sweepDeleted  *prometheus.CounterVec
	sweepFailures *prometheus.CounterVec
	evalDuration  prometheus.Histogram
}

// NewCollector creates a collector registered against registry. If registry
// is nil a fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_evaluations_total",
				Help: "Total number of admission evaluations by decision reason",
			},
			[]string{"consumer", "reason"},
		),

		increments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_counter_increments_total",
				Help: "Total number of window counter increments by tier and result",
			},
			[]string{"tier", "result"},
		),

		fallbackUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_fallback_activations_total",
				Help: "Total number of times the primary counter tier failed and the fallback tier was used",
			},
			[]string{"operation"},
		),

		failOpenUsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_fail_open_total",
				Help: "Total number of times both counter tiers failed and the request was admitted fail-open",
			},
			[]string{"operation"},
		),

		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_violations_total",
				Help: "Total number of rate limit violations recorded in the penalty ledger",
			},
			[]string{"consumer"},
		),

		blocksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatekeeper_blocks_active",
				Help: "Number of identities currently under a temporary block",
			},
		),

		sweepDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_sweep_deleted_total",
				Help: "Total number of entries deleted by janitor sweeps",
			},
			[]string{"store"},
		),

		sweepFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_sweep_failures_total",
				Help: "Total number of failed janitor sweep runs",
			},
			[]string{"store"},
		),

		evalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_evaluation_duration_seconds",
				Help:    "Duration of admission evaluations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.000025, 2, 14), // 25µs to ~400ms
			},
		),
	}

	registry.MustRegister(
		c.evaluations,
		c.increments,
		c.fallbackUsed,
		c.failOpenUsed,
		c.violations,
		c.blocksActive,
		c.sweepDeleted,
		c.sweepFailures,
		c.evalDuration,
	)

	return c
}

// Handler returns the Prometheus exposition handler for this collector's
// registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// RecordEvaluation records one admission decision.
func (c *Collector) RecordEvaluation(consumer, reason string, duration time.Duration) {
	if c == nil {
		return
	}
	c.evaluations.WithLabelValues(consumer, reason).Inc()
	c.evalDuration.Observe(duration.Seconds())
}

// RecordIncrement records a counter increment attempt on a tier.
func (c *Collector) RecordIncrement(tier string, ok bool) {
	if c == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.increments.WithLabelValues(tier, result).Inc()
}

// RecordFallback records that the fallback tier was used for an operation.
func (c *Collector) RecordFallback(operation string) {
	if c == nil {
		return
	}
	c.fallbackUsed.WithLabelValues(operation).Inc()
}

// RecordFailOpen records that both tiers failed and the request proceeded
// without accounting.
func (c *Collector) RecordFailOpen(operation string) {
	if c == nil {
		return
	}
	c.failOpenUsed.WithLabelValues(operation).Inc()
}

// RecordViolation records a rate limit violation.
func (c *Collector) RecordViolation(consumer string) {
	if c == nil {
		return
	}
	c.violations.WithLabelValues(consumer).Inc()
}

// SetActiveBlocks sets the current number of temporarily blocked identities.
func (c *Collector) SetActiveBlocks(n int) {
	if c == nil {
		return
	}
	c.blocksActive.Set(float64(n))
}

// RecordSweep records the outcome of one janitor sweep of a store.
func (c *Collector) RecordSweep(store string, deleted int, failed bool) {
	if c == nil {
		return
	}
	c.sweepDeleted.WithLabelValues(store).Add(float64(deleted))
	if failed {
		c.sweepFailures.WithLabelValues(store).Inc()
	}
}
