// Package telemetry provides observability for Gatekeeper.
//
// # Components
//
//   - logging: structured logging on log/slog with configurable level
//     and format
//   - metrics: Prometheus metrics for evaluations, counter tiers,
//     violations and sweeps
//   - health: liveness and readiness probe endpoints
//
// Components receive a *slog.Logger and a *metrics.Collector at
// construction; both may be nil, which disables the concern without
// branching at call sites.
package telemetry
