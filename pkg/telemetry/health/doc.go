// Package health provides health check endpoints for Gatekeeper.
//
// # Overview
//
// The health package implements liveness and readiness probes for
// Kubernetes and other orchestration systems, along with a version
// information endpoint. Components register check functions; the checker
// runs them concurrently with a per-check timeout and aggregates the
// results.
//
// # Endpoints
//
// The package provides three endpoints, served from the metrics listener:
//
//   - /health: Liveness probe - indicates if the process is running
//   - /ready: Readiness probe - indicates if the engine can serve decisions
//   - /version: Build information - version, commit, build time
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//
//	checker.RegisterCheck("counters", func(ctx context.Context) error {
//	    _, err := counters.Read(ctx, "health-probe", window.KindHourly, "health", time.Now().UTC())
//	    return err
//	})
//
//	mux := http.NewServeMux()
//	health.HTTPMiddleware(mux, checker, version, commit, buildDate)
//
// # Liveness vs Readiness
//
// The liveness probe only confirms the process is alive and always
// returns 200. The readiness probe runs every registered check and
// returns 503 when any component is unhealthy, so orchestrators stop
// routing admission traffic to a degraded instance.
//
// The engine itself fails open when counter storage is down; a degraded
// readiness result signals reduced counting precision, not refusal to
// decide.
//
// # Component Health Checks
//
// Gatekeeper registers checks for its storage surfaces:
//   - counters: primary window counter storage responds to a read
//   - penalties: the penalty ledger responds to a lookup
//   - fallback: the fallback counter tier responds (when configured)
package health
