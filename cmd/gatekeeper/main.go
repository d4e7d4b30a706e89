// Gatekeeper is a per-identity admission control engine.
//
// It tracks request usage across hourly, daily, weekly and monthly
// windows, enforces per-consumer limits, escalates repeat violators
// through warnings, temporary blocks and permanent bans, and applies
// allow/deny list and country-based restrictions.
//
// Usage:
//
//	# Start the engine with default configuration
//	gatekeeper run
//
//	# Start with a custom configuration file
//	gatekeeper run --config /etc/gatekeeper/config.yaml
//
//	# Evaluate a single identity without starting the engine
//	gatekeeper check 203.0.113.5 chat
//
//	# Manage allow and deny lists
//	gatekeeper admin deny add "203.0.113.*" --reason "abuse"
//
//	# Run a retention sweep once and exit
//	gatekeeper sweep
//
//	# Show version information
//	gatekeeper version
package main

func main() {
	Execute()
}
