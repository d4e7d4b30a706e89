// Package config provides configuration management for Gatekeeper.
//
// This package handles loading, validating, and managing configuration
// from YAML files with environment variable overrides. It provides a
// type-safe configuration system with comprehensive validation and
// sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention
// GATEKEEPER_SECTION_FIELD. For example:
//
//   - GATEKEEPER_STORAGE_BACKEND overrides storage.backend
//   - GATEKEEPER_FALLBACK_REDIS_ADDR overrides fallback.redis.addr
//   - GATEKEEPER_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based
// configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later
// overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All configuration is validated automatically during loading. Validation
// errors include field paths and helpful messages:
//
//	configuration validation failed with 2 errors:
//	  - storage.backend: unknown backend "postgres" (options: memory, sqlite)
//	  - penalty.soft_threshold: soft threshold 8 exceeds hard threshold 5
//
// # Hot Reload
//
// Watcher watches the configuration file and re-runs the full load
// pipeline on change. A revision that fails to parse or validate is
// logged and skipped, keeping the previous configuration in force. The
// LimitProvider swaps reloaded limits in atomically, so changed limits
// apply from the next evaluation without a restart.
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	storage:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/gatekeeper.db"
//
//	limits:
//	  defaults:
//	    hourly: 100
//	    daily: 1000
//	  consumers:
//	    chat:
//	      hourly: 30
//
//	penalty:
//	  soft_threshold: 3
//	  hard_threshold: 5
//	  ban_threshold: 10
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
