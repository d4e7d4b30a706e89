package config

import "time"

// Config is the root configuration structure for Gatekeeper. It contains
// all configuration sections for counter storage, the fallback tier,
// window limits, penalty escalation, geo restriction, the janitor, and
// telemetry.
type Config struct {
	// Storage selects and configures the primary counter storage. The
	// penalty ledger and access lists share the same backend selection.
	Storage StorageConfig `yaml:"storage"`

	// Fallback configures the eventually consistent counter tier used
	// when primary storage is unavailable.
	Fallback FallbackConfig `yaml:"fallback"`

	// Limits contains the per-consumer window limits and the counting
	// behavior of the coordinator.
	Limits LimitsConfig `yaml:"limits"`

	// Penalty configures the violation escalation ladder.
	Penalty PenaltyConfig `yaml:"penalty"`

	// Geo configures country-based restriction.
	Geo GeoConfig `yaml:"geo"`

	// Janitor configures retention sweeps.
	Janitor JanitorConfig `yaml:"janitor"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig selects the primary storage backend.
type StorageConfig struct {
	// Backend specifies the storage backend to use.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file. Counters, penalty
	// state and access lists live in the same file.
	// Default: "data/gatekeeper.db"
	Path string `yaml:"path"`

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// FallbackConfig configures the fallback counter tier.
type FallbackConfig struct {
	// Backend specifies the fallback store.
	// Options: "none", "memory", "redis"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// MaxRetries is the number of additional write attempts after the
	// first failure.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the first retry delay; each attempt doubles it.
	// Default: 50ms
	BackoffBase time.Duration `yaml:"backoff_base"`

	// Redis contains redis-specific configuration.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains redis-specific configuration.
type RedisConfig struct {
	// Addr is the redis server address.
	// Format: "host:port" (e.g., "127.0.0.1:6379")
	Addr string `yaml:"addr"`

	// Password authenticates against the server. Empty disables auth.
	// This should typically be loaded from an environment variable.
	Password string `yaml:"password"`

	// DB is the redis database number.
	// Default: 0
	DB int `yaml:"db"`

	// KeyPrefix namespaces gatekeeper keys on a shared server.
	// Default: "gatekeeper:fallback:"
	KeyPrefix string `yaml:"key_prefix"`
}

// LimitsConfig contains window limit configuration.
type LimitsConfig struct {
	// Timeout bounds each counter storage call.
	// Default: 250ms
	Timeout time.Duration `yaml:"timeout"`

	// CacheEntries bounds the last-known-usage cache used for fail-open.
	// Default: 10000
	CacheEntries int `yaml:"cache_entries"`

	// Defaults are the limits for consumers without an explicit entry.
	Defaults WindowLimits `yaml:"defaults"`

	// Consumers contains per-consumer limit overrides. A consumer listed
	// here uses its entry in full; there is no per-field merge with the
	// defaults.
	Consumers map[string]WindowLimits `yaml:"consumers"`
}

// WindowLimits are the maximum counts per window kind. 0 means unlimited.
type WindowLimits struct {
	// Hourly is the limit for the current clock hour.
	Hourly uint64 `yaml:"hourly"`

	// Daily is the limit for the current UTC day.
	Daily uint64 `yaml:"daily"`

	// Weekly is the limit for the current ISO week.
	Weekly uint64 `yaml:"weekly"`

	// Monthly is the limit for the current calendar month.
	Monthly uint64 `yaml:"monthly"`
}

// PenaltyConfig configures the violation escalation ladder.
type PenaltyConfig struct {
	// SoftThreshold is the violation count at which an identity is
	// flagged as warned.
	// Default: 3
	SoftThreshold uint32 `yaml:"soft_threshold"`

	// HardThreshold is the violation count at which temporary blocks
	// begin.
	// Default: 5
	HardThreshold uint32 `yaml:"hard_threshold"`

	// BanThreshold is the violation count at which the identity is
	// permanently banned.
	// Default: 10
	BanThreshold uint32 `yaml:"ban_threshold"`

	// BlockDuration is the base temporary block length.
	// Default: 1h
	BlockDuration time.Duration `yaml:"block_duration"`

	// MaxBlockDuration caps the scaled block length.
	// Default: 24h
	MaxBlockDuration time.Duration `yaml:"max_block_duration"`
}

// GeoConfig configures country-based restriction.
type GeoConfig struct {
	// RestrictedCountries are ISO 3166-1 alpha-2 codes rejected at the
	// geo step. Empty disables geo restriction.
	RestrictedCountries []string `yaml:"restricted_countries"`

	// Prefixes maps identity prefixes to country codes for the static
	// resolver.
	// Example: "198.18." -> "XX"
	Prefixes map[string]string `yaml:"prefixes"`
}

// JanitorConfig configures retention sweeps.
type JanitorConfig struct {
	// Schedule is a cron expression for sweep scheduling. Empty
	// disables scheduled sweeps.
	// Default: "0 * * * *" (hourly)
	Schedule string `yaml:"schedule"`

	// CounterRetention is how long untouched counter entries survive
	// past their window.
	// Default: 840h (35 days)
	CounterRetention time.Duration `yaml:"counter_retention"`

	// PenaltyRetention is how long violation-free penalty state
	// survives.
	// Default: 720h (30 days)
	PenaltyRetention time.Duration `yaml:"penalty_retention"`

	// SweepTimeout bounds one full sweep.
	// Default: 5m
	SweepTimeout time.Duration `yaml:"sweep_timeout"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics exposition configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics exposition configuration.
type MetricsConfig struct {
	// Enabled controls whether the Prometheus endpoint is served.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address for the metrics listener.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}
