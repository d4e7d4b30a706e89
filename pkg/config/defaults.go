package config

import "time"

// Default values for configuration fields.
const (
	// Storage defaults
	DefaultStorageBackend     = "memory"
	DefaultSQLitePath         = "data/gatekeeper.db"
	DefaultCheckpointInterval = 5 * time.Minute
	DefaultBusyTimeout        = 5 * time.Second

	// Fallback defaults
	DefaultFallbackBackend     = "memory"
	DefaultFallbackMaxRetries  = 3
	DefaultFallbackBackoffBase = 50 * time.Millisecond
	DefaultRedisKeyPrefix      = "gatekeeper:fallback:"

	// Limits defaults
	DefaultLimitTimeout      = 250 * time.Millisecond
	DefaultLimitCacheEntries = 10000

	// Penalty defaults
	DefaultSoftThreshold    = uint32(3)
	DefaultHardThreshold    = uint32(5)
	DefaultBanThreshold     = uint32(10)
	DefaultBlockDuration    = time.Hour
	DefaultMaxBlockDuration = 24 * time.Hour

	// Janitor defaults
	DefaultJanitorSchedule  = "0 * * * *"
	DefaultCounterRetention = 35 * 24 * time.Hour
	DefaultPenaltyRetention = 30 * 24 * time.Hour
	DefaultSweepTimeout     = 5 * time.Minute

	// Telemetry defaults
	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
)

// ApplyDefaults fills zero-valued configuration fields with their
// defaults. Boolean fields that default to true are handled by Default();
// ApplyDefaults cannot tell "false" from "unset".
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.CheckpointInterval == 0 {
		cfg.Storage.SQLite.CheckpointInterval = DefaultCheckpointInterval
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultBusyTimeout
	}

	if cfg.Fallback.Backend == "" {
		cfg.Fallback.Backend = DefaultFallbackBackend
	}
	if cfg.Fallback.MaxRetries == 0 {
		cfg.Fallback.MaxRetries = DefaultFallbackMaxRetries
	}
	if cfg.Fallback.BackoffBase == 0 {
		cfg.Fallback.BackoffBase = DefaultFallbackBackoffBase
	}
	if cfg.Fallback.Redis.KeyPrefix == "" {
		cfg.Fallback.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	if cfg.Limits.Timeout == 0 {
		cfg.Limits.Timeout = DefaultLimitTimeout
	}
	if cfg.Limits.CacheEntries == 0 {
		cfg.Limits.CacheEntries = DefaultLimitCacheEntries
	}

	if cfg.Penalty.SoftThreshold == 0 {
		cfg.Penalty.SoftThreshold = DefaultSoftThreshold
	}
	if cfg.Penalty.HardThreshold == 0 {
		cfg.Penalty.HardThreshold = DefaultHardThreshold
	}
	if cfg.Penalty.BanThreshold == 0 {
		cfg.Penalty.BanThreshold = DefaultBanThreshold
	}
	if cfg.Penalty.BlockDuration == 0 {
		cfg.Penalty.BlockDuration = DefaultBlockDuration
	}
	if cfg.Penalty.MaxBlockDuration == 0 {
		cfg.Penalty.MaxBlockDuration = DefaultMaxBlockDuration
	}

	if cfg.Janitor.Schedule == "" {
		cfg.Janitor.Schedule = DefaultJanitorSchedule
	}
	if cfg.Janitor.CounterRetention == 0 {
		cfg.Janitor.CounterRetention = DefaultCounterRetention
	}
	if cfg.Janitor.PenaltyRetention == 0 {
		cfg.Janitor.PenaltyRetention = DefaultPenaltyRetention
	}
	if cfg.Janitor.SweepTimeout == 0 {
		cfg.Janitor.SweepTimeout = DefaultSweepTimeout
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	ApplyDefaults(cfg)
	return cfg
}
