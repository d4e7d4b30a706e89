package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow
// the naming convention GATEKEEPER_SECTION_FIELD
// (e.g., GATEKEEPER_STORAGE_BACKEND) and always take precedence over
// file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration.
func applyEnvOverrides(cfg *Config) {
	// Storage overrides
	if val := os.Getenv("GATEKEEPER_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("GATEKEEPER_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLite.Path = val
	}
	if val := os.Getenv("GATEKEEPER_STORAGE_SQLITE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.SQLite.BusyTimeout = d
		}
	}

	// Fallback overrides
	if val := os.Getenv("GATEKEEPER_FALLBACK_BACKEND"); val != "" {
		cfg.Fallback.Backend = val
	}
	if val := os.Getenv("GATEKEEPER_FALLBACK_REDIS_ADDR"); val != "" {
		cfg.Fallback.Redis.Addr = val
	}
	if val := os.Getenv("GATEKEEPER_FALLBACK_REDIS_PASSWORD"); val != "" {
		cfg.Fallback.Redis.Password = val
	}
	if val := os.Getenv("GATEKEEPER_FALLBACK_REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Fallback.Redis.DB = i
		}
	}

	// Limits overrides
	if val := os.Getenv("GATEKEEPER_LIMITS_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Limits.Timeout = d
		}
	}

	// Penalty overrides
	if val := os.Getenv("GATEKEEPER_PENALTY_SOFT_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Penalty.SoftThreshold = uint32(i)
		}
	}
	if val := os.Getenv("GATEKEEPER_PENALTY_HARD_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Penalty.HardThreshold = uint32(i)
		}
	}
	if val := os.Getenv("GATEKEEPER_PENALTY_BAN_THRESHOLD"); val != "" {
		if i, err := strconv.ParseUint(val, 10, 32); err == nil {
			cfg.Penalty.BanThreshold = uint32(i)
		}
	}
	if val := os.Getenv("GATEKEEPER_PENALTY_BLOCK_DURATION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Penalty.BlockDuration = d
		}
	}

	// Janitor overrides
	if val := os.Getenv("GATEKEEPER_JANITOR_SCHEDULE"); val != "" {
		cfg.Janitor.Schedule = val
	}

	// Telemetry overrides
	if val := os.Getenv("GATEKEEPER_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("GATEKEEPER_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("GATEKEEPER_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("GATEKEEPER_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
}
