package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration
// field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a
// ValidationError if any validation rules fail. All validation errors are
// collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateFallback(&cfg.Fallback)...)
	errs = append(errs, validatePenalty(&cfg.Penalty)...)
	errs = append(errs, validateGeo(&cfg.Geo)...)
	errs = append(errs, validateJanitor(&cfg.Janitor)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q (options: memory, sqlite)", cfg.Backend),
		})
	}
	return errs
}

func validateFallback(cfg *FallbackConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "none", "memory":
	case "redis":
		if cfg.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "fallback.redis.addr",
				Message: "addr is required for the redis backend",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "fallback.backend",
			Message: fmt.Sprintf("unknown backend %q (options: none, memory, redis)", cfg.Backend),
		})
	}

	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{
			Field:   "fallback.max_retries",
			Message: "must not be negative",
		})
	}
	return errs
}

func validatePenalty(cfg *PenaltyConfig) []FieldError {
	var errs []FieldError

	if cfg.SoftThreshold > cfg.HardThreshold {
		errs = append(errs, FieldError{
			Field:   "penalty.soft_threshold",
			Message: fmt.Sprintf("soft threshold %d exceeds hard threshold %d", cfg.SoftThreshold, cfg.HardThreshold),
		})
	}
	if cfg.HardThreshold > cfg.BanThreshold {
		errs = append(errs, FieldError{
			Field:   "penalty.hard_threshold",
			Message: fmt.Sprintf("hard threshold %d exceeds ban threshold %d", cfg.HardThreshold, cfg.BanThreshold),
		})
	}
	if cfg.BlockDuration > cfg.MaxBlockDuration {
		errs = append(errs, FieldError{
			Field:   "penalty.block_duration",
			Message: fmt.Sprintf("block duration %v exceeds maximum %v", cfg.BlockDuration, cfg.MaxBlockDuration),
		})
	}
	return errs
}

func validateGeo(cfg *GeoConfig) []FieldError {
	var errs []FieldError

	for i, country := range cfg.RestrictedCountries {
		if len(country) != 2 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("geo.restricted_countries[%d]", i),
				Message: fmt.Sprintf("%q is not a two-letter country code", country),
			})
		}
	}
	return errs
}

func validateJanitor(cfg *JanitorConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "janitor.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("unknown level %q (options: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("unknown format %q (options: json, text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.listen_address",
			Message: "listen address is required when metrics are enabled",
		})
	}
	return errs
}
