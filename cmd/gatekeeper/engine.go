package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/gatekeeper/pkg/accesslist"
	"mercator-hq/gatekeeper/pkg/config"
	"mercator-hq/gatekeeper/pkg/counter"
	"mercator-hq/gatekeeper/pkg/counter/fallback"
	"mercator-hq/gatekeeper/pkg/janitor"
	"mercator-hq/gatekeeper/pkg/penalty"
	"mercator-hq/gatekeeper/pkg/policy"
	"mercator-hq/gatekeeper/pkg/ratelimit"
	"mercator-hq/gatekeeper/pkg/telemetry/logging"
	"mercator-hq/gatekeeper/pkg/telemetry/metrics"
)

// openEngine loads the configuration and builds an engine for one-shot
// commands (check, admin, sweep). Logging stays at warn level unless
// --verbose is set, so command output is not drowned in engine logs.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{
		Level:  level,
		Format: "text",
	})
	if err != nil {
		return nil, err
	}

	return buildEngine(ctx, cfg, logger, metrics.NewCollector(nil))
}

// engine bundles the wired components so the run, check, admin and sweep
// commands share one construction path.
type engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	collector *metrics.Collector

	limits      *config.LimitProvider
	counters    *counter.Store
	fallbackCtr *fallback.Counter
	coordinator *ratelimit.Coordinator
	ledger      *penalty.Ledger
	lists       *accesslist.Lists
	policy      *policy.Policy
	janitor     *janitor.Janitor
}

// buildEngine constructs the full admission engine from configuration.
// The caller owns the result and must call Close.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, collector *metrics.Collector) (*engine, error) {
	e := &engine{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		limits:    config.NewLimitProvider(cfg),
	}

	// Primary counter storage.
	var backend counter.Backend
	switch cfg.Storage.Backend {
	case "sqlite":
		var err error
		backend, err = counter.NewSQLiteBackendWithConfig(counter.SQLiteBackendConfig{
			DBPath:             cfg.Storage.SQLite.Path,
			CheckpointInterval: cfg.Storage.SQLite.CheckpointInterval,
			BusyTimeout:        cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open counter storage: %w", err)
		}
	default:
		backend = counter.NewMemoryBackend()
	}
	e.counters = counter.NewStore(backend, logger)

	// Fallback tier. "none" runs the coordinator on the primary alone.
	var secondary ratelimit.Tier
	switch cfg.Fallback.Backend {
	case "none":
	case "redis":
		store, err := fallback.NewRedisStore(fallback.RedisConfig{
			Addr:      cfg.Fallback.Redis.Addr,
			Password:  cfg.Fallback.Redis.Password,
			DB:        cfg.Fallback.Redis.DB,
			KeyPrefix: cfg.Fallback.Redis.KeyPrefix,
		})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to connect to redis fallback: %w", err)
		}
		e.fallbackCtr = fallback.New(store, fallbackConfig(cfg), logger)
	default:
		e.fallbackCtr = fallback.New(fallback.NewMemoryStore(), fallbackConfig(cfg), logger)
	}
	if e.fallbackCtr != nil {
		secondary = e.fallbackCtr
	}

	e.coordinator = ratelimit.NewCoordinator(e.counters, secondary, ratelimit.Config{
		Timeout:      cfg.Limits.Timeout,
		CacheEntries: cfg.Limits.CacheEntries,
	}, logger, collector)

	// Penalty ledger.
	var penaltyStore penalty.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		var err error
		penaltyStore, err = penalty.NewSQLiteStoreWithConfig(penalty.SQLiteStoreConfig{
			DBPath:      cfg.Storage.SQLite.Path,
			BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to open penalty storage: %w", err)
		}
	default:
		penaltyStore = penalty.NewMemoryStore()
	}
	e.ledger = penalty.NewLedger(penaltyStore, penalty.Thresholds{
		Soft:             cfg.Penalty.SoftThreshold,
		Hard:             cfg.Penalty.HardThreshold,
		Ban:              cfg.Penalty.BanThreshold,
		BlockDuration:    cfg.Penalty.BlockDuration,
		MaxBlockDuration: cfg.Penalty.MaxBlockDuration,
	}, logger, collector)

	// Allow and deny lists.
	var listStore accesslist.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		var err error
		listStore, err = accesslist.NewSQLiteStore(cfg.Storage.SQLite.Path)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to open access list storage: %w", err)
		}
	default:
		listStore = accesslist.NewMemoryStore()
	}
	lists, err := accesslist.NewLists(ctx, listStore, logger)
	if err != nil {
		listStore.Close()
		e.Close()
		return nil, fmt.Errorf("failed to load access lists: %w", err)
	}
	e.lists = lists

	e.policy = policy.New(
		e.limits,
		e.coordinator,
		e.ledger,
		e.lists,
		policy.NewPrefixGeoResolver(cfg.Geo.Prefixes),
		policy.Config{RestrictedCountries: cfg.Geo.RestrictedCountries},
		logger,
		collector,
	)

	var sweeper janitor.FallbackSweeper
	if e.fallbackCtr != nil {
		sweeper = e.fallbackCtr
	}
	e.janitor = janitor.New(e.counters, sweeper, e.ledger, janitor.Config{
		Schedule:         cfg.Janitor.Schedule,
		CounterRetention: cfg.Janitor.CounterRetention,
		PenaltyRetention: cfg.Janitor.PenaltyRetention,
		SweepTimeout:     cfg.Janitor.SweepTimeout,
	}, logger, collector)

	return e, nil
}

func fallbackConfig(cfg *config.Config) fallback.Config {
	return fallback.Config{
		MaxRetries:  cfg.Fallback.MaxRetries,
		BackoffBase: cfg.Fallback.BackoffBase,
	}
}

// Close releases every component that was successfully constructed.
func (e *engine) Close() error {
	var errs []error
	if e.lists != nil {
		if err := e.lists.Close(); err != nil {
			errs = append(errs, fmt.Errorf("access lists: %w", err))
		}
	}
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("penalty ledger: %w", err))
		}
	}
	if e.fallbackCtr != nil {
		if err := e.fallbackCtr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("fallback counter: %w", err))
		}
	}
	if e.counters != nil {
		if err := e.counters.Close(); err != nil {
			errs = append(errs, fmt.Errorf("counter store: %w", err))
		}
	}
	return errors.Join(errs...)
}
