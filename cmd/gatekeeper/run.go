package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/gatekeeper/pkg/cli"
	"mercator-hq/gatekeeper/pkg/config"
	"mercator-hq/gatekeeper/pkg/telemetry/health"
	"mercator-hq/gatekeeper/pkg/telemetry/logging"
	"mercator-hq/gatekeeper/pkg/telemetry/metrics"
	"mercator-hq/gatekeeper/pkg/window"
)

// newHealthChecker registers readiness checks against the engine's
// storage surfaces.
func newHealthChecker(eng *engine) *health.Checker {
	checker := health.New(5 * time.Second)

	checker.RegisterCheck("counters", func(ctx context.Context) error {
		_, err := eng.counters.Read(ctx, "health-probe", window.KindHourly, "health", time.Now().UTC())
		return err
	})
	checker.RegisterCheck("penalties", func(ctx context.Context) error {
		_, err := eng.ledger.Check(ctx, "health-probe")
		return err
	})
	if eng.fallbackCtr != nil {
		checker.RegisterCheck("fallback", func(ctx context.Context) error {
			_, err := eng.fallbackCtr.Read(ctx, "health-probe", window.KindHourly, "health", time.Now().UTC())
			return err
		})
	}
	return checker
}

var runFlags struct {
	logLevel      string
	metricsListen string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Gatekeeper admission engine",
	Long: `Start the Gatekeeper admission engine with the specified configuration.

The engine opens counter, penalty and access list storage, starts the
retention janitor, serves Prometheus metrics, and watches the
configuration file so limit changes apply without a restart.

Examples:
  # Start with default config
  gatekeeper run

  # Start with custom config
  gatekeeper run --config /etc/gatekeeper/config.yaml

  # Override the metrics listen address
  gatekeeper run --metrics-listen 0.0.0.0:9090

  # Validate config without starting the engine
  gatekeeper run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&runFlags.metricsListen, "metrics-listen", "", "override metrics listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the engine")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if runFlags.metricsListen != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.metricsListen
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Gatekeeper v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector(nil)

	eng, err := buildEngine(ctx, cfg, logger, collector)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer eng.Close()
	fmt.Printf("✓ Storage initialized (backend: %s, fallback: %s)\n",
		cfg.Storage.Backend, cfg.Fallback.Backend)

	// Retention janitor
	if err := eng.janitor.Start(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to start janitor: %w", err))
	}
	defer eng.janitor.Stop()
	if next := eng.janitor.NextRun(); next != nil {
		fmt.Printf("✓ Janitor scheduled (next sweep: %s)\n", next.Format(time.RFC3339))
	}

	errChan := make(chan error, 1)

	// Metrics and health endpoints
	var metricsSrv *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
		health.HTTPMiddleware(mux, newHealthChecker(eng), Version, GitCommit, BuildDate)
		metricsSrv = &http.Server{
			Addr:    cfg.Telemetry.Metrics.ListenAddress,
			Handler: mux,
		}
		go func() {
			slog.Info("starting metrics listener",
				"address", cfg.Telemetry.Metrics.ListenAddress,
				"path", cfg.Telemetry.Metrics.Path,
			)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics listener error: %w", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n",
			cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	// Configuration hot reload
	watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
		eng.limits.Update(next)
		slog.Info("window limits updated from configuration reload")
	}, logger)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to create config watcher: %w", err))
	}
	go func() {
		if err := watcher.Watch(ctx); err != nil {
			slog.Error("config watcher exited", "error", err)
		}
	}()
	defer watcher.Stop()
	fmt.Println("✓ Config watcher started")

	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or component error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		if metricsSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics listener shutdown failed", "error", err)
			}
		}

		fmt.Println("✓ Engine stopped")
		return nil
	}
}
