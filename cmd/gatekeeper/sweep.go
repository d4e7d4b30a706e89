package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/gatekeeper/pkg/cli"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a retention sweep once and exit",
	Long: `Run one retention sweep over counter, fallback and penalty storage
using the configured retention periods, then exit.

The running engine sweeps on its own schedule; this command exists for
operators who disable the schedule or want an immediate sweep.`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cli.SetupSignalHandler()
	eng, err := openEngine(ctx)
	if err != nil {
		return cli.NewCommandError("sweep", err)
	}
	defer eng.Close()

	started := time.Now()
	report, err := eng.janitor.RunOnce(ctx, started.UTC())
	if err != nil {
		return cli.NewCommandError("sweep", err)
	}

	fmt.Printf("✓ Sweep complete in %s\n", time.Since(started).Round(time.Millisecond))
	fmt.Printf("  counters: %d deleted", report.Counters.Deleted)
	if report.Counters.UnknownAge > 0 {
		fmt.Printf(" (%d skipped, age unknown)", report.Counters.UnknownAge)
	}
	if report.Counters.Errors > 0 {
		fmt.Printf(" (%d errors)", report.Counters.Errors)
	}
	fmt.Println()
	fmt.Printf("  fallback: %d deleted\n", report.Fallback)
	fmt.Printf("  penalty:  %d deleted\n", report.Penalty)
	return nil
}
