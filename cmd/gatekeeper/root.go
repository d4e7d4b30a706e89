package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper - per-identity admission control engine",
	Long: `Gatekeeper is an admission control engine that decides, per identity,
whether a request should be admitted.

It provides:
  - Fixed-window usage counting (hourly, daily, weekly, monthly)
  - Per-consumer window limits with hot reload
  - Violation escalation: warnings, temporary blocks, permanent bans
  - Allow/deny lists with prefix wildcard patterns
  - Country-based restriction
  - Fail-open counting when storage is unavailable`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
