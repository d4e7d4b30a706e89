package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/gatekeeper/pkg/accesslist"
	"mercator-hq/gatekeeper/pkg/cli"
	"mercator-hq/gatekeeper/pkg/window"
)

var adminFlags struct {
	reason string
	output string
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage allow/deny lists and penalty state",
	Long: `Manage the engine's protective state: allow and deny list entries,
temporary blocks and permanent bans.

Patterns match identities exactly, or as a prefix when they end in "*".

Examples:
  # Deny a whole prefix
  gatekeeper admin deny add "203.0.113.*" --reason "abuse"

  # Exempt an internal service from limits
  gatekeeper admin allow add 10.0.0.7 --reason "health checker"

  # Unban an identity (removes the deny entry and the ban record)
  gatekeeper admin deny remove 203.0.113.5
  gatekeeper admin unblock 203.0.113.5

  # Show protective state counts
  gatekeeper admin stats`,
}

func init() {
	rootCmd.AddCommand(adminCmd)

	adminCmd.PersistentFlags().StringVar(&adminFlags.reason, "reason", "", "reason recorded with the entry")
	adminCmd.PersistentFlags().StringVarP(&adminFlags.output, "output", "o", "text", "output format (text, json)")

	adminCmd.AddCommand(listCmd(accesslist.TypeAllow))
	adminCmd.AddCommand(listCmd(accesslist.TypeDeny))
	adminCmd.AddCommand(unblockCmd)
	adminCmd.AddCommand(inspectCmd)
	adminCmd.AddCommand(statsCmd)
}

// listCmd builds the allow/deny command trees; the two differ only in the
// list they target.
func listCmd(list accesslist.Type) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(list),
		Short: fmt.Sprintf("Manage the %s list", list),
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <pattern>",
		Short: fmt.Sprintf("Add a pattern to the %s list", list),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.SetupSignalHandler()
			eng, err := openEngine(ctx)
			if err != nil {
				return cli.NewCommandError("admin", err)
			}
			defer eng.Close()

			entry, err := eng.lists.Add(ctx, list, args[0], adminFlags.reason, "admin")
			if err != nil {
				return cli.NewCommandError("admin", err)
			}
			fmt.Printf("✓ Added %q to %s list (id: %s)\n", entry.Pattern, list, entry.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <pattern>",
		Short: fmt.Sprintf("Remove a pattern from the %s list", list),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.SetupSignalHandler()
			eng, err := openEngine(ctx)
			if err != nil {
				return cli.NewCommandError("admin", err)
			}
			defer eng.Close()

			removed, err := eng.lists.Remove(ctx, list, args[0])
			if err != nil {
				return cli.NewCommandError("admin", err)
			}
			if !removed {
				fmt.Printf("Pattern %q not found on %s list\n", args[0], list)
				return nil
			}
			fmt.Printf("✓ Removed %q from %s list\n", args[0], list)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: fmt.Sprintf("Show the %s list", list),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cli.SetupSignalHandler()
			eng, err := openEngine(ctx)
			if err != nil {
				return cli.NewCommandError("admin", err)
			}
			defer eng.Close()

			entries, err := eng.lists.Entries(ctx, list)
			if err != nil {
				return cli.NewCommandError("admin", err)
			}

			if cli.OutputFormat(adminFlags.output) == cli.FormatJSON {
				return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, entries)
			}
			if len(entries) == 0 {
				fmt.Printf("%s list is empty\n", list)
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%-30s added by %s at %s", e.Pattern, e.AddedBy, e.AddedAt.Format(time.RFC3339))
				if e.Reason != "" {
					fmt.Printf("  (%s)", e.Reason)
				}
				fmt.Println()
			}
			return nil
		},
	})

	return cmd
}

var unblockCmd = &cobra.Command{
	Use:   "unblock <identity>",
	Short: "Clear penalty state for an identity",
	Long: `Clear penalty state for an identity, lifting any temporary block and
resetting its violation count and ban flag.

A permanently banned identity also has a deny list entry; remove that
separately with "admin deny remove" to fully readmit it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.SetupSignalHandler()
		eng, err := openEngine(ctx)
		if err != nil {
			return cli.NewCommandError("admin", err)
		}
		defer eng.Close()

		if err := eng.policy.ClearBlocks(ctx, args[0]); err != nil {
			return cli.NewCommandError("admin", err)
		}
		fmt.Printf("✓ Cleared penalty state for %s\n", args[0])
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <identity> <consumer>",
	Short: "Show one identity's usage, penalty state and list membership",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.SetupSignalHandler()
		eng, err := openEngine(ctx)
		if err != nil {
			return cli.NewCommandError("admin", err)
		}
		defer eng.Close()

		report, err := eng.policy.Inspect(ctx, args[0], args[1], time.Now().UTC())
		if err != nil {
			return cli.NewCommandError("admin", err)
		}

		if cli.OutputFormat(adminFlags.output) == cli.FormatJSON {
			return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, report)
		}
		fmt.Printf("%s (consumer: %s)\n", report.Identity, report.Consumer)
		fmt.Printf("  phase: %s", report.Phase)
		if report.Penalty != nil {
			fmt.Printf(" (%d violations)", report.Penalty.ViolationCount)
		}
		fmt.Println()
		for _, kind := range window.Kinds() {
			limit, limited := report.Limits[kind]
			if !limited {
				continue
			}
			fmt.Printf("  %-8s %d/%d (resets %s)\n",
				kind, report.Usage[kind], limit, report.ResetAt[kind].Format(time.RFC3339))
		}
		if report.OnAllowList {
			fmt.Println("  on allow list")
		}
		if report.OnDenyList {
			fmt.Println("  on deny list")
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show protective state counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.SetupSignalHandler()
		eng, err := openEngine(ctx)
		if err != nil {
			return cli.NewCommandError("admin", err)
		}
		defer eng.Close()

		analytics, err := eng.policy.Snapshot(ctx, time.Now().UTC())
		if err != nil {
			return cli.NewCommandError("admin", err)
		}

		if cli.OutputFormat(adminFlags.output) == cli.FormatJSON {
			return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, analytics)
		}
		fmt.Printf("Allow list entries:   %d\n", analytics.AllowEntries)
		fmt.Printf("Deny list entries:    %d\n", analytics.DenyEntries)
		fmt.Printf("Active blocks:        %d\n", analytics.ActiveBlocks)
		fmt.Printf("Permanently banned:   %d\n", analytics.BannedForever)
		return nil
	},
}
