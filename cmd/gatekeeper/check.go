package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/gatekeeper/pkg/cli"
	"mercator-hq/gatekeeper/pkg/policy"
	"mercator-hq/gatekeeper/pkg/window"
)

var checkFlags struct {
	commit bool
	output string
}

var checkCmd = &cobra.Command{
	Use:   "check <identity> <consumer>",
	Short: "Evaluate a single identity against the admission policy",
	Long: `Evaluate a single identity against the admission policy and print the
decision. Evaluation alone never counts against the limits; pass
--commit to record the request as consumed when it is admitted.

Examples:
  # Would this request be admitted?
  gatekeeper check 203.0.113.5 chat

  # Admit and count the request
  gatekeeper check 203.0.113.5 chat --commit

  # Machine-readable output
  gatekeeper check 203.0.113.5 chat --output json`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkFlags.commit, "commit", false, "count the request when admitted")
	checkCmd.Flags().StringVarP(&checkFlags.output, "output", "o", "text", "output format (text, json)")
}

// checkResult is the JSON shape of one check invocation.
type checkResult struct {
	Identity   string                    `json:"identity"`
	Consumer   string                    `json:"consumer"`
	Allowed    bool                      `json:"allowed"`
	Reason     policy.Reason             `json:"reason"`
	Usage      map[window.Kind]uint64    `json:"usage,omitempty"`
	Limits     policy.Limits             `json:"limits,omitempty"`
	ResetAt    map[window.Kind]time.Time `json:"resetAt,omitempty"`
	RetryAfter string                    `json:"retryAfter,omitempty"`
	Committed  bool                      `json:"committed"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	identity, consumer := args[0], args[1]

	ctx := cli.SetupSignalHandler()
	eng, err := openEngine(ctx)
	if err != nil {
		return cli.NewCommandError("check", err)
	}
	defer eng.Close()

	now := time.Now().UTC()
	decision := eng.policy.Evaluate(ctx, identity, consumer, now)

	committed := false
	if decision.Allowed && checkFlags.commit {
		eng.policy.Commit(ctx, identity, consumer, now)
		committed = true
	}

	result := checkResult{
		Identity:  identity,
		Consumer:  consumer,
		Allowed:   decision.Allowed,
		Reason:    decision.Reason,
		Usage:     decision.Usage,
		Limits:    decision.Limits,
		ResetAt:   decision.ResetAt,
		Committed: committed,
	}
	if decision.RetryAfter > 0 {
		result.RetryAfter = decision.RetryAfter.String()
	}

	if cli.OutputFormat(checkFlags.output) == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, result)
	}

	printCheckText(result)

	if !decision.Allowed {
		// Nonzero exit so scripts can branch on the decision.
		eng.Close()
		os.Exit(2)
	}
	return nil
}

func printCheckText(r checkResult) {
	if r.Allowed {
		fmt.Printf("✓ ALLOWED  %s (consumer: %s)\n", r.Identity, r.Consumer)
	} else {
		fmt.Printf("✗ %s  %s (consumer: %s)\n", r.Reason, r.Identity, r.Consumer)
	}
	for _, kind := range window.Kinds() {
		limit, limited := r.Limits[kind]
		if !limited {
			continue
		}
		fmt.Printf("  %-8s %d/%d (resets %s)\n",
			kind, r.Usage[kind], limit, r.ResetAt[kind].Format(time.RFC3339))
	}
	if r.RetryAfter != "" {
		fmt.Printf("  retry after %s\n", r.RetryAfter)
	}
	if r.Committed {
		fmt.Println("  request counted")
	}
}
