package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/cli"
	"github.com/weft-testbed/weft/pkg/health"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var runHealth bool

	cmd := &cobra.Command{
		Use:   "status <slice>",
		Short: "Refresh and show live slice state",
		Long: `Query the control framework for the slice's current reservation
state, merge it into the local record, and show the result.

With --health, additionally runs health checks (reservations,
addresses, lease, SSH reachability) against the refreshed slice.

  weft status demo
  weft status demo --health`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			slice, err := loadSlice(ctx, store, args[0])
			if err != nil {
				return err
			}
			if slice.ID() == "" {
				return fmt.Errorf("slice %s was never submitted", slice.Name())
			}

			client, err := newOrchestratorClient()
			if err != nil {
				return err
			}
			snap, err := client.Query(ctx, slice.ID())
			if err != nil {
				return err
			}
			slice.Merge(snap)
			saveSlice(ctx, store, slice, snap)

			if jsonOutput && !runHealth {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(slice.Document())
			}

			printSlice(slice, false)

			if runHealth {
				checker := health.NewChecker()
				if channel, err := newChannel(); err == nil {
					checker.AddCheck(&health.SSHCheck{Prober: channel})
				}
				report, err := checker.Run(ctx, slice)
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(report)
				}
				fmt.Println()
				printHealthReport(report)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	cmd.Flags().BoolVar(&runHealth, "health", false, "run health checks against the slice")
	return cmd
}

// printHealthReport renders a health report as a table.
func printHealthReport(report *health.Report) {
	t := cli.NewTable("CHECK", "STATUS", "MESSAGE")
	for _, r := range report.Results {
		t.Row(r.Check, cli.StateColor(string(r.Status)), r.Message)
	}
	t.Flush()
	fmt.Printf("\nOverall: %s\n", cli.StateColor(string(report.Overall)))
}
