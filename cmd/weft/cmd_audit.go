package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
	"github.com/weft-testbed/weft/pkg/cli"
)

func newAuditCmd() *cobra.Command {
	var (
		sliceName  string
		userName   string
		last       string
		limit      int
		failures   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List recorded slice operations",
		Long: `List the audit log of slice operations: submits, deletes, renewals,
configuration runs, and remote commands, with who ran them and how
they went.

  weft audit
  weft audit --slice demo
  weft audit --last 24h --failures`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := audit.Filter{
				Slice:       sliceName,
				User:        userName,
				Limit:       limit,
				FailureOnly: failures,
			}
			if last != "" {
				duration, err := time.ParseDuration(last)
				if err != nil {
					return fmt.Errorf("invalid duration: %s", last)
				}
				filter.StartTime = time.Now().Add(-duration)
			}

			events, err := audit.Query(filter)
			if err != nil {
				return fmt.Errorf("querying audit log: %w", err)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(events)
			}
			if len(events) == 0 {
				fmt.Println("No audit events found")
				return nil
			}

			t := cli.NewTable("TIMESTAMP", "USER", "SLICE", "OPERATION", "NODE", "STATUS")
			for _, event := range events {
				status := green("ok")
				if !event.Success {
					status = red("failed")
				}
				t.Row(
					event.Timestamp.Format("2006-01-02 15:04:05"),
					event.User,
					event.Slice,
					event.Operation,
					dash(event.Node),
					status,
				)
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&sliceName, "slice", "", "filter by slice name")
	cmd.Flags().StringVar(&userName, "user", "", "filter by user")
	cmd.Flags().StringVar(&last, "last", "", "events from the last duration (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to show")
	cmd.Flags().BoolVar(&failures, "failures", false, "show only failed operations")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	return cmd
}
