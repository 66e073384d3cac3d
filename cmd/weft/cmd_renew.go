package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
	"github.com/weft-testbed/weft/pkg/cli"
	"github.com/weft-testbed/weft/pkg/orchestrator"
)

func newRenewCmd() *cobra.Command {
	var days int
	var until string

	cmd := &cobra.Command{
		Use:   "renew <slice>",
		Short: "Extend the slice lease",
		Long: `Ask the control framework to extend the slice lease. Give either a
number of days from now or an absolute end time.

  weft renew demo --days 14
  weft renew demo --until "2026-09-30 12:00:00 +0000"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var end time.Time
			switch {
			case days > 0 && until != "":
				return fmt.Errorf("give --days or --until, not both")
			case days > 0:
				end = time.Now().Add(time.Duration(days) * 24 * time.Hour)
			case until != "":
				var err error
				end, err = time.Parse(orchestrator.LeaseTimeLayout, until)
				if err != nil {
					return fmt.Errorf("parse --until: %w (layout: %s)", err, orchestrator.LeaseTimeLayout)
				}
			default:
				return fmt.Errorf("lease end required: use --days <n> or --until <time>")
			}

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

			event := audit.NewEvent(currentUser(), slice.Name(), audit.OpRenew).WithSliceID(slice.ID())
			start := time.Now()
			if err := client.Renew(ctx, slice.ID(), end); err != nil {
				logAudit(event.WithError(err).WithDuration(time.Since(start)))
				return err
			}
			logAudit(event.WithSuccess().WithDuration(time.Since(start)))

			slice.SetLease(end)
			saveSlice(ctx, store, slice, nil)

			fmt.Printf("%s Lease on %s extended to %s (%s)\n",
				green("✓"), slice.Name(), end.Format("2006-01-02 15:04 MST"), cli.FormatLease(end))
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "extend the lease this many days from now")
	cmd.Flags().StringVar(&until, "until", "", "absolute lease end time")
	return cmd
}
