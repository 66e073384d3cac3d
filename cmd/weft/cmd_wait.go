package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/orchestrator"
	"github.com/weft-testbed/weft/pkg/reconcile"
	"github.com/weft-testbed/weft/pkg/statestore"
	"github.com/weft-testbed/weft/pkg/topology"
)

func newWaitCmd() *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
		probeSSH bool
	)

	cmd := &cobra.Command{
		Use:   "wait <slice>",
		Short: "Poll a slice until it settles",
		Long: `Poll the control framework until every reservation in the slice is
active, one of them fails, or the timeout runs out.

With --ssh, additionally waits for every node to accept SSH through
the bastion before returning.

  weft wait demo
  weft wait demo --timeout 15m --interval 30s
  weft wait demo --ssh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			slice, err := loadSlice(ctx, store, args[0])
			if err != nil {
				return err
			}
			client, err := newOrchestratorClient()
			if err != nil {
				return err
			}

			status, err := waitForSlice(ctx, client, store, slice, reconcile.WaitOptions{
				Interval: interval,
				Timeout:  timeout,
			})
			if err != nil {
				return err
			}
			switch status {
			case reconcile.WaitStable:
				fmt.Printf("%s Slice %s is stable\n", green("✓"), slice.Name())
				printNodeTable(slice)
			case reconcile.WaitFailed:
				printNodeTable(slice)
				return fmt.Errorf("slice %s: at least one reservation failed", slice.Name())
			default:
				printNodeTable(slice)
				return fmt.Errorf("slice %s: still %s after %s", slice.Name(), slice.State(), timeout)
			}

			if probeSSH {
				channel, err := newChannel()
				if err != nil {
					return err
				}
				fmt.Println("\nWaiting for SSH...")
				poller := &reconcile.Poller{Client: client}
				if err := poller.WaitSSH(ctx, slice, channel, reconcile.WaitOptions{
					Interval: interval,
					Timeout:  timeout,
				}); err != nil {
					return err
				}
				fmt.Printf("%s All nodes reachable\n", green("✓"))
			}

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", reconcile.DefaultTimeout, "wait timeout")
	cmd.Flags().DurationVar(&interval, "interval", reconcile.DefaultInterval, "poll interval")
	cmd.Flags().BoolVar(&probeSSH, "ssh", false, "also wait for SSH reachability on every node")
	return cmd
}

// waitForSlice polls the slice to a verdict, printing progress after each
// merged snapshot, and persists whatever state the merges left behind.
func waitForSlice(ctx context.Context, client orchestrator.Client, store statestore.Store, slice *topology.Slice, opts reconcile.WaitOptions) (reconcile.WaitStatus, error) {
	if opts.Progress == nil {
		opts.Progress = func(iteration int, elapsed time.Duration, state topology.SliceState) {
			fmt.Printf("  poll %d (%s): %s\n", iteration, elapsed.Round(time.Second), state)
		}
	}
	poller := &reconcile.Poller{Client: client}
	status, err := poller.Wait(ctx, slice, opts)
	saveSlice(ctx, store, slice, nil)
	return status, err
}
