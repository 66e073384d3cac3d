package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
	"github.com/weft-testbed/weft/pkg/postboot"
	"github.com/weft-testbed/weft/pkg/statestore"
	"github.com/weft-testbed/weft/pkg/topology"
)

func newConfigureCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "configure <slice>",
		Short: "Apply post-boot node configuration",
		Long: `Configure every node in a stable slice over SSH: hostname,
dataplane interfaces, static routes, and the manifest's post-boot
tasks. Configuration is idempotent — rerunning against an already
configured slice issues no mutating commands, so this is also how you
repair a node that was rebooted mid-experiment.

A failing node never stops the others; per-node outcomes are reported
at the end.

  weft configure demo
  weft configure demo --parallel 8`,
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
			return configureSliceParallel(ctx, store, slice, parallel)
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", postboot.DefaultParallel, "nodes configured concurrently")
	return cmd
}

// configureSlice runs the post-boot configurator with default parallelism.
func configureSlice(ctx context.Context, store statestore.Store, slice *topology.Slice) error {
	return configureSliceParallel(ctx, store, slice, 0)
}

func configureSliceParallel(ctx context.Context, store statestore.Store, slice *topology.Slice, parallel int) error {
	channel, err := newChannel()
	if err != nil {
		return err
	}
	configurator := postboot.New(channel)
	configurator.Parallel = parallel

	event := audit.NewEvent(currentUser(), slice.Name(), audit.OpConfigure).WithSliceID(slice.ID())
	start := time.Now()
	result := configurator.ConfigureSlice(ctx, slice)

	// Nodes that configured cleanly learned their OS devices; persist them
	// even when other nodes failed.
	saveSlice(ctx, store, slice, nil)

	for _, n := range slice.Nodes() {
		if err := result[n.Name()]; err != nil {
			fmt.Printf("  %s %s: %v\n", red("✗"), n.Name(), err)
		} else {
			fmt.Printf("  %s %s\n", green("✓"), n.Name())
		}
	}

	if err := result.Err(); err != nil {
		logAudit(event.WithError(err).WithDuration(time.Since(start)))
		return fmt.Errorf("%d of %d nodes failed configuration", len(result.Failed()), len(slice.Nodes()))
	}
	logAudit(event.WithSuccess().WithDuration(time.Since(start)))
	return nil
}
