package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
)

func newDeleteCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "delete <slice>",
		Short: "Release a slice's resources",
		Long: `Delete the slice on the control framework, releasing every
reservation it holds. Deleting a slice that is already gone is not an
error. The local record is kept (marked Deleted) so 'weft show' still
works; --purge removes it too.

  weft delete demo
  weft delete demo --purge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			slice, err := loadSlice(ctx, store, args[0])
			if err != nil {
				return err
			}

			if slice.ID() == "" {
				// Never submitted: nothing to release on the orchestrator.
				if purge {
					if err := store.Delete(ctx, slice.Name()); err != nil {
						return err
					}
					fmt.Printf("%s Removed record for %s\n", green("✓"), slice.Name())
					return nil
				}
				return fmt.Errorf("slice %s was never submitted; use --purge to drop the record", slice.Name())
			}

			client, err := newOrchestratorClient()
			if err != nil {
				return err
			}

			event := audit.NewEvent(currentUser(), slice.Name(), audit.OpDelete).WithSliceID(slice.ID())
			start := time.Now()
			if err := client.Delete(ctx, slice.ID()); err != nil {
				logAudit(event.WithError(err).WithDuration(time.Since(start)))
				return err
			}
			logAudit(event.WithSuccess().WithDuration(time.Since(start)))

			slice.MarkDeleted()
			if purge {
				if err := store.Delete(ctx, slice.Name()); err != nil {
					return err
				}
			} else {
				saveSlice(ctx, store, slice, nil)
			}

			fmt.Printf("%s Slice %s deleted\n", green("✓"), slice.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "also remove the local slice record")
	return cmd
}
