package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
	"github.com/weft-testbed/weft/pkg/manifest"
	"github.com/weft-testbed/weft/pkg/orchestrator"
	"github.com/weft-testbed/weft/pkg/reconcile"
)

func newSubmitCmd() *cobra.Command {
	var (
		manifestPath string
		wait         bool
		configure    bool
		timeout      time.Duration
		interval     time.Duration
		leaseDays    int
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a slice manifest to the testbed",
		Long: `Build a slice from a YAML manifest and submit it to the control
framework. The slice public key is installed on every node.

With --wait, polls the reservations until the slice settles. With
--configure, additionally applies post-boot configuration to every
node once the slice is stable (implies --wait).

  weft submit -f slice.yml
  weft submit -f slice.yml --wait
  weft submit -f slice.yml --configure --timeout 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestPath == "" {
				return fmt.Errorf("manifest required: use -f <slice.yml>")
			}
			if configure {
				wait = true
			}
			ctx := cmd.Context()

			m, err := manifest.Load(manifestPath)
			if err != nil {
				return err
			}
			slice, err := manifest.Build(m)
			if err != nil {
				return err
			}

			project := slice.Project()
			if project == "" {
				if project, err = requireProject(); err != nil {
					return err
				}
				slice.SetProject(project)
			}

			// Graph-level validation runs before anything touches the network.
			if err := slice.Validate(); err != nil {
				return err
			}

			publicKey, err := cfg.EnsureSliceKeys()
			if err != nil {
				return err
			}
			slice.SetSSHKeys(publicKey, cfg.SlicePrivateKeyFile)

			var leaseEnd time.Time
			if leaseDays > 0 {
				leaseEnd = time.Now().Add(time.Duration(leaseDays) * 24 * time.Hour)
			} else if _, end := slice.Lease(); !end.IsZero() {
				leaseEnd = end
			}

			client, err := newOrchestratorClient()
			if err != nil {
				return err
			}
			store := openStore()

			event := audit.NewEvent(currentUser(), slice.Name(), audit.OpSubmit)
			start := time.Now()

			fmt.Printf("Submitting %s (%d nodes, %d networks)...\n",
				slice.Name(), len(slice.Nodes()), len(slice.Services()))

			sliceID, snap, err := client.Submit(ctx, orchestrator.SubmitRequest{
				Name:     slice.Name(),
				Project:  project,
				SSHKey:   publicKey,
				LeaseEnd: leaseEnd,
				Topology: slice.Document(),
			})
			if err != nil {
				logAudit(event.WithError(err).WithDuration(time.Since(start)))
				return err
			}
			logAudit(event.WithSliceID(sliceID).WithSuccess().WithDuration(time.Since(start)))

			slice.MarkSubmitted(sliceID)
			if snap != nil {
				slice.Merge(snap)
			}
			saveSlice(ctx, store, slice, snap)

			fmt.Printf("%s Submitted %s (%s)\n", green("✓"), slice.Name(), sliceID)

			if !wait {
				fmt.Printf("\nRun 'weft wait %s' to poll the slice to stability.\n", slice.Name())
				return nil
			}

			status, err := waitForSlice(ctx, client, store, slice, reconcile.WaitOptions{
				Interval: interval,
				Timeout:  timeout,
			})
			if err != nil {
				return err
			}
			if status != reconcile.WaitStable {
				printNodeTable(slice)
				return fmt.Errorf("slice %s: %s", slice.Name(), status)
			}
			fmt.Printf("%s Slice %s is stable\n", green("✓"), slice.Name())
			printNodeTable(slice)

			if configure {
				fmt.Println("\nConfiguring nodes...")
				if err := configureSlice(ctx, store, slice); err != nil {
					return err
				}
				fmt.Printf("%s Configuration complete\n", green("✓"))
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "slice manifest (YAML)")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll the slice until it settles")
	cmd.Flags().BoolVar(&configure, "configure", false, "configure nodes once stable (implies --wait)")
	cmd.Flags().DurationVar(&timeout, "timeout", reconcile.DefaultTimeout, "wait timeout")
	cmd.Flags().DurationVar(&interval, "interval", reconcile.DefaultInterval, "poll interval")
	cmd.Flags().IntVar(&leaseDays, "lease-days", 0, "initial lease length in days (orchestrator default when 0)")
	return cmd
}
