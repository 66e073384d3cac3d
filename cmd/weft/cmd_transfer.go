package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
)

func newUploadCmd() *cobra.Command {
	var dir bool

	cmd := &cobra.Command{
		Use:   "upload <slice> <node> <local> <remote>",
		Short: "Copy a file to a node",
		Long: `Copy a local file to a slice node over SFTP through the bastion.
With --dir, copies a directory recursively.

  weft upload demo node1 ./run.sh /home/ubuntu/run.sh
  weft upload demo node1 --dir ./inputs /home/ubuntu/inputs`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			slice, err := loadSlice(ctx, store, args[0])
			if err != nil {
				return err
			}
			node, err := slice.Node(args[1])
			if err != nil {
				return err
			}
			local, remote := args[2], args[3]

			channel, err := newChannel()
			if err != nil {
				return err
			}

			event := audit.NewEvent(currentUser(), slice.Name(), audit.OpUpload).
				WithSliceID(slice.ID()).
				WithNode(node.Name()).
				WithCommand(fmt.Sprintf("%s -> %s", local, remote))
			start := time.Now()

			if dir {
				err = channel.UploadDirectory(ctx, node, local, remote)
			} else {
				err = channel.Upload(ctx, node, local, remote)
			}
			if err != nil {
				logAudit(event.WithError(err).WithDuration(time.Since(start)))
				return err
			}
			logAudit(event.WithSuccess().WithDuration(time.Since(start)))

			fmt.Printf("%s %s -> %s:%s\n", green("✓"), local, node.Name(), remote)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dir, "dir", false, "copy a directory recursively")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var dir bool

	cmd := &cobra.Command{
		Use:   "download <slice> <node> <remote> <local>",
		Short: "Copy a file from a node",
		Long: `Copy a file from a slice node to the local machine over SFTP
through the bastion. With --dir, copies a directory recursively.

  weft download demo node1 /home/ubuntu/results.csv ./results.csv
  weft download demo node1 --dir /home/ubuntu/logs ./logs`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			slice, err := loadSlice(ctx, store, args[0])
			if err != nil {
				return err
			}
			node, err := slice.Node(args[1])
			if err != nil {
				return err
			}
			remote, local := args[2], args[3]

			channel, err := newChannel()
			if err != nil {
				return err
			}

			event := audit.NewEvent(currentUser(), slice.Name(), audit.OpDownload).
				WithSliceID(slice.ID()).
				WithNode(node.Name()).
				WithCommand(fmt.Sprintf("%s -> %s", remote, local))
			start := time.Now()

			if dir {
				err = channel.DownloadDirectory(ctx, node, local, remote)
			} else {
				err = channel.Download(ctx, node, remote, local)
			}
			if err != nil {
				logAudit(event.WithError(err).WithDuration(time.Since(start)))
				return err
			}
			logAudit(event.WithSuccess().WithDuration(time.Since(start)))

			fmt.Printf("%s %s:%s -> %s\n", green("✓"), node.Name(), remote, local)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dir, "dir", false, "copy a directory recursively")
	return cmd
}
