package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/audit"
	"github.com/weft-testbed/weft/pkg/bastion"
)

func newExecCmd() *cobra.Command {
	var timeout time.Duration
	var retries int

	cmd := &cobra.Command{
		Use:   "exec <slice> <node> <command>...",
		Short: "Run a command on a node",
		Long: `Execute a shell command on a slice node through the bastion. Remote
stdout and stderr are relayed; a non-zero remote exit becomes this
command's error.

  weft exec demo node1 uname -a
  weft exec demo node1 -- ip -j addr show`,
		Args: cobra.MinimumNArgs(3),
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
			command := strings.Join(args[2:], " ")

			channel, err := newChannel()
			if err != nil {
				return err
			}

			event := audit.NewEvent(currentUser(), slice.Name(), audit.OpExecute).
				WithSliceID(slice.ID()).
				WithNode(node.Name()).
				WithCommand(command)
			start := time.Now()

			result, err := channel.Execute(ctx, node, command, bastion.ExecOptions{
				Timeout: timeout,
				Retries: retries,
			})
			if err != nil {
				logAudit(event.WithError(err).WithDuration(time.Since(start)))
				return err
			}
			if result.Ok() {
				event.WithSuccess()
			}
			logAudit(event.WithDuration(time.Since(start)))

			fmt.Print(result.Stdout)
			if result.Stderr != "" {
				fmt.Fprint(os.Stderr, result.Stderr)
			}
			if !result.Ok() {
				return fmt.Errorf("%s: exit status %d", node.Name(), result.ExitCode)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "bound the command on the node itself")
	cmd.Flags().IntVar(&retries, "retries", 0, "connection attempt budget (default 3)")
	return cmd
}
