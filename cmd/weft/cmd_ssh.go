package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/cli"
)

func newSSHCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ssh <slice> <node>",
		Short: "Open an SSH session to a node",
		Long: `Open an interactive SSH session to a slice node, jumping through
the testbed bastion.

  weft ssh demo node1`,
		Args: cobra.ExactArgs(2),
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
			if node.ManagementIP() == "" {
				return fmt.Errorf("node %s has no management address yet; run 'weft wait %s' first", node.Name(), slice.Name())
			}

			sshBin, err := exec.LookPath("ssh")
			if err != nil {
				return fmt.Errorf("ssh not found in PATH")
			}

			proxy := fmt.Sprintf(
				"ssh -i %s -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -W %%h:%%p %s@%s",
				cfg.BastionKeyLocation, cfg.BastionUser, cfg.BastionHost)

			sshArgs := []string{"ssh",
				"-o", "StrictHostKeyChecking=no",
				"-o", "UserKnownHostsFile=/dev/null",
				"-o", "LogLevel=ERROR",
				"-o", "ProxyCommand=" + proxy,
				"-i", cfg.SlicePrivateKeyFile,
				node.SSHUsername() + "@" + node.ManagementIP(),
			}

			return syscallExec(sshBin, sshArgs, os.Environ())
		},
	}
	return cmd
}

func newSSHTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ssh-test <slice>",
		Short: "Probe SSH reachability of every node",
		Long: `Check the whole SSH path: the bastion first, then a probe session
to every node in the slice through it. Nodes without a management
address fail without any dialing.

  weft ssh-test demo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			slice, err := loadSlice(ctx, store, args[0])
			if err != nil {
				return err
			}
			channel, err := newChannel()
			if err != nil {
				return err
			}

			fmt.Printf("Bastion %s... ", cfg.BastionHost)
			if err := channel.ProbeBastion(ctx); err != nil {
				fmt.Println(red("unreachable"))
				return err
			}
			fmt.Println(green("ok"))

			t := cli.NewWrapTable("NODE", "MGMT IP", "SSH")
			failures := 0
			for _, node := range slice.Nodes() {
				if err := channel.Probe(ctx, node); err != nil {
					failures++
					t.Row(node.Name(), dash(node.ManagementIP()), red(err.Error()))
				} else {
					t.Row(node.Name(), node.ManagementIP(), green("ok"))
				}
			}
			t.Flush()

			if failures > 0 {
				return fmt.Errorf("%d of %d nodes unreachable", failures, len(slice.Nodes()))
			}
			return nil
		},
	}
	return cmd
}
