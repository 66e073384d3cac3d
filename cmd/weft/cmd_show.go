package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weft-testbed/weft/pkg/cli"
	"github.com/weft-testbed/weft/pkg/topology"
)

func newShowCmd() *cobra.Command {
	var jsonOutput bool
	var detail bool

	cmd := &cobra.Command{
		Use:   "show <slice>",
		Short: "Show the stored slice record",
		Long: `Show a slice as last recorded locally, without querying the control
framework. Use 'weft status' for live state.

  weft show demo
  weft show demo --detail
  weft show demo --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := openStore()
			rec, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput || userSettings.GetOutputFormat() == "json" {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}

			slice, err := topology.FromDocument(rec.Topology)
			if err != nil {
				return err
			}
			printSlice(slice, detail)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	cmd.Flags().BoolVar(&detail, "detail", false, "include interfaces and components")
	return cmd
}

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored slices",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recs, err := openStore().List(ctx)
			if err != nil {
				return err
			}

			if jsonOutput || userSettings.GetOutputFormat() == "json" {
				if recs == nil {
					fmt.Println("[]")
					return nil
				}
				return json.NewEncoder(os.Stdout).Encode(recs)
			}

			if len(recs) == 0 {
				fmt.Println("no stored slices")
				return nil
			}

			t := cli.NewTable("SLICE", "ID", "STATE", "NODES", "LEASE")
			for _, rec := range recs {
				slice, err := topology.FromDocument(rec.Topology)
				if err != nil {
					t.Row(rec.Name(), rec.SliceID(), red("corrupt"), "-", "-")
					continue
				}
				_, end := slice.Lease()
				t.Row(
					slice.Name(),
					dash(slice.ID()),
					cli.StateColor(string(slice.State())),
					fmt.Sprintf("%d", len(slice.Nodes())),
					cli.FormatLease(end),
				)
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	return cmd
}

// printSlice renders the slice header, nodes, and networks.
func printSlice(slice *topology.Slice, detail bool) {
	fmt.Printf("Slice: %s", slice.Name())
	if slice.ID() != "" {
		fmt.Printf(" (%s)", slice.ID())
	}
	fmt.Println()
	fmt.Printf("State: %s", cli.StateColor(string(slice.State())))
	if rs := slice.RemoteState(); rs != "" {
		fmt.Printf("  remote: %s", rs)
	}
	fmt.Println()
	if _, end := slice.Lease(); !end.IsZero() {
		fmt.Printf("Lease: %s (%s)\n", end.Format("2006-01-02 15:04 MST"), cli.FormatLease(end))
	}
	if slice.Project() != "" {
		fmt.Printf("Project: %s\n", slice.Project())
	}

	fmt.Println()
	printNodeTable(slice)

	if services := slice.Services(); len(services) > 0 {
		fmt.Println()
		t := cli.NewTable("NETWORK", "TYPE", "STATE", "SUBNET", "MEMBERS")
		for _, svc := range services {
			var members []string
			for _, ifc := range svc.Interfaces() {
				members = append(members, ifc.Name())
			}
			t.Row(
				svc.Name(),
				string(svc.Type()),
				cli.StateColor(string(svc.State())),
				dash(svc.Subnet()),
				strings.Join(members, ","),
			)
		}
		t.Flush()
	}

	if facilities := slice.FacilityPorts(); len(facilities) > 0 {
		fmt.Println()
		t := cli.NewTable("FACILITY", "SITE", "VLAN", "STATE")
		for _, fp := range facilities {
			t.Row(fp.Name(), fp.Site(), fmt.Sprintf("%d", fp.Interface().VLAN()), cli.StateColor(string(fp.State())))
		}
		t.Flush()
	}

	if detail {
		for _, n := range slice.Nodes() {
			ifaces := n.Interfaces()
			if len(ifaces) == 0 {
				continue
			}
			fmt.Printf("\n%s interfaces:\n", n.Name())
			t := cli.NewTable("INTERFACE", "NETWORK", "MAC", "DEVICE", "IP").WithPrefix("  ")
			for _, ifc := range ifaces {
				network := "-"
				if svc := ifc.Service(); svc != nil {
					network = svc.Name()
				}
				t.Row(
					ifc.Name(),
					network,
					dash(ifc.MAC()),
					dash(ifc.OSDevice()),
					dash(strings.Join(ifc.IPs(), ",")),
				)
			}
			t.Flush()
		}
	}
}

// printNodeTable renders the nodes with reservation state and errors.
// Long orchestrator error strings wrap instead of blowing out the row.
func printNodeTable(slice *topology.Slice) {
	t := cli.NewWrapTable("NODE", "SITE", "STATE", "MGMT IP", "ERROR")
	for _, n := range slice.Nodes() {
		t.Row(
			n.Name(),
			n.Site(),
			cli.StateColor(string(n.State())),
			dash(n.ManagementIP()),
			dash(n.LastError()),
		)
	}
	t.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
