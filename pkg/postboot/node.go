package postboot

import (
	"context"
	"fmt"
	"strings"

	"github.com/weft-testbed/weft/pkg/bastion"
	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// instantiatedMarker records on the node itself that first-boot tasks ran.
// Keeping the flag node-side means any client process, on any machine, sees
// the same answer.
const instantiatedMarker = "~/.weft-instantiated"

// ConfigureNode applies the node's desired configuration: hostname,
// dataplane interfaces, static routes, and, on the first run only, NVMe
// setup and the user's post-boot tasks.
//
// The node's live state is read once up front; each step then mutates only
// what differs from it. A node that is already fully configured produces
// zero mutating commands.
func (c *Configurator) ConfigureNode(ctx context.Context, node *topology.Node) error {
	log := util.WithNode(node.Name())
	log.Debug("starting post-boot configuration")

	facts, err := c.gatherFacts(ctx, node)
	if err != nil {
		return fmt.Errorf("discover node state: %w", err)
	}

	if facts.hostname != node.Name() {
		if err := c.run(ctx, node, fmt.Sprintf("sudo hostnamectl set-hostname '%s'", node.Name())); err != nil {
			return fmt.Errorf("set hostname: %w", err)
		}
	}

	for _, ifc := range node.Interfaces() {
		if ifc.Service() == nil {
			continue
		}
		if err := c.configureInterface(ctx, node, ifc, facts); err != nil {
			return fmt.Errorf("configure interface %s: %w", ifc.Name(), err)
		}
	}

	if err := c.configureRoutes(ctx, node, facts); err != nil {
		return err
	}

	instantiated, err := c.isInstantiated(ctx, node)
	if err != nil {
		return err
	}
	if !instantiated {
		for _, comp := range node.Components() {
			if comp.Type() == topology.ComponentNVMe {
				if err := c.setupNVMe(ctx, node, comp); err != nil {
					return fmt.Errorf("set up NVMe %s: %w", comp.Name(), err)
				}
			}
		}
		for i, task := range node.PostBootTasks() {
			if err := c.runTask(ctx, node, task); err != nil {
				return fmt.Errorf("post-boot task %d (%s): %w", i+1, task.Kind, err)
			}
		}
		if err := c.run(ctx, node, "touch "+instantiatedMarker); err != nil {
			return fmt.Errorf("mark node instantiated: %w", err)
		}
	}

	log.Debug("post-boot configuration complete")
	return nil
}

// configureInterface brings one dataplane interface to its desired state:
// VLAN subinterface, MTU, link up, addresses. Updates facts as it goes so
// interfaces sharing a physical device see each other's changes.
func (c *Configurator) configureInterface(ctx context.Context, node *topology.Node, ifc *topology.Interface, facts *nodeFacts) error {
	mac := ifc.MAC()
	if mac == "" {
		return fmt.Errorf("no hardware address reported yet: %w", util.ErrNodeNotReady)
	}
	phys := facts.deviceByMAC(mac)
	if phys == nil {
		return fmt.Errorf("no OS device with address %s; guest has not enumerated the NIC", mac)
	}

	mutated := false
	dev := phys.Name
	if vlan := ifc.VLAN(); vlan != 0 {
		dev = fmt.Sprintf("%s.%d", phys.Name, vlan)
		if facts.link(dev) == nil {
			cmd := fmt.Sprintf("sudo ip link add link %s name %s type vlan id %d", phys.Name, dev, vlan)
			if err := c.run(ctx, node, cmd); err != nil {
				return err
			}
			facts.recordLink(dev, 0, false)
			mutated = true
		}
	}
	ifc.SetOSDevice(dev)

	if mtu := ifc.MTU(); mtu != 0 {
		if l := facts.link(dev); l == nil || l.MTU != mtu {
			if err := c.run(ctx, node, fmt.Sprintf("sudo ip link set dev %s mtu %d", dev, mtu)); err != nil {
				return err
			}
			facts.recordLink(dev, mtu, false)
			mutated = true
		}
	}

	// The physical device comes up first; a VLAN subinterface cannot
	// carry traffic over a downed carrier.
	ipcmd := linkIPCmd(ifc)
	if !phys.isUp() {
		if err := c.run(ctx, node, fmt.Sprintf("%s link set dev %s up", ipcmd, phys.Name)); err != nil {
			return err
		}
		facts.recordLink(phys.Name, 0, true)
		mutated = true
	}
	if dev != phys.Name {
		if l := facts.link(dev); l == nil || !l.isUp() {
			if err := c.run(ctx, node, fmt.Sprintf("%s link set dev %s up", ipcmd, dev)); err != nil {
				return err
			}
			facts.recordLink(dev, 0, true)
			mutated = true
		}
	}

	desired := ifc.IPs()
	if l := facts.link(dev); l != nil && len(desired) > 0 {
		if len(except(l.globalAddrs(), desired)) > 0 {
			if err := c.run(ctx, node, "sudo ip addr flush dev "+dev); err != nil {
				return err
			}
			l.Addrs = nil
			mutated = true
		}
	}
	for _, cidr := range desired {
		if facts.hasAddr(dev, cidr) {
			continue
		}
		if err := c.run(ctx, node, fmt.Sprintf("%s addr add %s dev %s", addrIPCmd(cidr), cidr, dev)); err != nil {
			return err
		}
		facts.recordAddr(dev, cidr)
		mutated = true
	}

	// Rocky images ship NetworkManager configured to reclaim devices it
	// thinks it owns, undoing everything above on its next sweep.
	if mutated {
		c.unmanage(ctx, node, phys.Name)
	}
	return nil
}

// configureRoutes installs the node's static routes. `route replace`
// instead of `route add` so a changed gateway converges instead of
// erroring, but already-present routes are skipped outright.
func (c *Configurator) configureRoutes(ctx context.Context, node *topology.Node, facts *nodeFacts) error {
	for _, rt := range node.Routes() {
		if facts.hasRoute(rt.Destination, rt.Gateway) {
			continue
		}
		cmd := fmt.Sprintf("%s route replace %s via %s", addrIPCmd(rt.Destination), rt.Destination, rt.Gateway)
		if err := c.run(ctx, node, cmd); err != nil {
			return fmt.Errorf("install route to %s: %w", rt.Destination, err)
		}
		facts.recordRoute(rt.Destination, rt.Gateway)
	}
	return nil
}

func (c *Configurator) isInstantiated(ctx context.Context, node *topology.Node) (bool, error) {
	res, err := c.Runner.Execute(ctx, node, "test -f "+instantiatedMarker, bastion.ExecOptions{})
	if err != nil {
		return false, err
	}
	return res.Ok(), nil
}

func (c *Configurator) runTask(ctx context.Context, node *topology.Node, task topology.PostBootTask) error {
	switch task.Kind {
	case topology.TaskExecute:
		return c.run(ctx, node, task.Command)
	case topology.TaskUpload:
		return c.Runner.Upload(ctx, node, task.LocalPath, task.RemotePath)
	case topology.TaskUploadDir:
		return c.Runner.UploadDirectory(ctx, node, task.LocalPath, task.RemotePath)
	}
	return fmt.Errorf("unknown task kind '%s'", task.Kind)
}

// setupNVMe partitions, formats, and mounts an NVMe component under
// /mnt/<device>. First boot only; the drive arrives raw.
func (c *Configurator) setupNVMe(ctx context.Context, node *topology.Node, comp *topology.Component) error {
	pcis := comp.PCIAddresses()
	if len(pcis) == 0 {
		util.WithNode(node.Name()).Warnf("NVMe %s has no PCI address yet, skipping setup", comp.Name())
		return nil
	}
	out, err := c.capture(ctx, node,
		fmt.Sprintf("basename $(sudo ls -l /sys/block/nvme* | grep '%s' | awk '{print $9}')", pcis[0]))
	if err != nil {
		return err
	}
	dev := strings.TrimSpace(out)
	if dev == "" {
		return fmt.Errorf("no block device at PCI address %s", pcis[0])
	}

	block := "/dev/" + dev
	steps := []string{
		fmt.Sprintf("sudo parted -s %s mklabel gpt", block),
		fmt.Sprintf("sudo parted -s --align optimal %s mkpart primary ext4 0%% 100%%", block),
		fmt.Sprintf("sudo mkfs.ext4 -F %sp1", block),
		fmt.Sprintf("sudo mkdir -p /mnt/%s && sudo mount %sp1 /mnt/%s", dev, block, dev),
	}
	for _, cmd := range steps {
		if err := c.run(ctx, node, cmd); err != nil {
			return err
		}
	}
	return nil
}

// unmanage tells NetworkManager to leave a device alone. Best effort:
// images without NetworkManager fail the command and that is fine.
func (c *Configurator) unmanage(ctx context.Context, node *topology.Node, dev string) {
	res, err := c.Runner.Execute(ctx, node, "sudo nmcli dev set "+dev+" managed no", bastion.ExecOptions{Retries: 1})
	if err != nil {
		util.WithNode(node.Name()).Debugf("nmcli unmanage %s: %v", dev, err)
		return
	}
	if !res.Ok() {
		util.WithNode(node.Name()).Debugf("nmcli unmanage %s exited %d", dev, res.ExitCode)
	}
}

// run executes a command and treats non-zero exit as an error.
func (c *Configurator) run(ctx context.Context, node *topology.Node, command string) error {
	res, err := c.Runner.Execute(ctx, node, command, bastion.ExecOptions{})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("%q exited %d: %s", command, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// linkIPCmd picks the ip invocation for link operations on the interface,
// keyed off its service's address family.
func linkIPCmd(ifc *topology.Interface) string {
	if svc := ifc.Service(); svc != nil {
		switch svc.Type() {
		case topology.ServiceFABNetv6, topology.ServiceFABNetv6Ext:
			return "sudo ip -6"
		}
	}
	return "sudo ip"
}

// addrIPCmd picks the ip invocation for an address or destination in CIDR
// notation.
func addrIPCmd(cidr string) string {
	if strings.Contains(cidr, ":") {
		return "sudo ip -6"
	}
	return "sudo ip"
}

// except returns the members of have that are not in want.
func except(have, want []string) []string {
	keep := make(map[string]struct{}, len(want))
	for _, w := range want {
		keep[w] = struct{}{}
	}
	var out []string
	for _, h := range have {
		if _, ok := keep[h]; !ok {
			out = append(out, h)
		}
	}
	return out
}
