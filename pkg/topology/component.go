package topology

import "fmt"

// Component is a hardware device attached to a node: a NIC, GPU, NVMe drive,
// or FPGA. NIC components expose interfaces that can join network services.
type Component struct {
	node *Node

	name  string
	model ComponentModel

	interfaces []*Interface

	// Authoritative fields, written by snapshot merge.
	pciAddresses []string
	numaNode     int
}

// Name returns the component name.
func (c *Component) Name() string { return c.name }

// Model returns the hardware model.
func (c *Component) Model() ComponentModel { return c.model }

// Type returns the hardware class derived from the model.
func (c *Component) Type() ComponentType { return c.model.Type() }

// Node returns the owning node.
func (c *Component) Node() *Node { return c.node }

// Interfaces returns the component's network interfaces in port order.
// Empty for non-NIC components.
func (c *Component) Interfaces() []*Interface {
	c.node.slice.mu.RLock()
	defer c.node.slice.mu.RUnlock()
	out := make([]*Interface, len(c.interfaces))
	copy(out, c.interfaces)
	return out
}

// Interface returns the component's nth port, counting from 1.
func (c *Component) Interface(port int) (*Interface, error) {
	c.node.slice.mu.RLock()
	defer c.node.slice.mu.RUnlock()
	if port < 1 || port > len(c.interfaces) {
		return nil, &InvalidSpecError{
			Entity: c.name,
			Reason: fmt.Sprintf("component has no port %d", port),
		}
	}
	return c.interfaces[port-1], nil
}

// PCIAddresses returns the PCI addresses the component was attached at,
// empty until the reservation is active.
func (c *Component) PCIAddresses() []string {
	c.node.slice.mu.RLock()
	defer c.node.slice.mu.RUnlock()
	out := make([]string, len(c.pciAddresses))
	copy(out, c.pciAddresses)
	return out
}

// NUMANode returns the NUMA node the component landed on, -1 when unknown.
func (c *Component) NUMANode() int {
	c.node.slice.mu.RLock()
	defer c.node.slice.mu.RUnlock()
	return c.numaNode
}
