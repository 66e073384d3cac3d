package topology

import (
	"fmt"

	"github.com/weft-testbed/weft/pkg/util"
)

// IPMode controls how an interface gets its dataplane address.
type IPMode string

const (
	// IPModeAuto assigns an address from the service subnet once the
	// orchestrator reports one. Only meaningful on L3 services.
	IPModeAuto IPMode = "auto"
	// IPModeManual leaves addressing to explicit SetIP calls.
	IPModeManual IPMode = "manual"
)

// Interface is a network port exposed by a NIC component or a facility
// port. An interface can belong to at most one network service.
type Interface struct {
	slice *Slice

	name      string
	node      *Node         // nil for facility port interfaces
	component *Component    // nil for facility port interfaces
	facility  *FacilityPort // nil for node interfaces

	// Desired fields.
	service   *NetworkService
	mode      IPMode
	vlan      int // 0 = untagged
	bandwidth int // Gbps, 0 = site default
	mtu       int // 0 = leave image default

	// Authoritative fields, written by snapshot merge.
	mac   string
	state ReservationState

	// Configured fields, written by the post-boot configurator and the
	// auto-assignment step of merge.
	ips      []string // CIDR notation
	osDevice string
}

// Name returns the interface's slice-unique name.
func (i *Interface) Name() string { return i.name }

// Node returns the owning node, nil for facility port interfaces.
func (i *Interface) Node() *Node { return i.node }

// Component returns the owning NIC, nil for facility port interfaces.
func (i *Interface) Component() *Component { return i.component }

// Facility returns the owning facility port, nil for node interfaces.
func (i *Interface) Facility() *FacilityPort { return i.facility }

// Site returns the site the interface terminates at.
func (i *Interface) Site() string {
	if i.facility != nil {
		return i.facility.site
	}
	return i.node.site
}

// Service returns the network service the interface is attached to, or nil.
func (i *Interface) Service() *NetworkService {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.service
}

// Mode returns the interface's addressing mode.
func (i *Interface) Mode() IPMode {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.mode
}

// SetMode selects auto or manual addressing.
func (i *Interface) SetMode(mode IPMode) error {
	i.slice.mu.Lock()
	defer i.slice.mu.Unlock()
	if mode != IPModeAuto && mode != IPModeManual {
		return &InvalidSpecError{Entity: i.name, Reason: fmt.Sprintf("unknown IP mode '%s'", mode)}
	}
	i.mode = mode
	return nil
}

// VLAN returns the 802.1Q tag, 0 when untagged.
func (i *Interface) VLAN() int {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.vlan
}

// SetVLAN tags the interface. The configurator creates a matching VLAN
// subinterface on the node.
func (i *Interface) SetVLAN(vlan int) error {
	i.slice.mu.Lock()
	defer i.slice.mu.Unlock()
	if err := util.ValidateVLAN(vlan); err != nil {
		return &InvalidSpecError{Entity: i.name, Reason: err.Error()}
	}
	i.vlan = vlan
	return nil
}

// Bandwidth returns the requested bandwidth in Gbps, 0 for site default.
func (i *Interface) Bandwidth() int {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.bandwidth
}

// SetBandwidth requests a bandwidth in Gbps.
func (i *Interface) SetBandwidth(gbps int) error {
	i.slice.mu.Lock()
	defer i.slice.mu.Unlock()
	if gbps < 0 {
		return &InvalidSpecError{Entity: i.name, Reason: "bandwidth must be >= 0"}
	}
	i.bandwidth = gbps
	return nil
}

// MTU returns the requested MTU, 0 to leave the image default.
func (i *Interface) MTU() int {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.mtu
}

// SetMTU requests an MTU the configurator applies to the OS device.
func (i *Interface) SetMTU(mtu int) error {
	i.slice.mu.Lock()
	defer i.slice.mu.Unlock()
	if err := util.ValidateMTU(mtu); err != nil {
		return &InvalidSpecError{Entity: i.name, Reason: err.Error()}
	}
	i.mtu = mtu
	return nil
}

// MAC returns the hardware address the orchestrator reported, empty until
// the reservation is active.
func (i *Interface) MAC() string {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.mac
}

// State returns the interface's reservation state. Interfaces track the
// state of the service carrying them.
func (i *Interface) State() ReservationState {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.state
}

// IPs returns the addresses assigned to the interface in CIDR notation.
func (i *Interface) IPs() []string {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	out := make([]string, len(i.ips))
	copy(out, i.ips)
	return out
}

// SetIP assigns an address in CIDR notation. Replaces any previous
// assignment; the configurator applies it on the next run.
func (i *Interface) SetIP(cidr string) error {
	i.slice.mu.Lock()
	defer i.slice.mu.Unlock()
	if !util.IsValidCIDR(cidr) {
		return &InvalidSpecError{Entity: i.name, Reason: fmt.Sprintf("'%s' is not valid CIDR notation", cidr)}
	}
	i.mode = IPModeManual
	i.ips = []string{cidr}
	return nil
}

// OSDevice returns the in-OS device name discovered by the configurator,
// empty before the first configuration run.
func (i *Interface) OSDevice() string {
	i.slice.mu.RLock()
	defer i.slice.mu.RUnlock()
	return i.osDevice
}

// SetOSDevice records the discovered OS device name. Configurator-side.
func (i *Interface) SetOSDevice(dev string) {
	i.slice.mu.Lock()
	defer i.slice.mu.Unlock()
	i.osDevice = dev
}
