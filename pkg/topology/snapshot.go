package topology

import (
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/weft-testbed/weft/pkg/util"
)

// Snapshot is a point-in-time authoritative view of a slice as reported by
// the orchestrator, keyed by entity name. Snapshots are read-only data:
// producing one never mutates the graph, and a snapshot may legitimately
// cover only part of the topology while provisioning is underway.
type Snapshot struct {
	SliceID    string                   `json:"slice_id"`
	State      string                   `json:"state"`
	LeaseStart time.Time                `json:"lease_start,omitempty"`
	LeaseEnd   time.Time                `json:"lease_end,omitempty"`
	Nodes      map[string]NodeSliver    `json:"nodes,omitempty"`
	Services   map[string]ServiceSliver `json:"network_services,omitempty"`
	Facilities map[string]ServiceSliver `json:"facility_ports,omitempty"`
}

// NodeSliver is the authoritative reservation record for one node.
type NodeSliver struct {
	ReservationID string                     `json:"reservation_id"`
	State         ReservationState           `json:"state"`
	ManagementIP  string                     `json:"management_ip,omitempty"`
	Error         string                     `json:"error,omitempty"`
	Components    map[string]ComponentSliver `json:"components,omitempty"`
	Interfaces    map[string]InterfaceSliver `json:"interfaces,omitempty"`
}

// ComponentSliver carries the hardware placement the orchestrator chose.
type ComponentSliver struct {
	PCIAddresses []string `json:"pci_addresses,omitempty"`
	NUMANode     int      `json:"numa_node,omitempty"`
}

// InterfaceSliver carries per-interface provisioning results.
type InterfaceSliver struct {
	MAC   string           `json:"mac,omitempty"`
	VLAN  int              `json:"vlan,omitempty"`
	State ReservationState `json:"state,omitempty"`
}

// ServiceSliver is the authoritative reservation record for one network
// service or facility port.
type ServiceSliver struct {
	ReservationID string           `json:"reservation_id"`
	State         ReservationState `json:"state"`
	Subnet        string           `json:"subnet,omitempty"`
	Gateway       string           `json:"gateway,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Merge folds a snapshot into the graph and returns the recomputed
// aggregate state. The whole merge runs under one write lock: readers see
// either the pre-merge or post-merge graph, never a mix.
//
// Matching is by name. Entities in the graph but absent from the snapshot
// keep their local state (Unsubmitted until the orchestrator first reports
// them). Entities in the snapshot but not in the graph are ignored: the
// desired topology is what this process asked for, and unknown slivers are
// not grafted on. Authoritative fields are overwritten wholesale, so
// merging the same snapshot twice is a no-op.
func (s *Slice) Merge(snap *Snapshot) SliceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.SliceID != "" {
		s.sliceID = snap.SliceID
	}
	s.remoteState = snap.State
	if !snap.LeaseStart.IsZero() {
		s.leaseStart = snap.LeaseStart
	}
	if !snap.LeaseEnd.IsZero() {
		s.leaseEnd = snap.LeaseEnd
	}

	// Interfaces with their own sliver record keep it; the rest follow
	// their service's state below.
	reported := make(map[*Interface]struct{})

	for name, sliver := range snap.Nodes {
		n, ok := s.nodes[name]
		if !ok {
			util.WithSlice(s.name).Debugf("snapshot names unknown node '%s', ignoring", name)
			continue
		}
		n.reservationID = sliver.ReservationID
		n.state = sliver.State
		n.managementIP = sliver.ManagementIP
		n.lastError = sliver.Error

		for cname, csliver := range sliver.Components {
			c, ok := n.components[cname]
			if !ok {
				continue
			}
			c.pciAddresses = append([]string(nil), csliver.PCIAddresses...)
			c.numaNode = csliver.NUMANode
		}
		for iname, isliver := range sliver.Interfaces {
			ifc := n.interfaceLocked(iname)
			if ifc == nil {
				continue
			}
			if isliver.MAC != "" {
				ifc.mac = util.NormalizeMAC(isliver.MAC)
			}
			if isliver.VLAN != 0 {
				ifc.vlan = isliver.VLAN
			}
			if isliver.State != "" {
				ifc.state = isliver.State
				reported[ifc] = struct{}{}
			}
		}
	}

	for name, sliver := range snap.Services {
		svc, ok := s.services[name]
		if !ok {
			util.WithSlice(s.name).Debugf("snapshot names unknown service '%s', ignoring", name)
			continue
		}
		svc.reservationID = sliver.ReservationID
		svc.state = sliver.State
		svc.subnet = sliver.Subnet
		svc.gateway = sliver.Gateway
		svc.lastError = sliver.Error

		// Members with no interface-level record follow the service.
		for _, ifc := range svc.interfaces {
			if _, ok := reported[ifc]; !ok {
				ifc.state = sliver.State
			}
		}
	}

	for name, sliver := range snap.Facilities {
		fp, ok := s.facilities[name]
		if !ok {
			continue
		}
		fp.reservationID = sliver.ReservationID
		fp.state = sliver.State
		if _, ok := reported[fp.iface]; !ok {
			fp.iface.state = sliver.State
		}
	}

	s.assignAutoIPsLocked()
	s.state = s.computeStateLocked()
	return s.state
}

// interfaceLocked finds a node interface by name. Caller holds the lock.
func (n *Node) interfaceLocked(name string) *Interface {
	for _, c := range n.components {
		for _, ifc := range c.interfaces {
			if ifc.name == name {
				return ifc
			}
		}
	}
	return nil
}

// assignAutoIPsLocked gives every auto-mode member of an L3 service with a
// known subnet its address. Assignment walks hosts from the bottom of the
// subnet, skipping the gateway and anything already taken, visiting
// interfaces in name order so the outcome is deterministic and re-running
// after new snapshots only fills gaps.
func (s *Slice) assignAutoIPsLocked() {
	svcs := make([]*NetworkService, 0, len(s.services))
	for _, svc := range s.services {
		svcs = append(svcs, svc)
	}
	sort.Slice(svcs, func(i, j int) bool { return svcs[i].name < svcs[j].name })

	for _, svc := range svcs {
		if svc.Layer() != LayerL3 || svc.subnet == "" {
			continue
		}
		_, subnet, err := net.ParseCIDR(svc.subnet)
		if err != nil {
			util.WithSlice(s.name).Warnf("service '%s' reported bad subnet '%s'", svc.name, svc.subnet)
			continue
		}
		prefixLen, _ := subnet.Mask.Size()

		used := make(map[string]struct{})
		var pending []*Interface
		for _, ifc := range svc.interfaces {
			if ifc.mode == IPModeAuto && len(ifc.ips) == 0 {
				pending = append(pending, ifc)
				continue
			}
			for _, cidr := range ifc.ips {
				addr, _ := util.SplitIPMask(cidr)
				used[addr] = struct{}{}
			}
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i].name < pending[j].name })

		next := 1
		for _, ifc := range pending {
			for {
				ip, err := util.NthHost(subnet, next)
				if err != nil {
					util.WithSlice(s.name).Warnf("service '%s' subnet %s exhausted", svc.name, svc.subnet)
					return
				}
				next++
				addr := ip.String()
				if addr == svc.gateway {
					continue
				}
				if _, taken := used[addr]; taken {
					continue
				}
				ifc.ips = []string{addr + "/" + strconv.Itoa(prefixLen)}
				used[addr] = struct{}{}
				break
			}
		}
	}
}
