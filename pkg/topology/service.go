package topology

import (
	"fmt"
	"net"
	"sort"

	"github.com/weft-testbed/weft/pkg/util"
)

// ServiceType names the kind of connectivity a network service provides.
type ServiceType string

const (
	ServiceL2Bridge    ServiceType = "L2Bridge"
	ServiceL2PTP       ServiceType = "L2PTP"
	ServiceL2STS       ServiceType = "L2STS"
	ServiceFABNetv4    ServiceType = "FABNetv4"
	ServiceFABNetv6    ServiceType = "FABNetv6"
	ServiceFABNetv4Ext ServiceType = "FABNetv4Ext"
	ServiceFABNetv6Ext ServiceType = "FABNetv6Ext"
	ServiceL3VPN       ServiceType = "L3VPN"
	ServicePortMirror  ServiceType = "PortMirror"
)

// Layer is the network layer a service operates at.
type Layer string

const (
	LayerL2 Layer = "L2"
	LayerL3 Layer = "L3"
)

// Layer returns the network layer for the service type.
func (t ServiceType) Layer() Layer {
	switch t {
	case ServiceFABNetv4, ServiceFABNetv6, ServiceFABNetv4Ext, ServiceFABNetv6Ext, ServiceL3VPN:
		return LayerL3
	}
	return LayerL2
}

// serviceRule captures the client-side membership constraints per service
// type. Zero means unconstrained.
type serviceRule struct {
	minMembers int
	maxMembers int
	exactSites int
	noBasicNIC bool
}

var serviceRules = map[ServiceType]serviceRule{
	ServiceL2Bridge:    {minMembers: 2, exactSites: 1},
	ServiceL2PTP:       {minMembers: 2, maxMembers: 2, exactSites: 2, noBasicNIC: true},
	ServiceL2STS:       {minMembers: 2, exactSites: 2},
	ServiceFABNetv4:    {minMembers: 1, exactSites: 1},
	ServiceFABNetv6:    {minMembers: 1, exactSites: 1},
	ServiceFABNetv4Ext: {minMembers: 1, exactSites: 1},
	ServiceFABNetv6Ext: {minMembers: 1, exactSites: 1},
	ServiceL3VPN:       {minMembers: 1},
	ServicePortMirror:  {minMembers: 1, maxMembers: 1, noBasicNIC: true},
}

// NetworkService connects a set of interfaces at L2 or L3.
type NetworkService struct {
	slice *Slice

	name       string
	svcType    ServiceType
	interfaces []*Interface
	ero        []string // explicit route hops, L2PTP only

	// Authoritative fields, written by snapshot merge.
	reservationID string
	state         ReservationState
	subnet        string // CIDR, L3 services after stabilization
	gateway       string
	lastError     string
}

// AddNetworkService connects the given interfaces with a service of the
// given type. Membership constraints are checked synchronously; violations
// return InvalidTopologyError before anything is sent to the orchestrator.
func (s *Slice) AddNetworkService(name string, svcType ServiceType, ifaces []*Interface) (*NetworkService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addServiceLocked(name, svcType, ifaces)
}

// AddL2Network connects the interfaces at layer 2, picking the service type
// from their site spread: one site gets a bridge, two sites get a
// point-to-point or site-to-site service depending on member count and NIC
// models. More than two sites cannot be joined by one L2 service.
func (s *Slice) AddL2Network(name string, ifaces []*Interface) (*NetworkService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svcType, err := calcL2Type(name, ifaces)
	if err != nil {
		return nil, err
	}
	return s.addServiceLocked(name, svcType, ifaces)
}

// AddL3Network connects the interfaces to the testbed's routed IPv4 or IPv6
// network at their site. The orchestrator assigns the subnet and gateway;
// they appear on the service after the slice stabilizes.
func (s *Slice) AddL3Network(name string, svcType ServiceType, ifaces []*Interface) (*NetworkService, error) {
	if svcType.Layer() != LayerL3 {
		return nil, &InvalidTopologyError{Service: name, Reason: fmt.Sprintf("'%s' is not an L3 service type", svcType)}
	}
	return s.AddNetworkService(name, svcType, ifaces)
}

func (s *Slice) addServiceLocked(name string, svcType ServiceType, ifaces []*Interface) (*NetworkService, error) {
	if s.state != SliceUnsubmitted {
		return nil, &InvalidStateError{Operation: "add network service", Entity: name, State: string(s.state)}
	}
	if err := validateEntityName("network service", name); err != nil {
		return nil, err
	}
	if _, exists := s.services[name]; exists {
		return nil, &DuplicateNameError{Kind: "network service", Name: name}
	}

	for _, ifc := range ifaces {
		if ifc == nil {
			return nil, &InvalidTopologyError{Service: name, Reason: "nil interface"}
		}
		if ifc.slice != s {
			return nil, &InvalidTopologyError{Service: name, Reason: fmt.Sprintf("interface '%s' belongs to a different slice", ifc.name)}
		}
		if ifc.service != nil {
			return nil, &InvalidTopologyError{
				Service: name,
				Reason:  fmt.Sprintf("interface '%s' is already attached to service '%s'", ifc.name, ifc.service.name),
			}
		}
	}

	svc := &NetworkService{
		slice:      s,
		name:       name,
		svcType:    svcType,
		interfaces: append([]*Interface(nil), ifaces...),
		state:      StateUnsubmitted,
	}
	if err := svc.validateLocked(); err != nil {
		return nil, err
	}

	for _, ifc := range ifaces {
		ifc.service = svc
	}
	s.services[name] = svc
	return svc, nil
}

// calcL2Type picks the L2 service type for a member set. Two-member
// two-site sets become point-to-point unless a basic NIC is involved, which
// the point-to-point service cannot carry.
func calcL2Type(name string, ifaces []*Interface) (ServiceType, error) {
	if len(ifaces) == 0 {
		return "", &InvalidTopologyError{Service: name, Reason: "no interfaces given"}
	}

	sites := make(map[string]struct{})
	hasBasic := false
	for _, ifc := range ifaces {
		if ifc == nil {
			return "", &InvalidTopologyError{Service: name, Reason: "nil interface"}
		}
		sites[ifc.Site()] = struct{}{}
		if ifc.component != nil && ifc.component.model == ModelNICBasic {
			hasBasic = true
		}
	}

	switch len(sites) {
	case 1:
		return ServiceL2Bridge, nil
	case 2:
		if len(ifaces) == 2 && !hasBasic {
			return ServiceL2PTP, nil
		}
		return ServiceL2STS, nil
	default:
		return "", &InvalidTopologyError{
			Service: name,
			Reason:  fmt.Sprintf("an L2 service can span at most 2 sites, got %d", len(sites)),
		}
	}
}

// validateLocked checks the service against its type's membership rule.
// Caller holds the slice lock.
func (svc *NetworkService) validateLocked() error {
	rule, ok := serviceRules[svc.svcType]
	if !ok {
		return &InvalidTopologyError{Service: svc.name, Reason: fmt.Sprintf("unknown service type '%s'", svc.svcType)}
	}

	n := len(svc.interfaces)
	if n < rule.minMembers {
		return &InvalidTopologyError{
			Service: svc.name,
			Reason:  fmt.Sprintf("%s requires at least %d interfaces, got %d", svc.svcType, rule.minMembers, n),
		}
	}
	if rule.maxMembers > 0 && n > rule.maxMembers {
		return &InvalidTopologyError{
			Service: svc.name,
			Reason:  fmt.Sprintf("%s allows at most %d interfaces, got %d", svc.svcType, rule.maxMembers, n),
		}
	}

	sites := make(map[string]struct{})
	for _, ifc := range svc.interfaces {
		sites[ifc.Site()] = struct{}{}
		if rule.noBasicNIC && ifc.component != nil && ifc.component.model == ModelNICBasic {
			return &InvalidTopologyError{
				Service: svc.name,
				Reason:  fmt.Sprintf("%s does not support %s interfaces", svc.svcType, ModelNICBasic),
			}
		}
	}
	if rule.exactSites > 0 && len(sites) != rule.exactSites {
		return &InvalidTopologyError{
			Service: svc.name,
			Reason:  fmt.Sprintf("%s requires members at exactly %d site(s), got %d", svc.svcType, rule.exactSites, len(sites)),
		}
	}
	return nil
}

// detach removes an interface from the member list. Caller holds the lock.
func (svc *NetworkService) detach(ifc *Interface) {
	for i, member := range svc.interfaces {
		if member == ifc {
			svc.interfaces = append(svc.interfaces[:i], svc.interfaces[i+1:]...)
			break
		}
	}
	ifc.service = nil
}

// Name returns the service name.
func (svc *NetworkService) Name() string { return svc.name }

// Type returns the service type.
func (svc *NetworkService) Type() ServiceType { return svc.svcType }

// Layer returns the network layer the service operates at.
func (svc *NetworkService) Layer() Layer { return svc.svcType.Layer() }

// Slice returns the owning slice.
func (svc *NetworkService) Slice() *Slice { return svc.slice }

// Interfaces returns the member interfaces sorted by name.
func (svc *NetworkService) Interfaces() []*Interface {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	out := make([]*Interface, len(svc.interfaces))
	copy(out, svc.interfaces)
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// SetERO sets explicit route hops for path control. Only the point-to-point
// service honors an ERO.
func (svc *NetworkService) SetERO(hops []string) error {
	svc.slice.mu.Lock()
	defer svc.slice.mu.Unlock()
	if svc.svcType != ServiceL2PTP {
		return &InvalidTopologyError{Service: svc.name, Reason: fmt.Sprintf("ERO is only supported on %s services", ServiceL2PTP)}
	}
	svc.ero = append([]string(nil), hops...)
	return nil
}

// ERO returns the explicit route hops, empty when unset.
func (svc *NetworkService) ERO() []string {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	out := make([]string, len(svc.ero))
	copy(out, svc.ero)
	return out
}

// ReservationID returns the orchestrator-assigned reservation ID.
func (svc *NetworkService) ReservationID() string {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	return svc.reservationID
}

// State returns the service's reservation state.
func (svc *NetworkService) State() ReservationState {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	return svc.state
}

// Subnet returns the orchestrator-assigned subnet in CIDR notation, empty
// until an L3 service stabilizes.
func (svc *NetworkService) Subnet() string {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	return svc.subnet
}

// Gateway returns the orchestrator-assigned gateway address, empty until an
// L3 service stabilizes.
func (svc *NetworkService) Gateway() string {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	return svc.gateway
}

// LastError returns the orchestrator-reported error for the reservation.
func (svc *NetworkService) LastError() string {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()
	return svc.lastError
}

// AvailableIPs returns up to count unassigned host addresses from the
// service subnet, skipping the gateway and addresses already assigned to
// member interfaces. Empty before the subnet is known.
func (svc *NetworkService) AvailableIPs(count int) []string {
	svc.slice.mu.RLock()
	defer svc.slice.mu.RUnlock()

	if svc.subnet == "" || count <= 0 {
		return nil
	}
	_, subnet, err := net.ParseCIDR(svc.subnet)
	if err != nil {
		return nil
	}

	used := make(map[string]struct{})
	for _, ifc := range svc.interfaces {
		for _, cidr := range ifc.ips {
			addr, _ := util.SplitIPMask(cidr)
			used[addr] = struct{}{}
		}
	}

	var out []string
	for n := 1; len(out) < count; n++ {
		ip, err := util.NthHost(subnet, n)
		if err != nil {
			break
		}
		addr := ip.String()
		if addr == svc.gateway {
			continue
		}
		if _, taken := used[addr]; taken {
			continue
		}
		out = append(out, addr)
	}
	return out
}
