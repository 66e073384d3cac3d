// Package topology models the desired and observed state of a slice: the
// graph of nodes, components, interfaces, and network services that an
// experiment asks the testbed for. Builder methods validate locally and
// synchronously; authoritative fields (reservation IDs, states, addresses)
// are only ever written by merging orchestrator snapshots.
package topology

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Slice is the root of the topology graph. All entity access goes through
// the slice's lock: builder writes, snapshot merges, and reads each take it
// once, so a merge is observed fully or not at all.
type Slice struct {
	mu sync.RWMutex

	name    string
	project string

	// Assigned by the orchestrator on first submit.
	sliceID string

	// Aggregate state computed from entity reservation states. Written by
	// Merge, MarkSubmitted, and MarkDeleted only.
	state SliceState

	// State string as last reported by the orchestrator, informational.
	remoteState string

	leaseStart time.Time
	leaseEnd   time.Time

	// Key material references injected at submit.
	sshPublicKey      string
	sshPrivateKeyPath string

	nodes      map[string]*Node
	services   map[string]*NetworkService
	facilities map[string]*FacilityPort
}

// NewSlice creates an empty unsubmitted slice.
func NewSlice(name string) *Slice {
	return &Slice{
		name:       name,
		state:      SliceUnsubmitted,
		nodes:      make(map[string]*Node),
		services:   make(map[string]*NetworkService),
		facilities: make(map[string]*FacilityPort),
	}
}

// getEntity is a generic helper for map-based entity lookups under a read lock.
func getEntity[V any](mu *sync.RWMutex, m map[string]V, kind, name string) (V, error) {
	mu.RLock()
	defer mu.RUnlock()
	v, ok := m[name]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%s '%s' not found", kind, name)
	}
	return v, nil
}

// ============================================================================
// Accessors
// ============================================================================

// Name returns the slice name.
func (s *Slice) Name() string { return s.name }

// ID returns the orchestrator-assigned slice ID, empty before first submit.
func (s *Slice) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sliceID
}

// State returns the aggregate slice state.
func (s *Slice) State() SliceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RemoteState returns the orchestrator's own slice state string from the
// last merged snapshot, informational only.
func (s *Slice) RemoteState() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.remoteState
}

// Project returns the project this slice is billed to.
func (s *Slice) Project() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project
}

// SetProject records the owning project, used by submit.
func (s *Slice) SetProject(project string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = project
}

// Lease returns the reservation lease window. Zero times before submit.
func (s *Slice) Lease() (start, end time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaseStart, s.leaseEnd
}

// SSHPublicKey returns the public key submitted with the slice.
func (s *Slice) SSHPublicKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sshPublicKey
}

// SSHPrivateKeyPath returns the path of the matching private key.
func (s *Slice) SSHPrivateKeyPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sshPrivateKeyPath
}

// SetSSHKeys records the key material used to reach slice nodes.
func (s *Slice) SetSSHKeys(publicKey, privateKeyPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sshPublicKey = publicKey
	s.sshPrivateKeyPath = privateKeyPath
}

// Node returns a node by name.
func (s *Slice) Node(name string) (*Node, error) {
	return getEntity(&s.mu, s.nodes, "node", name)
}

// Nodes returns all nodes sorted by name.
func (s *Slice) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Service returns a network service by name.
func (s *Slice) Service(name string) (*NetworkService, error) {
	return getEntity(&s.mu, s.services, "network service", name)
}

// Services returns all network services sorted by name.
func (s *Slice) Services() []*NetworkService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*NetworkService, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// FacilityPort returns a facility port by name.
func (s *Slice) FacilityPort(name string) (*FacilityPort, error) {
	return getEntity(&s.mu, s.facilities, "facility port", name)
}

// FacilityPorts returns all facility ports sorted by name.
func (s *Slice) FacilityPorts() []*FacilityPort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*FacilityPort, 0, len(s.facilities))
	for _, fp := range s.facilities {
		out = append(out, fp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Interfaces returns every interface in the slice sorted by name.
func (s *Slice) Interfaces() []*Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interfacesLocked()
}

func (s *Slice) interfacesLocked() []*Interface {
	var out []*Interface
	for _, n := range s.nodes {
		for _, c := range n.components {
			out = append(out, c.interfaces...)
		}
	}
	for _, fp := range s.facilities {
		out = append(out, fp.iface)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Interface returns an interface anywhere in the slice by its full name.
func (s *Slice) Interface(name string) (*Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ifc := range s.interfacesLocked() {
		if ifc.name == name {
			return ifc, nil
		}
	}
	return nil, fmt.Errorf("interface '%s' not found", name)
}

// ============================================================================
// Builders
// ============================================================================

// NodeConfig describes a node to add. Exactly one of a capacity spec
// (Cores/RAM/Disk) or an InstanceType must be given.
type NodeConfig struct {
	Site  string
	Image string
	Host  string // optional worker host pinning, e.g. "star-w2.weft-testbed.net"

	// Capacity spec: cores, RAM in GB, disk in GB.
	Cores int
	RAM   int
	Disk  int

	// Named instance type, mutually exclusive with the capacity spec.
	InstanceType string
}

// AddNode adds a node to an unsubmitted slice.
func (s *Slice) AddNode(name string, cfg NodeConfig) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SliceUnsubmitted {
		return nil, &InvalidStateError{Operation: "add node", Entity: name, State: string(s.state)}
	}
	if err := validateEntityName("node", name); err != nil {
		return nil, err
	}
	if _, exists := s.nodes[name]; exists {
		return nil, &DuplicateNameError{Kind: "node", Name: name}
	}
	if _, exists := s.facilities[name]; exists {
		return nil, &DuplicateNameError{Kind: "node", Name: name}
	}

	hasCapacity := cfg.Cores > 0 || cfg.RAM > 0 || cfg.Disk > 0
	hasInstanceType := cfg.InstanceType != ""
	if hasCapacity && hasInstanceType {
		return nil, &InvalidSpecError{Entity: name, Reason: "capacity and instance type are mutually exclusive"}
	}
	if !hasCapacity && !hasInstanceType {
		return nil, &InvalidSpecError{Entity: name, Reason: "either a capacity (cores/ram/disk) or an instance type is required"}
	}
	if hasCapacity && (cfg.Cores <= 0 || cfg.RAM <= 0 || cfg.Disk <= 0) {
		return nil, &InvalidSpecError{Entity: name, Reason: "capacity requires cores, ram, and disk all > 0"}
	}
	if cfg.Site == "" {
		return nil, &InvalidSpecError{Entity: name, Reason: "site is required"}
	}

	image := cfg.Image
	if image == "" {
		image = DefaultImage
	}

	n := &Node{
		slice:        s,
		name:         name,
		site:         cfg.Site,
		host:         cfg.Host,
		image:        image,
		cores:        cfg.Cores,
		ram:          cfg.RAM,
		disk:         cfg.Disk,
		instanceType: cfg.InstanceType,
		state:        StateUnsubmitted,
		components:   make(map[string]*Component),
	}
	s.nodes[name] = n
	return n, nil
}

// RemoveNode removes a node and detaches its interfaces from any services.
// Legal before submission, or afterwards once the node's reservation has
// reached a terminal state.
func (s *Slice) RemoveNode(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		return fmt.Errorf("node '%s' not found", name)
	}
	if s.state != SliceUnsubmitted && !n.state.Terminal() {
		return &InvalidStateError{Operation: "remove node", Entity: name, State: string(n.state)}
	}

	for _, c := range n.components {
		for _, ifc := range c.interfaces {
			if ifc.service != nil {
				ifc.service.detach(ifc)
			}
		}
	}
	delete(s.nodes, name)
	return nil
}

// RemoveNetworkService removes a service and releases its member interfaces.
// Legal before submission, or afterwards once the service's reservation has
// reached a terminal state.
func (s *Slice) RemoveNetworkService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[name]
	if !ok {
		return fmt.Errorf("network service '%s' not found", name)
	}
	if s.state != SliceUnsubmitted && !svc.state.Terminal() {
		return &InvalidStateError{Operation: "remove network service", Entity: name, State: string(svc.state)}
	}

	for _, ifc := range svc.interfaces {
		ifc.service = nil
	}
	delete(s.services, name)
	return nil
}

// ============================================================================
// Lifecycle marks
// These are the only writers of slice identity and aggregate state besides
// Merge: submit and delete flows call them after the orchestrator acted.
// ============================================================================

// MarkSubmitted records the orchestrator-assigned slice ID after a
// successful submit and moves the slice out of the build phase.
func (s *Slice) MarkSubmitted(sliceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sliceID = sliceID
	s.state = SliceSubmitted
}

// MarkDeleted marks the slice deleted after the orchestrator confirmed it.
func (s *Slice) MarkDeleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SliceDeleted
}

// SetLease records a renewed lease end accepted by the orchestrator.
func (s *Slice) SetLease(end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaseEnd = end
}

// ============================================================================
// Validation and state math
// ============================================================================

// Validate re-checks graph-level constraints across the whole slice. Builder
// methods validate incrementally; this pass catches constraints invalidated
// by later removals and is run before submit.
func (s *Slice) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.nodes) == 0 && len(s.facilities) == 0 {
		return &InvalidTopologyError{Reason: "slice has no nodes"}
	}
	for _, svc := range s.services {
		if err := svc.validateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// ComputeState folds entity reservation states into the aggregate slice
// state without mutating anything.
func (s *Slice) ComputeState() SliceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computeStateLocked()
}

func (s *Slice) computeStateLocked() SliceState {
	if s.sliceID == "" {
		return SliceUnsubmitted
	}
	if s.state == SliceDeleted {
		return SliceDeleted
	}
	states := make([]ReservationState, 0, len(s.nodes)+len(s.services)+len(s.facilities))
	for _, n := range s.nodes {
		states = append(states, n.state)
	}
	for _, svc := range s.services {
		states = append(states, svc.state)
	}
	for _, fp := range s.facilities {
		states = append(states, fp.state)
	}
	return aggregateState(states)
}

func validateEntityName(kind, name string) error {
	if name == "" {
		return &InvalidSpecError{Reason: kind + " name is required"}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_'
		if !ok {
			return &InvalidSpecError{Entity: name, Reason: kind + " name may only contain letters, digits, '-' and '_'"}
		}
	}
	return nil
}
