package topology

import (
	"fmt"

	"github.com/weft-testbed/weft/pkg/util"
)

// FacilityPort is a fixed attachment point into an external facility's
// network at a site. It exposes a single VLAN-tagged interface that can be
// stitched into an L2 service alongside node interfaces.
type FacilityPort struct {
	slice *Slice

	name  string
	site  string
	iface *Interface

	// Authoritative fields, written by snapshot merge.
	reservationID string
	state         ReservationState
}

// AddFacilityPort declares a facility attachment at a site with the given
// VLAN. The port's interface joins services like any node interface.
func (s *Slice) AddFacilityPort(name, site string, vlan int) (*FacilityPort, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SliceUnsubmitted {
		return nil, &InvalidStateError{Operation: "add facility port", Entity: name, State: string(s.state)}
	}
	if err := validateEntityName("facility port", name); err != nil {
		return nil, err
	}
	if _, exists := s.facilities[name]; exists {
		return nil, &DuplicateNameError{Kind: "facility port", Name: name}
	}
	if _, exists := s.nodes[name]; exists {
		return nil, &DuplicateNameError{Kind: "facility port", Name: name}
	}
	if site == "" {
		return nil, &InvalidSpecError{Entity: name, Reason: "site is required"}
	}
	if err := util.ValidateVLAN(vlan); err != nil {
		return nil, &InvalidSpecError{Entity: name, Reason: err.Error()}
	}

	fp := &FacilityPort{
		slice: s,
		name:  name,
		site:  site,
		state: StateUnsubmitted,
	}
	fp.iface = &Interface{
		slice:    s,
		facility: fp,
		name:     fmt.Sprintf("%s-p1", name),
		mode:     IPModeManual,
		vlan:     vlan,
		state:    StateUnsubmitted,
	}
	s.facilities[name] = fp
	return fp, nil
}

// Name returns the facility port name.
func (fp *FacilityPort) Name() string { return fp.name }

// Site returns the site the facility attaches at.
func (fp *FacilityPort) Site() string { return fp.site }

// Interface returns the port's single stitching interface.
func (fp *FacilityPort) Interface() *Interface { return fp.iface }

// State returns the facility port's reservation state.
func (fp *FacilityPort) State() ReservationState {
	fp.slice.mu.RLock()
	defer fp.slice.mu.RUnlock()
	return fp.state
}

// ReservationID returns the orchestrator-assigned reservation ID.
func (fp *FacilityPort) ReservationID() string {
	fp.slice.mu.RLock()
	defer fp.slice.mu.RUnlock()
	return fp.reservationID
}
