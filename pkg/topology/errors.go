package topology

import (
	"fmt"

	"github.com/weft-testbed/weft/pkg/util"
)

// DuplicateNameError reports an entity name that is already taken within
// the slice.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s '%s' already exists in slice", e.Kind, e.Name)
}

func (e *DuplicateNameError) Unwrap() error {
	return util.ErrDuplicateName
}

// InvalidSpecError reports a malformed entity specification, such as a node
// declared with both a capacity and an instance type.
type InvalidSpecError struct {
	Entity string
	Reason string
}

func (e *InvalidSpecError) Error() string {
	if e.Entity == "" {
		return "invalid spec: " + e.Reason
	}
	return fmt.Sprintf("invalid spec for '%s': %s", e.Entity, e.Reason)
}

func (e *InvalidSpecError) Unwrap() error {
	return util.ErrInvalidSpec
}

// InvalidTopologyError reports a graph-level constraint violation, such as a
// point-to-point service with the wrong member count.
type InvalidTopologyError struct {
	Service string
	Reason  string
}

func (e *InvalidTopologyError) Error() string {
	if e.Service == "" {
		return "invalid topology: " + e.Reason
	}
	return fmt.Sprintf("invalid topology for service '%s': %s", e.Service, e.Reason)
}

func (e *InvalidTopologyError) Unwrap() error {
	return util.ErrInvalidTopology
}

// InvalidStateError reports an operation attempted in a slice or reservation
// state that does not permit it.
type InvalidStateError struct {
	Operation string
	Entity    string
	State     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s '%s' in state %s", e.Operation, e.Entity, e.State)
}

func (e *InvalidStateError) Unwrap() error {
	return util.ErrInvalidState
}

// UnsupportedModelError reports a component model that is unknown or not
// offered at the node's site.
type UnsupportedModelError struct {
	Model string
	Site  string
}

func (e *UnsupportedModelError) Error() string {
	if e.Site == "" {
		return fmt.Sprintf("component model '%s' is not supported", e.Model)
	}
	return fmt.Sprintf("component model '%s' is not available at site %s", e.Model, e.Site)
}

func (e *UnsupportedModelError) Unwrap() error {
	return util.ErrUnsupportedModel
}
