package topology

// ReservationState is the lifecycle state the orchestrator reports for a
// single entity reservation (a sliver). Entities that have never been
// submitted carry StateUnsubmitted locally.
type ReservationState string

const (
	StateUnsubmitted    ReservationState = "Unsubmitted"
	StateTicketed       ReservationState = "Ticketed"
	StateProvisioning   ReservationState = "Provisioning"
	StateActive         ReservationState = "Active"
	StateActiveTicketed ReservationState = "ActiveTicketed"
	StateClosing        ReservationState = "Closing"
	StateClosed         ReservationState = "Closed"
	StateFailed         ReservationState = "Failed"
)

// Ready reports whether the reservation reached a usable state.
// Both Active and ActiveTicketed count: an extend can leave a live
// reservation ticketed again without taking it down.
func (s ReservationState) Ready() bool {
	return s == StateActive || s == StateActiveTicketed
}

// Terminal reports whether the reservation can no longer transition on its
// own: it is live, closed, or failed.
func (s ReservationState) Terminal() bool {
	switch s {
	case StateClosed, StateFailed:
		return true
	}
	return false
}

// SliceState is the locally computed aggregate state of a slice.
type SliceState string

const (
	SliceUnsubmitted SliceState = "Unsubmitted"
	SliceSubmitted   SliceState = "Submitted"
	SlicePending     SliceState = "Pending"
	SliceStable      SliceState = "Stable"
	SliceFailed      SliceState = "Failed"
	SliceDeleted     SliceState = "Deleted"
)

// aggregateState folds entity reservation states into a slice state.
// Any Failed wins immediately; otherwise every state must be ready for the
// slice to be Stable; anything else is still Pending.
func aggregateState(states []ReservationState) SliceState {
	for _, s := range states {
		if s == StateFailed {
			return SliceFailed
		}
	}
	for _, s := range states {
		if !s.Ready() {
			return SlicePending
		}
	}
	return SliceStable
}
