package topology

import (
	"reflect"
	"testing"
	"time"
)

func activeSnapshot() *Snapshot {
	return &Snapshot{
		SliceID:    "slice-guid",
		State:      "StableOK",
		LeaseStart: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LeaseEnd:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		Nodes: map[string]NodeSliver{
			"node1": {
				ReservationID: "res-n1",
				State:         StateActive,
				ManagementIP:  "198.51.100.10",
				Components: map[string]ComponentSliver{
					"nic1": {PCIAddresses: []string{"0000:1f:00.0"}, NUMANode: 1},
				},
				Interfaces: map[string]InterfaceSliver{
					"node1-nic1-p1": {MAC: "0A:0B:0C:0D:0E:01", State: StateActive},
				},
			},
			"node2": {
				ReservationID: "res-n2",
				State:         StateActive,
				ManagementIP:  "198.51.100.11",
				Interfaces: map[string]InterfaceSliver{
					"node2-nic1-p1": {MAC: "0A:0B:0C:0D:0E:02", State: StateActive},
				},
			},
		},
		Services: map[string]ServiceSliver{
			"net1": {ReservationID: "res-net1", State: StateActive},
		},
	}
}

func TestMergeAppliesAuthoritativeFields(t *testing.T) {
	s := twoNodePTP(t)
	s.MarkSubmitted("slice-guid")

	state := s.Merge(activeSnapshot())
	if state != SliceStable {
		t.Fatalf("Merge() state = %v, want %v", state, SliceStable)
	}

	n1, _ := s.Node("node1")
	if n1.ManagementIP() != "198.51.100.10" {
		t.Errorf("ManagementIP = %q", n1.ManagementIP())
	}
	if n1.ReservationID() != "res-n1" {
		t.Errorf("ReservationID = %q", n1.ReservationID())
	}
	if n1.State() != StateActive {
		t.Errorf("State = %v", n1.State())
	}

	c, _ := n1.Component("nic1")
	if got := c.PCIAddresses(); len(got) != 1 || got[0] != "0000:1f:00.0" {
		t.Errorf("PCIAddresses = %v", got)
	}
	if c.NUMANode() != 1 {
		t.Errorf("NUMANode = %d", c.NUMANode())
	}

	ifc, _ := n1.Interface("node1-nic1-p1")
	if ifc.MAC() != "0a:0b:0c:0d:0e:01" {
		t.Errorf("MAC = %q, want normalized lower-case", ifc.MAC())
	}

	start, end := s.Lease()
	if start.IsZero() || end.IsZero() {
		t.Error("lease not applied")
	}
	if s.RemoteState() != "StableOK" {
		t.Errorf("RemoteState = %q", s.RemoteState())
	}
}

// Merging the same snapshot twice must leave the graph exactly as one
// merge does.
func TestMergeIdempotent(t *testing.T) {
	s1 := twoNodePTP(t)
	s1.MarkSubmitted("slice-guid")
	s2 := twoNodePTP(t)
	s2.MarkSubmitted("slice-guid")

	snap := activeSnapshot()
	s1.Merge(snap)

	s2.Merge(snap)
	s2.Merge(snap)

	d1 := s1.Document()
	d2 := s2.Document()
	if !reflect.DeepEqual(d1, d2) {
		t.Errorf("double merge diverged from single merge:\n%+v\nvs\n%+v", d1, d2)
	}
}

// A snapshot that covers only part of the topology must leave the missing
// entities untouched.
func TestMergePartialSnapshot(t *testing.T) {
	s := twoNodePTP(t)
	s.MarkSubmitted("slice-guid")

	state := s.Merge(&Snapshot{
		SliceID: "slice-guid",
		State:   "Configuring",
		Nodes: map[string]NodeSliver{
			"node1": {ReservationID: "res-n1", State: StateTicketed},
		},
	})
	if state != SlicePending {
		t.Errorf("Merge() state = %v, want %v", state, SlicePending)
	}

	n2, _ := s.Node("node2")
	if n2.State() != StateUnsubmitted {
		t.Errorf("absent node state = %v, want %v", n2.State(), StateUnsubmitted)
	}
	if n2.ReservationID() != "" {
		t.Errorf("absent node gained reservation %q", n2.ReservationID())
	}
}

// Any Failed reservation makes the whole slice Failed, whatever else the
// snapshot says.
func TestMergeFailedShortCircuits(t *testing.T) {
	s := twoNodePTP(t)
	s.MarkSubmitted("slice-guid")

	snap := activeSnapshot()
	n := snap.Nodes["node2"]
	n.State = StateFailed
	n.Error = "insufficient capacity"
	snap.Nodes["node2"] = n

	if state := s.Merge(snap); state != SliceFailed {
		t.Errorf("Merge() state = %v, want %v", state, SliceFailed)
	}
	n2, _ := s.Node("node2")
	if n2.LastError() != "insufficient capacity" {
		t.Errorf("LastError = %q", n2.LastError())
	}
}

func TestMergeIgnoresUnknownEntities(t *testing.T) {
	s := twoNodePTP(t)
	s.MarkSubmitted("slice-guid")

	snap := activeSnapshot()
	snap.Nodes["phantom"] = NodeSliver{ReservationID: "res-x", State: StateActive}
	snap.Services["phantom-net"] = ServiceSliver{ReservationID: "res-y", State: StateActive}

	s.Merge(snap)
	if _, err := s.Node("phantom"); err == nil {
		t.Error("unknown node was grafted into the graph")
	}
	if _, err := s.Service("phantom-net"); err == nil {
		t.Error("unknown service was grafted into the graph")
	}
}

func TestMergeAssignsAutoIPs(t *testing.T) {
	s := NewSlice("test")
	n1 := mustAddNode(t, s, "node1", "STAR")
	n2 := mustAddNode(t, s, "node2", "STAR")
	c1, _ := n1.AddComponent("nic1", ModelNICBasic)
	c2, _ := n2.AddComponent("nic1", ModelNICBasic)
	i1, _ := c1.Interface(1)
	i2, _ := c2.Interface(1)
	if _, err := s.AddL3Network("net1", ServiceFABNetv4, []*Interface{i1, i2}); err != nil {
		t.Fatalf("AddL3Network() error = %v", err)
	}
	s.MarkSubmitted("slice-guid")

	snap := &Snapshot{
		SliceID: "slice-guid",
		Services: map[string]ServiceSliver{
			"net1": {ReservationID: "r1", State: StateActive, Subnet: "10.128.0.0/24", Gateway: "10.128.0.1"},
		},
	}
	s.Merge(snap)

	// Name order, skipping the gateway.
	if got := i1.IPs(); len(got) != 1 || got[0] != "10.128.0.2/24" {
		t.Errorf("node1 IPs = %v, want [10.128.0.2/24]", got)
	}
	if got := i2.IPs(); len(got) != 1 || got[0] != "10.128.0.3/24" {
		t.Errorf("node2 IPs = %v, want [10.128.0.3/24]", got)
	}

	// Re-merging must not reassign or shift addresses.
	s.Merge(snap)
	if got := i1.IPs(); len(got) != 1 || got[0] != "10.128.0.2/24" {
		t.Errorf("node1 IPs after re-merge = %v", got)
	}

	// Manual-mode interfaces are left alone.
	if i2.Mode() != IPModeAuto {
		t.Errorf("mode changed to %v", i2.Mode())
	}
}

func TestMergeAutoIPsRespectManualAssignments(t *testing.T) {
	s := NewSlice("test")
	n1 := mustAddNode(t, s, "node1", "STAR")
	n2 := mustAddNode(t, s, "node2", "STAR")
	c1, _ := n1.AddComponent("nic1", ModelNICBasic)
	c2, _ := n2.AddComponent("nic1", ModelNICBasic)
	i1, _ := c1.Interface(1)
	i2, _ := c2.Interface(1)
	if _, err := s.AddL3Network("net1", ServiceFABNetv4, []*Interface{i1, i2}); err != nil {
		t.Fatalf("AddL3Network() error = %v", err)
	}
	if err := i1.SetIP("10.128.0.2/24"); err != nil {
		t.Fatalf("SetIP() error = %v", err)
	}
	s.MarkSubmitted("slice-guid")

	s.Merge(&Snapshot{
		SliceID: "slice-guid",
		Services: map[string]ServiceSliver{
			"net1": {ReservationID: "r1", State: StateActive, Subnet: "10.128.0.0/24", Gateway: "10.128.0.1"},
		},
	})

	// The manually taken .2 must be skipped for the auto interface.
	if got := i2.IPs(); len(got) != 1 || got[0] != "10.128.0.3/24" {
		t.Errorf("auto interface IPs = %v, want [10.128.0.3/24]", got)
	}
}

func TestAggregateState(t *testing.T) {
	tests := []struct {
		name   string
		states []ReservationState
		want   SliceState
	}{
		{
			name:   "all active",
			states: []ReservationState{StateActive, StateActive},
			want:   SliceStable,
		},
		{
			name:   "active and active-ticketed",
			states: []ReservationState{StateActive, StateActiveTicketed},
			want:   SliceStable,
		},
		{
			name:   "one still ticketed",
			states: []ReservationState{StateActive, StateTicketed},
			want:   SlicePending,
		},
		{
			name:   "failed wins over pending",
			states: []ReservationState{StateTicketed, StateFailed, StateActive},
			want:   SliceFailed,
		},
		{
			name:   "failed wins over all active",
			states: []ReservationState{StateActive, StateActive, StateFailed},
			want:   SliceFailed,
		},
		{
			name:   "unsubmitted entities hold the slice pending",
			states: []ReservationState{StateActive, StateUnsubmitted},
			want:   SlicePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregateState(tt.states); got != tt.want {
				t.Errorf("aggregateState(%v) = %v, want %v", tt.states, got, tt.want)
			}
		})
	}
}

func TestComputeStateUnsubmitted(t *testing.T) {
	s := twoNodePTP(t)
	if got := s.ComputeState(); got != SliceUnsubmitted {
		t.Errorf("ComputeState() = %v, want %v", got, SliceUnsubmitted)
	}
}
