package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/weft-testbed/weft/internal/testutil"
	"github.com/weft-testbed/weft/pkg/orchestrator"
	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// pollSlice builds a submitted two-node slice with a point-to-point network,
// the canonical thing a Wait drives to stable.
func pollSlice(t *testing.T) *topology.Slice {
	t.Helper()

	s := topology.NewSlice("poll-unit")
	n1, err := s.AddNode("node1", topology.NodeConfig{Site: "STAR", Cores: 2, RAM: 8, Disk: 10})
	if err != nil {
		t.Fatalf("AddNode(node1) error = %v", err)
	}
	n2, err := s.AddNode("node2", topology.NodeConfig{Site: "TACC", Cores: 2, RAM: 8, Disk: 10})
	if err != nil {
		t.Fatalf("AddNode(node2) error = %v", err)
	}
	c1, err := n1.AddComponent("nic1", topology.ModelNICConnectX6)
	if err != nil {
		t.Fatalf("AddComponent(node1) error = %v", err)
	}
	c2, err := n2.AddComponent("nic1", topology.ModelNICConnectX6)
	if err != nil {
		t.Fatalf("AddComponent(node2) error = %v", err)
	}
	i1, _ := c1.Interface(1)
	i2, _ := c2.Interface(1)
	if _, err := s.AddL2Network("net1", []*topology.Interface{i1, i2}); err != nil {
		t.Fatalf("AddL2Network() error = %v", err)
	}
	s.MarkSubmitted("slice-guid-7")
	return s
}

func pendingSnapshot() *topology.Snapshot {
	return &topology.Snapshot{
		SliceID: "slice-guid-7",
		State:   "Configuring",
		Nodes: map[string]topology.NodeSliver{
			"node1": {ReservationID: "res-n1", State: topology.StateTicketed},
			"node2": {ReservationID: "res-n2", State: topology.StateTicketed},
		},
		Services: map[string]topology.ServiceSliver{
			"net1": {ReservationID: "res-s1", State: topology.StateTicketed},
		},
	}
}

func stableSnapshot() *topology.Snapshot {
	return &topology.Snapshot{
		SliceID: "slice-guid-7",
		State:   "StableOK",
		Nodes: map[string]topology.NodeSliver{
			"node1": {
				ReservationID: "res-n1",
				State:         topology.StateActive,
				ManagementIP:  "203.0.113.11",
				Interfaces: map[string]topology.InterfaceSliver{
					"node1-nic1-p1": {MAC: "02:01:00:00:00:01"},
				},
			},
			"node2": {
				ReservationID: "res-n2",
				State:         topology.StateActive,
				ManagementIP:  "203.0.113.12",
				Interfaces: map[string]topology.InterfaceSliver{
					"node2-nic1-p1": {MAC: "02:01:00:00:00:02"},
				},
			},
		},
		Services: map[string]topology.ServiceSliver{
			"net1": {ReservationID: "res-s1", State: topology.StateActive},
		},
	}
}

func failedSnapshot() *topology.Snapshot {
	snap := pendingSnapshot()
	snap.Nodes["node2"] = topology.NodeSliver{
		ReservationID: "res-n2",
		State:         topology.StateFailed,
		Error:         "insufficient resources at TACC",
	}
	return snap
}

func transportErr() error {
	return &orchestrator.TransportError{Op: "query", Err: errors.New("connection reset")}
}

func TestWaitStableAfterThreePolls(t *testing.T) {
	slice := pollSlice(t)
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{
			{Snapshot: pendingSnapshot()},
			{Snapshot: pendingSnapshot()},
			{Snapshot: stableSnapshot()},
		},
	}
	clock := testutil.NewFakeClock(time.Unix(1000, 0))
	p := &Poller{Client: fake, Clock: clock}

	var progress []topology.SliceState
	status, err := p.Wait(context.Background(), slice, WaitOptions{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Minute,
		Progress: func(iter int, elapsed time.Duration, state topology.SliceState) {
			progress = append(progress, state)
		},
	})
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if status != WaitStable {
		t.Errorf("Wait() status = %v, want %v", status, WaitStable)
	}
	if got := fake.QueryCalls(); got != 3 {
		t.Errorf("query calls = %d, want 3 (one per poll)", got)
	}
	if got := len(clock.Sleeps()); got != 2 {
		t.Errorf("sleeps = %d, want 2", got)
	}
	want := []topology.SliceState{topology.SlicePending, topology.SlicePending, topology.SliceStable}
	if len(progress) != len(want) {
		t.Fatalf("progress calls = %d, want %d", len(progress), len(want))
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}

	// The merged facts must be on the topology afterwards.
	n1, _ := slice.Node("node1")
	if n1.ManagementIP() != "203.0.113.11" {
		t.Errorf("node1 management IP = %q", n1.ManagementIP())
	}
	ifc, err := slice.Interface("node1-nic1-p1")
	if err != nil {
		t.Fatalf("Interface() error = %v", err)
	}
	if ifc.MAC() != "02:01:00:00:00:01" {
		t.Errorf("node1-nic1-p1 MAC = %q", ifc.MAC())
	}
}

func TestWaitFailedIsVerdictNotError(t *testing.T) {
	slice := pollSlice(t)
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{
			{Snapshot: pendingSnapshot()},
			{Snapshot: failedSnapshot()},
		},
	}
	p := &Poller{Client: fake, Clock: testutil.NewFakeClock(time.Unix(1000, 0))}

	status, err := p.Wait(context.Background(), slice, WaitOptions{Interval: 10 * time.Second, Timeout: 5 * time.Minute})
	if err != nil {
		t.Fatalf("Wait() error = %v, want nil (failure is a verdict)", err)
	}
	if status != WaitFailed {
		t.Errorf("Wait() status = %v, want %v", status, WaitFailed)
	}
	if got := fake.QueryCalls(); got != 2 {
		t.Errorf("query calls = %d, want 2 (failure short-circuits)", got)
	}
	n2, _ := slice.Node("node2")
	if n2.State() != topology.StateFailed {
		t.Errorf("node2 state = %v, want Failed", n2.State())
	}
	if n2.LastError() == "" {
		t.Error("node2 error detail lost in merge")
	}
}

func TestWaitRecoversWithinRetryBudget(t *testing.T) {
	slice := pollSlice(t)
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{
			{Err: transportErr()},
			{Err: transportErr()},
			{Snapshot: stableSnapshot()},
		},
	}
	p := &Poller{Client: fake, Clock: testutil.NewFakeClock(time.Unix(1000, 0))}

	status, err := p.Wait(context.Background(), slice, WaitOptions{
		Interval:        10 * time.Second,
		Timeout:         5 * time.Minute,
		MaxQueryRetries: 3,
	})
	if err != nil {
		t.Fatalf("Wait() error = %v, want recovery within budget", err)
	}
	if status != WaitStable {
		t.Errorf("Wait() status = %v, want %v", status, WaitStable)
	}
}

func TestWaitExhaustsRetryBudget(t *testing.T) {
	slice := pollSlice(t)
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{{Err: transportErr()}},
	}
	p := &Poller{Client: fake, Clock: testutil.NewFakeClock(time.Unix(1000, 0))}

	status, err := p.Wait(context.Background(), slice, WaitOptions{
		Interval:        10 * time.Second,
		Timeout:         5 * time.Minute,
		MaxQueryRetries: 3,
	})
	if !errors.Is(err, util.ErrPollingFailed) {
		t.Fatalf("Wait() error = %v, want ErrPollingFailed", err)
	}
	var pf *PollingFailedError
	if !errors.As(err, &pf) {
		t.Fatalf("Wait() error type = %T, want *PollingFailedError", err)
	}
	if pf.Attempts != 3 {
		t.Errorf("PollingFailedError.Attempts = %d, want 3", pf.Attempts)
	}
	if status != WaitUnknown {
		t.Errorf("Wait() status = %v, want %v", status, WaitUnknown)
	}
	if got := fake.QueryCalls(); got != 3 {
		t.Errorf("query calls = %d, want 3", got)
	}
}

func TestWaitRejectionSurfacesImmediately(t *testing.T) {
	slice := pollSlice(t)
	rej := &orchestrator.RejectedError{Op: "query", Status: 403, Reason: "token expired"}
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{{Err: rej}},
	}
	p := &Poller{Client: fake, Clock: testutil.NewFakeClock(time.Unix(1000, 0))}

	_, err := p.Wait(context.Background(), slice, WaitOptions{Interval: 10 * time.Second, Timeout: 5 * time.Minute})
	if !errors.Is(err, util.ErrRejected) {
		t.Fatalf("Wait() error = %v, want the rejection", err)
	}
	if got := fake.QueryCalls(); got != 1 {
		t.Errorf("query calls = %d, want 1 (no retry on rejection)", got)
	}
}

func TestWaitTimeoutKeepsLastMergedState(t *testing.T) {
	slice := pollSlice(t)
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{{Snapshot: pendingSnapshot()}},
	}
	p := &Poller{Client: fake, Clock: testutil.NewFakeClock(time.Unix(1000, 0))}

	status, err := p.Wait(context.Background(), slice, WaitOptions{
		Interval: 10 * time.Second,
		Timeout:  25 * time.Second,
	})
	if err != nil {
		t.Fatalf("Wait() error = %v, want nil on timeout", err)
	}
	if status != WaitTimedOut {
		t.Errorf("Wait() status = %v, want %v", status, WaitTimedOut)
	}
	// Last merged snapshot survives the timeout.
	n1, _ := slice.Node("node1")
	if n1.State() != topology.StateTicketed {
		t.Errorf("node1 state = %v, want Ticketed from last merge", n1.State())
	}
	if slice.State() != topology.SlicePending {
		t.Errorf("slice state = %v, want %v", slice.State(), topology.SlicePending)
	}
}

func TestWaitCancelledBetweenIterations(t *testing.T) {
	slice := pollSlice(t)
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{{Snapshot: pendingSnapshot()}},
	}
	p := &Poller{Client: fake, Clock: testutil.NewFakeClock(time.Unix(1000, 0))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Wait(ctx, slice, WaitOptions{Interval: 10 * time.Second, Timeout: 5 * time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
	if got := fake.QueryCalls(); got != 1 {
		t.Errorf("query calls = %d, want 1 (cancel checked between iterations)", got)
	}
}

func TestWaitRequiresSubmittedSlice(t *testing.T) {
	s := topology.NewSlice("never-submitted")
	fake := &testutil.FakeOrchestrator{
		Script: []testutil.QueryResult{{Snapshot: pendingSnapshot()}},
	}
	p := &Poller{Client: fake}

	_, err := p.Wait(context.Background(), s, WaitOptions{})
	if !errors.Is(err, util.ErrInvalidState) {
		t.Fatalf("Wait() error = %v, want ErrInvalidState", err)
	}
	if got := fake.QueryCalls(); got != 0 {
		t.Errorf("query calls = %d, want 0", got)
	}
}
