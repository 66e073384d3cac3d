package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weft-testbed/weft/pkg/orchestrator"
	"github.com/weft-testbed/weft/pkg/topology"
)

// QueryResult is one scripted answer from FakeOrchestrator.Query.
type QueryResult struct {
	Snapshot *topology.Snapshot
	Err      error
}

// FakeOrchestrator is a scripted orchestrator.Client. Query answers follow
// Script in order; when the script runs out the last entry repeats. All
// calls are counted and recorded.
type FakeOrchestrator struct {
	mu sync.Mutex

	// SliceID is assigned on Submit. Defaults to "fake-slice-1".
	SliceID string

	// SubmitSnapshot is returned from Submit alongside the slice ID.
	SubmitSnapshot *topology.Snapshot

	// SubmitErr, when set, fails Submit.
	SubmitErr error

	// Script holds the Query answers in order.
	Script []QueryResult

	// DeleteErr / RenewErr, when set, fail the corresponding call.
	DeleteErr error
	RenewErr  error

	submits []orchestrator.SubmitRequest
	queries int
	deletes []string
	renews  map[string]time.Time
}

var _ orchestrator.Client = (*FakeOrchestrator)(nil)

// Submit implements orchestrator.Client.
func (f *FakeOrchestrator) Submit(ctx context.Context, req orchestrator.SubmitRequest) (string, *topology.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	if f.SubmitErr != nil {
		return "", nil, f.SubmitErr
	}
	id := f.SliceID
	if id == "" {
		id = "fake-slice-1"
	}
	return id, f.SubmitSnapshot, nil
}

// Query implements orchestrator.Client, consuming the script.
func (f *FakeOrchestrator) Query(ctx context.Context, sliceID string) (*topology.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Script) == 0 {
		return nil, fmt.Errorf("testutil: FakeOrchestrator has no scripted query results")
	}
	idx := f.queries
	if idx >= len(f.Script) {
		idx = len(f.Script) - 1
	}
	f.queries++
	r := f.Script[idx]
	return r.Snapshot, r.Err
}

// Delete implements orchestrator.Client.
func (f *FakeOrchestrator) Delete(ctx context.Context, sliceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, sliceID)
	return f.DeleteErr
}

// Renew implements orchestrator.Client.
func (f *FakeOrchestrator) Renew(ctx context.Context, sliceID string, end time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renews == nil {
		f.renews = make(map[string]time.Time)
	}
	f.renews[sliceID] = end
	return f.RenewErr
}

// QueryCalls returns how many times Query ran.
func (f *FakeOrchestrator) QueryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

// Submits returns the recorded submit requests.
func (f *FakeOrchestrator) Submits() []orchestrator.SubmitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]orchestrator.SubmitRequest, len(f.submits))
	copy(out, f.submits)
	return out
}

// Deletes returns the slice IDs passed to Delete.
func (f *FakeOrchestrator) Deletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.deletes))
	copy(out, f.deletes)
	return out
}

// RenewedEnd returns the lease end recorded for a slice, if any.
func (f *FakeOrchestrator) RenewedEnd(sliceID string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	end, ok := f.renews[sliceID]
	return end, ok
}
