// Package orchestrator defines the client adapter through which slices are
// submitted to, queried from, and released on the testbed control framework.
//
// The package deliberately exposes a narrow surface: a Client interface with
// four operations and the typed errors those operations can return. Everything
// above the adapter (merging, polling, post-boot configuration) is written
// against the interface so that tests can substitute a scripted fake and the
// REST implementation stays swappable.
package orchestrator

import (
	"context"
	"time"

	"github.com/weft-testbed/weft/pkg/topology"
)

// LeaseTimeLayout is the timestamp layout the control framework accepts for
// lease end times.
const LeaseTimeLayout = "2006-01-02 15:04:05 -0700"

// SubmitRequest carries everything the control framework needs to instantiate
// a slice. The topology document is the desired graph as built by the caller;
// authoritative fields in it are ignored by the orchestrator.
type SubmitRequest struct {
	// Name is the slice name, unique per project.
	Name string

	// Project is the project (allocation context) the slice is charged to.
	Project string

	// SSHKey is the public half of the slice keypair, installed on every
	// provisioned node for the default user.
	SSHKey string

	// LeaseEnd requests an initial lease end time. Zero means the
	// orchestrator default.
	LeaseEnd time.Time

	// Topology is the desired slice graph.
	Topology *topology.Document
}

// Client is the adapter to the testbed control framework. Implementations
// must be safe for concurrent use; the poller and CLI share one client.
type Client interface {
	// Submit registers a new slice and returns the orchestrator-assigned
	// slice ID together with the initial reservation snapshot. The snapshot
	// may be sparse; callers merge it like any other.
	Submit(ctx context.Context, req SubmitRequest) (string, *topology.Snapshot, error)

	// Query fetches the current reservation snapshot for a slice.
	Query(ctx context.Context, sliceID string) (*topology.Snapshot, error)

	// Delete releases all resources held by a slice. Deleting a slice that
	// is already gone is not an error.
	Delete(ctx context.Context, sliceID string) error

	// Renew extends the slice lease to the requested end time.
	Renew(ctx context.Context, sliceID string, end time.Time) error
}
