// Package statestore persists slice records between process invocations,
// so a CLI run can pick up slices an earlier run submitted.
//
// Two backends: FileStore for the common single-user case, RedisStore for
// shared hub machines where several people (or a scheduler) resume the
// same slices.
package statestore

import (
	"context"
	"sort"
	"time"

	"github.com/weft-testbed/weft/pkg/topology"
)

// SliceRecord is one persisted slice: the full topology document, the
// last snapshot the orchestrator returned, and when we last touched it.
type SliceRecord struct {
	Topology  *topology.Document `json:"topology"`
	Snapshot  *topology.Snapshot `json:"last_snapshot,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Name returns the record's slice name.
func (r *SliceRecord) Name() string {
	if r.Topology == nil {
		return ""
	}
	return r.Topology.Slice.Name
}

// SliceID returns the orchestrator's slice ID, empty for unsubmitted
// slices.
func (r *SliceRecord) SliceID() string {
	if r.Topology == nil {
		return ""
	}
	return r.Topology.Slice.SliceID
}

// Record builds a SliceRecord from a live slice graph.
func Record(slice *topology.Slice, snap *topology.Snapshot) *SliceRecord {
	return &SliceRecord{Topology: slice.Document(), Snapshot: snap}
}

// Store persists slice records by slice name. Save stamps UpdatedAt.
type Store interface {
	Save(ctx context.Context, rec *SliceRecord) error
	Load(ctx context.Context, name string) (*SliceRecord, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*SliceRecord, error)
}

func sortRecords(recs []*SliceRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name() < recs[j].Name() })
}
