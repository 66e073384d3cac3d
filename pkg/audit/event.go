// Package audit records slice operations to an append-only log.
package audit

import (
	"fmt"
	"time"
)

// Event represents one auditable slice operation
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	User      string        `json:"user"`
	Slice     string        `json:"slice"`
	SliceID   string        `json:"slice_id,omitempty"`
	Operation string        `json:"operation"`
	Node      string        `json:"node,omitempty"`
	Command   string        `json:"command,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Operation categorizes audit events
type Operation string

const (
	OpSubmit    Operation = "submit"
	OpDelete    Operation = "delete"
	OpRenew     Operation = "renew"
	OpConfigure Operation = "configure"
	OpExecute   Operation = "execute"
	OpUpload    Operation = "upload"
	OpDownload  Operation = "download"
)

// Filter defines criteria for querying audit events
type Filter struct {
	Slice       string
	User        string
	Operation   string
	Node        string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event
func NewEvent(user, slice string, op Operation) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		User:      user,
		Slice:     slice,
		Operation: string(op),
	}
}

// WithSliceID sets the orchestrator-assigned slice ID
func (e *Event) WithSliceID(id string) *Event {
	e.SliceID = id
	return e
}

// WithNode sets the node name for per-node operations
func (e *Event) WithNode(node string) *Event {
	e.Node = node
	return e
}

// WithCommand sets the remote command for execute operations
func (e *Event) WithCommand(command string) *Event {
	e.Command = command
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
