package testutil

import (
	"context"
	"sync"

	"github.com/weft-testbed/weft/pkg/bastion"
	"github.com/weft-testbed/weft/pkg/topology"
)

// RunnerCall records one remote operation made through a FakeRunner.
type RunnerCall struct {
	Node    string
	Command string // empty for uploads
	Local   string
	Remote  string
}

// FakeRunner is an in-memory postboot.Runner that records every call.
// Respond decides each command's outcome; when nil, or when it is set but
// decides nothing special, commands succeed with empty output.
type FakeRunner struct {
	mu      sync.Mutex
	Respond func(node, command string) (stdout string, exitCode int, err error)

	UploadErr error

	commands []RunnerCall
	uploads  []RunnerCall
}

func (r *FakeRunner) Execute(ctx context.Context, node *topology.Node, command string, opts bastion.ExecOptions) (*bastion.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, RunnerCall{Node: node.Name(), Command: command})
	respond := r.Respond
	r.mu.Unlock()

	if respond == nil {
		return &bastion.Result{}, nil
	}
	stdout, code, err := respond(node.Name(), command)
	if err != nil {
		return nil, err
	}
	return &bastion.Result{Stdout: stdout, ExitCode: code}, nil
}

func (r *FakeRunner) Upload(ctx context.Context, node *topology.Node, localPath, remotePath string) error {
	r.mu.Lock()
	r.uploads = append(r.uploads, RunnerCall{Node: node.Name(), Local: localPath, Remote: remotePath})
	r.mu.Unlock()
	return r.UploadErr
}

func (r *FakeRunner) UploadDirectory(ctx context.Context, node *topology.Node, localDir, remoteDir string) error {
	return r.Upload(ctx, node, localDir, remoteDir)
}

// Commands returns the commands executed on the named node, in order. An
// empty name returns every command across all nodes.
func (r *FakeRunner) Commands(node string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, call := range r.commands {
		if node == "" || call.Node == node {
			out = append(out, call.Command)
		}
	}
	return out
}

// Uploads returns the recorded file and directory uploads, in order.
func (r *FakeRunner) Uploads() []RunnerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunnerCall, len(r.uploads))
	copy(out, r.uploads)
	return out
}

// Reset clears the recorded calls but keeps the responder.
func (r *FakeRunner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = nil
	r.uploads = nil
}
