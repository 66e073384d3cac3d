// Package postboot applies in-guest configuration to the nodes of a
// stabilized slice: hostnames, dataplane interfaces, static routes, and
// user-queued post-boot tasks.
//
// Every mutating command is guarded by a state check against the node's
// live configuration, so re-running the configurator against an already
// configured node issues no mutating commands at all. That makes the
// configurator safe to run after every wait, and the natural way to
// repair a node that was rebooted mid-experiment.
package postboot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/weft-testbed/weft/pkg/bastion"
	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// DefaultParallel is the number of nodes configured concurrently when
// Configurator.Parallel is zero.
const DefaultParallel = 4

// Runner is the remote-execution surface the configurator needs. A
// *bastion.Channel satisfies it; tests inject command-capturing fakes.
type Runner interface {
	Execute(ctx context.Context, node *topology.Node, command string, opts bastion.ExecOptions) (*bastion.Result, error)
	Upload(ctx context.Context, node *topology.Node, localPath, remotePath string) error
	UploadDirectory(ctx context.Context, node *topology.Node, localDir, remoteDir string) error
}

var _ Runner = (*bastion.Channel)(nil)

// Configurator drives post-boot configuration over a Runner.
type Configurator struct {
	Runner   Runner
	Parallel int // max nodes configured concurrently, 0 = DefaultParallel
}

// New returns a Configurator using the given runner.
func New(runner Runner) *Configurator {
	return &Configurator{Runner: runner}
}

// BatchResult maps node name to the outcome of its configuration run. A
// nil value means the node configured cleanly.
type BatchResult map[string]error

// Failed returns the names of nodes whose configuration failed, sorted.
func (r BatchResult) Failed() []string {
	var out []string
	for name, err := range r {
		if err != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Err folds the batch into a single error, nil when every node succeeded.
func (r BatchResult) Err() error {
	var errs []error
	for _, name := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", name, r[name]))
	}
	return errors.Join(errs...)
}

// ConfigureSlice configures every node in the slice, up to Parallel nodes
// at a time. A failing node never blocks or aborts the others; its error
// is recorded in the returned BatchResult under the node's name.
func (c *Configurator) ConfigureSlice(ctx context.Context, slice *topology.Slice) BatchResult {
	nodes := slice.Nodes()
	result := make(BatchResult, len(nodes))

	parallel := c.Parallel
	if parallel <= 0 {
		parallel = DefaultParallel
	}
	sem := make(chan struct{}, parallel)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, node := range nodes {
		wg.Add(1)
		go func(node *topology.Node) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			err := c.ConfigureNode(ctx, node)
			mu.Lock()
			result[node.Name()] = err
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	if failed := result.Failed(); len(failed) > 0 {
		util.WithSlice(slice.Name()).Warnf("post-boot configuration failed on %d of %d nodes: %v",
			len(failed), len(nodes), failed)
	} else {
		util.WithSlice(slice.Name()).Infof("post-boot configuration complete on %d nodes", len(nodes))
	}
	return result
}
