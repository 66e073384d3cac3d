package reconcile

import (
	"context"
	"fmt"
	"sort"

	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// Prober answers whether a node's management plane accepts a login yet.
// pkg/bastion provides the real implementation; taking the interface here
// keeps reconcile free of the SSH machinery.
type Prober interface {
	Probe(ctx context.Context, node *topology.Node) error
}

// WaitSSH blocks until every node in the slice answers an SSH probe, or the
// timeout elapses. Nodes are probed in name order each round; a node that
// has answered once is not probed again. Call after Wait reports stable —
// reservations turn active a little before sshd finishes coming up.
func (p *Poller) WaitSSH(ctx context.Context, slice *topology.Slice, prober Prober, opts WaitOptions) error {
	opts = opts.withDefaults()
	clock := p.clock()
	deadline := clock.Now().Add(opts.Timeout)
	log := util.WithSlice(slice.Name())

	nodes := slice.Nodes()
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name() < nodes[j].Name() })

	ready := make(map[string]bool, len(nodes))
	var lastErr error

	for {
		pending := 0
		for _, n := range nodes {
			if ready[n.Name()] {
				continue
			}
			if err := prober.Probe(ctx, n); err != nil {
				pending++
				lastErr = fmt.Errorf("%s: %w", n.Name(), err)
				continue
			}
			ready[n.Name()] = true
			log.WithField("node", n.Name()).Debug("ssh ready")
		}
		if pending == 0 {
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if !clock.Now().Add(opts.Interval).Before(deadline) {
			return fmt.Errorf("wait ssh: %d of %d nodes unreachable, last: %w",
				pending, len(nodes), lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(opts.Interval):
		}
	}
}
