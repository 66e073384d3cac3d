package bastion

import (
	"context"
	"fmt"
	"time"

	"github.com/weft-testbed/weft/pkg/topology"
)

// Probe runs one cheap round-trip to the node. A single attempt, short
// timeout; callers loop if they want patience.
func (c *Channel) Probe(ctx context.Context, node *topology.Node) error {
	res, err := c.Execute(ctx, node, "echo weft", ExecOptions{
		Retries: 1,
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return err
	}
	if !res.Ok() {
		return fmt.Errorf("probe %s: exit %d: %s", node.Name(), res.ExitCode, res.Stderr)
	}
	return nil
}

// WaitReady polls Probe until the node answers or the timeout elapses.
func (c *Channel) WaitReady(ctx context.Context, node *topology.Node, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = 6 * time.Minute
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		if lastErr = c.Probe(ctx, node); lastErr == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !time.Now().Add(interval).Before(deadline) {
			return fmt.Errorf("node %s not reachable after %s: %w", node.Name(), timeout, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
