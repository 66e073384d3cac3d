package bastion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// Defaults for ExecOptions.
const (
	DefaultRetries       = 3
	DefaultRetryInterval = 10 * time.Second
)

// ExecOptions tune a single Execute call.
type ExecOptions struct {
	// Timeout, when positive, additionally bounds the command on the node
	// itself: the command runs under `sudo timeout --foreground`. The
	// context still governs the client side.
	Timeout time.Duration

	// Retries is the connection attempt budget. Zero means DefaultRetries.
	Retries int

	// RetryInterval is the pause between connection attempts.
	RetryInterval time.Duration
}

func (o ExecOptions) withDefaults() ExecOptions {
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	return o
}

// Result is the outcome of a remote command that ran to completion. A
// non-zero ExitCode is data, not an error: the command reached the node,
// ran, and said no.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok reports whether the command exited zero.
func (r *Result) Ok() bool { return r.ExitCode == 0 }

// Execute runs a shell command on a slice node through the bastion. The
// transport is dialed per call and torn down before returning. Connection
// failures are retried on a fixed interval up to the attempt budget, then
// reported as ConnectError. A node without a management address fails
// immediately with NodeNotReadyError, before any dialing.
func (c *Channel) Execute(ctx context.Context, node *topology.Node, command string, opts ExecOptions) (*Result, error) {
	addr, user, err := nodeAddr(node)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	wrapped := command
	if opts.Timeout > 0 {
		// -k 10 escalates to SIGKILL if the command ignores SIGTERM.
		wrapped = fmt.Sprintf("sudo timeout --foreground -k 10 %d %s",
			int(opts.Timeout/time.Second), command)
	}

	log := util.WithNode(node.Name()).WithField("exec", uuid.NewString()[:8])
	log.Debugf("run: %s", command)

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.RetryInterval):
			}
		}

		tc, err := c.dial(ctx, addr, user)
		if err != nil {
			lastErr = err
			log.Debugf("connect attempt %d/%d failed: %v", attempt, opts.Retries, err)
			continue
		}

		res, err := tc.exec(ctx, wrapped)
		tc.close()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// The session died under us; indistinguishable from a failed
			// connection, so it shares the retry budget.
			lastErr = err
			log.Debugf("exec attempt %d/%d failed: %v", attempt, opts.Retries, err)
			continue
		}

		log.Debugf("exit %d, %dB stdout, %dB stderr", res.ExitCode, len(res.Stdout), len(res.Stderr))
		return res, nil
	}

	return nil, &ConnectError{Node: node.Name(), Attempts: opts.Retries, Err: lastErr}
}
