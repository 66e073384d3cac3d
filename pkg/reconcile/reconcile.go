// Package reconcile drives a slice toward a settled state. It polls the
// orchestrator for reservation snapshots, merges each one into the local
// topology, and classifies the aggregate outcome.
//
// The poller is deliberately dumb: fixed interval, bounded tolerance for
// transport failures, no backoff cleverness. Reservation state machines on
// the testbed move on the order of minutes; the interesting logic lives in
// the merge, not the loop.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weft-testbed/weft/pkg/orchestrator"
	"github.com/weft-testbed/weft/pkg/topology"
	"github.com/weft-testbed/weft/pkg/util"
)

// Defaults for WaitOptions. The interval matches how fast reservation state
// actually changes; shorter intervals only load the orchestrator.
const (
	DefaultInterval     = 10 * time.Second
	DefaultTimeout      = 6 * time.Minute
	DefaultQueryRetries = 3
)

// Clock abstracts time so poller tests run without real sleeps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time                         { return time.Now() }
func (wallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// WaitStatus is the terminal classification of a Wait call.
type WaitStatus int

const (
	// WaitUnknown means Wait returned with an error before reaching a verdict.
	WaitUnknown WaitStatus = iota

	// WaitStable means every reservation in the slice is active.
	WaitStable

	// WaitFailed means at least one reservation failed. The failure detail
	// is on the entities themselves, not in an error.
	WaitFailed

	// WaitTimedOut means the budget ran out while the slice was still in
	// flight. The slice retains the last merged snapshot.
	WaitTimedOut
)

func (s WaitStatus) String() string {
	switch s {
	case WaitStable:
		return "stable"
	case WaitFailed:
		return "failed"
	case WaitTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// Progress is called after every merged poll with the iteration count and
// the aggregate state so far. Used by the CLI for "still waiting" output.
type Progress func(iteration int, elapsed time.Duration, state topology.SliceState)

// WaitOptions tune a single Wait call. Zero values take the package
// defaults.
type WaitOptions struct {
	// Interval between polls.
	Interval time.Duration

	// Timeout bounds the whole wait.
	Timeout time.Duration

	// MaxQueryRetries is how many consecutive transport failures the
	// poller rides out before giving up with PollingFailedError. A
	// successful query resets the count.
	MaxQueryRetries int

	// Progress, when set, is invoked after each merged snapshot.
	Progress Progress
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxQueryRetries <= 0 {
		o.MaxQueryRetries = DefaultQueryRetries
	}
	return o
}

// PollingFailedError reports that the poller could not obtain a snapshot
// within its consecutive-failure budget. The slice state is whatever the
// last successful merge left behind.
type PollingFailedError struct {
	SliceID  string
	Attempts int
	Err      error // last transport error
}

func (e *PollingFailedError) Error() string {
	return fmt.Sprintf("polling slice %s: %d consecutive query failures, last: %v",
		e.SliceID, e.Attempts, e.Err)
}

func (e *PollingFailedError) Unwrap() []error {
	return []error{util.ErrPollingFailed, e.Err}
}

// Poller repeatedly queries the orchestrator and merges snapshots into a
// slice until the slice settles. A Poller is stateless and may be shared;
// run at most one Wait per slice at a time — concurrent waits on the same
// slice serialize their merges but burn queries for nothing.
type Poller struct {
	// Client is the orchestrator adapter. Required.
	Client orchestrator.Client

	// Clock overrides wall time. Nil means real time.
	Clock Clock
}

func (p *Poller) clock() Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return wallClock{}
}

// Wait polls until the slice becomes stable, a reservation fails, or the
// timeout elapses. Failure of a reservation is a verdict, not an error:
// Wait returns (WaitFailed, nil) and the caller inspects the entities.
// Errors are reserved for the poll itself going wrong — rejection by the
// orchestrator, exhausted transport retries, or context cancellation.
func (p *Poller) Wait(ctx context.Context, slice *topology.Slice, opts WaitOptions) (WaitStatus, error) {
	sliceID := slice.ID()
	if sliceID == "" {
		return WaitUnknown, fmt.Errorf("wait: slice %q was never submitted: %w",
			slice.Name(), util.ErrInvalidState)
	}
	opts = opts.withDefaults()

	clock := p.clock()
	start := clock.Now()
	deadline := start.Add(opts.Timeout)
	log := util.WithSlice(slice.Name())

	failures := 0
	var lastQueryErr error

	for iteration := 1; ; iteration++ {
		snap, err := p.Client.Query(ctx, sliceID)
		switch {
		case err == nil:
			failures = 0
			state := slice.Merge(snap)
			log.WithField("state", state).Debugf("poll %d merged", iteration)
			if opts.Progress != nil {
				opts.Progress(iteration, clock.Now().Sub(start), state)
			}
			switch state {
			case topology.SliceStable:
				return WaitStable, nil
			case topology.SliceFailed:
				return WaitFailed, nil
			}

		case errors.Is(err, util.ErrTransport):
			failures++
			lastQueryErr = err
			log.Warnf("poll %d query failed (%d/%d): %v", iteration, failures, opts.MaxQueryRetries, err)
			if failures >= opts.MaxQueryRetries {
				return WaitUnknown, &PollingFailedError{
					SliceID:  sliceID,
					Attempts: failures,
					Err:      lastQueryErr,
				}
			}

		default:
			// Rejections and anything else non-retryable surface as-is.
			return WaitUnknown, err
		}

		if err := ctx.Err(); err != nil {
			return WaitUnknown, err
		}
		if !clock.Now().Add(opts.Interval).Before(deadline) {
			return WaitTimedOut, nil
		}
		select {
		case <-ctx.Done():
			return WaitUnknown, ctx.Err()
		case <-clock.After(opts.Interval):
		}
	}
}
