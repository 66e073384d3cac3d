package bastion

import (
	"fmt"

	"github.com/weft-testbed/weft/pkg/util"
)

// NodeNotReadyError means the node has no management address yet, so there
// is nothing to connect to. Returned before any dialing happens.
type NodeNotReadyError struct {
	Node string
}

func (e *NodeNotReadyError) Error() string {
	return fmt.Sprintf("node %s has no management address yet", e.Node)
}

func (e *NodeNotReadyError) Unwrap() error { return util.ErrNodeNotReady }

// ConnectError reports that the two-hop transport to a node could not be
// established within the retry budget.
type ConnectError struct {
	Node     string
	Attempts int
	Err      error // last dial error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to node %s: %d attempts failed, last: %v",
		e.Node, e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{util.ErrConnect, e.Err}
}
