package orchestrator

import (
	"fmt"

	"github.com/weft-testbed/weft/pkg/util"
)

// TransportError wraps a failure to reach the control framework or to obtain
// a well-formed response from it. Transport errors are retryable: the request
// may never have arrived, or the response may have been lost.
type TransportError struct {
	Op  string // operation that failed ("submit", "query", ...)
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("orchestrator %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{util.ErrTransport, e.Err}
}

// RejectedError reports that the control framework received a request and
// refused it. Rejections are authoritative and must not be retried.
type RejectedError struct {
	Op     string
	Status int    // HTTP status, 0 when the rejection did not come over HTTP
	Code   string // machine-readable error code, may be empty
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("orchestrator %s rejected (%s): %s", e.Op, e.Code, e.Reason)
	}
	return fmt.Sprintf("orchestrator %s rejected: %s", e.Op, e.Reason)
}

func (e *RejectedError) Unwrap() error { return util.ErrRejected }
