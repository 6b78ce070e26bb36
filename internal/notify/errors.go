package notify

import "fmt"

// DownstreamError wraps a failed best-effort call. It is logged by the
// dispatcher and never reaches the payment outcome.
type DownstreamError struct {
	Op  string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s: %v", e.Op, e.Err)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}
