package lookup

import (
	"context"
	"errors"
	"fmt"
)

// UpstreamServiceError wraps a failure of an external service. It is never
// replaced by a default value.
type UpstreamServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("upstream %s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Err
}

// AsUpstream wraps err as an UpstreamServiceError unless it already is one or
// is a context error.
func AsUpstream(service, op string, err error) error {
	var u *UpstreamServiceError
	if err == nil || errors.As(err, &u) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamServiceError{Service: service, Op: op, Err: err}
}
