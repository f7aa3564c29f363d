package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order lookups and writes.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrForeignOrder  = errors.New("order belongs to another seller")
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// ValidationError reports a checkout input that cannot be accepted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransitionError reports a status change that the state machine forbids.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// RemoteUnavailableError wraps a document store failure on a best-effort
// path. Stores log it and keep their previous state.
type RemoteUnavailableError struct {
	Op  string
	Err error
}

func (e *RemoteUnavailableError) Error() string {
	return fmt.Sprintf("remote unavailable: %s: %v", e.Op, e.Err)
}

func (e *RemoteUnavailableError) Unwrap() error {
	return e.Err
}
