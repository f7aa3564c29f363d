package order

import (
	"slices"

	"github.com/go-faster/errors"
)

// Status is the fine-grained operational status seen by chefs.
type Status string

const (
	StatusNew       Status = "new"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// CustomerStatus is the coarse status shown in a customer's order history.
type CustomerStatus string

const (
	CustomerInProgress CustomerStatus = "in-progress"
	CustomerDelivered  CustomerStatus = "delivered"
	CustomerCancelled  CustomerStatus = "cancelled"
)

// validTransitions lists the statuses reachable in one step. The chef surface
// only ever offers the next step or cancellation.
var validTransitions = map[Status][]Status{
	StatusNew:       {StatusPreparing, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCancelled},
	StatusReady:     {StatusCompleted},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", errors.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Customer maps s onto the coarse customer view.
func (s Status) Customer() CustomerStatus {
	switch s {
	case StatusCompleted:
		return CustomerDelivered
	case StatusCancelled:
		return CustomerCancelled
	default:
		return CustomerInProgress
	}
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	return slices.Clone(validTransitions[s])
}

// CanTransition reports whether from -> to is a valid step.
func CanTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Transition validates from -> to and returns a *TransitionError when the
// state machine forbids it.
func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: string(from), To: string(to)}
	}
	return nil
}

// ParseCustomerStatus validates s as a CustomerStatus.
func ParseCustomerStatus(s string) (CustomerStatus, error) {
	switch c := CustomerStatus(s); c {
	case CustomerInProgress, CustomerDelivered, CustomerCancelled:
		return c, nil
	default:
		return "", errors.Errorf("unknown customer status %q", s)
	}
}

// Terminal reports whether c can no longer change.
func (c CustomerStatus) Terminal() bool {
	return c == CustomerDelivered || c == CustomerCancelled
}

// TransitionCustomer validates a coarse status change. Staying in the same
// coarse status is allowed; leaving a terminal status is not.
func TransitionCustomer(from, to CustomerStatus) error {
	switch {
	case from == to && !from.Terminal():
		return nil
	case from == CustomerInProgress && to.Terminal():
		return nil
	default:
		return &TransitionError{From: string(from), To: string(to)}
	}
}
