package model

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded is matched by every CapacityError via errors.Is.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrConcurrencyConflict marks a capacity shortfall that only appeared
// because another admission committed first.  It is reported to users
// with the same message as ErrCapacityExceeded.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// ErrInvalidTransition is returned when a booking status change is not
// allowed from the booking's current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError reports malformed client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Invalid builds a ValidationError.
func Invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// CapacityError reports that a request of Requested seats did not fit
// the Available seats of a category.
type CapacityError struct {
	Category  Category
	Requested int
	Available int
	// Raced is set when the shortfall was caused by a concurrent admission.
	Raced bool
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity exceeded: %d seat(s) short for %s", e.Shortfall(), e.Category)
}

// Shortfall is the number of seats missing for the request to fit.
func (e *CapacityError) Shortfall() int {
	if d := e.Requested - e.Available; d > 0 {
		return d
	}
	return 0
}

func (e *CapacityError) Is(target error) bool {
	if target == ErrCapacityExceeded {
		return true
	}
	return target == ErrConcurrencyConflict && e.Raced
}

// PolicyError reports an admin action forbidden by booking policy, such
// as approving a booking of an unverified organisation.
type PolicyError struct {
	Rule string
}

func (e *PolicyError) Error() string { return "policy violation: " + e.Rule }

// TransitionError wraps ErrInvalidTransition with the offending states.
type TransitionError struct {
	From   Status
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s booking", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
