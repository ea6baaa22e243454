package errors

import (
	"errors"
	"fmt"
)

// ErrNoActiveActivity is returned when an event is emitted on a flow that has
// no open activity. It is matched with errors.Is.
var ErrNoActiveActivity = errors.New("no active activity")

// NestingViolationError is returned when an activity is closed while it is not
// the innermost open activity of its flow. The flow is left unchanged.
type NestingViolationError struct {
	activity string
	id       string
	top      string
}

// NewNestingViolation creates a nesting violation for the activity with the given
// name and id. top is the id of the activity that is actually innermost, empty if
// the flow has nothing open.
func NewNestingViolation(activity, id, top string) error {
	return &NestingViolationError{activity: activity, id: id, top: top}
}

func (e *NestingViolationError) Error() string {
	if e.top == "" {
		return fmt.Sprintf("nesting violation: %s (%s) closed on an empty flow", e.activity, e.id)
	}
	return fmt.Sprintf("nesting violation: %s (%s) is not the innermost activity (%s)", e.activity, e.id, e.top)
}

// Activity returns the name of the activity whose close was rejected.
func (e *NestingViolationError) Activity() string {
	return e.activity
}

// ID returns the id of the activity whose close was rejected.
func (e *NestingViolationError) ID() string {
	return e.id
}

// Top returns the id of the innermost open activity at the time of the violation.
func (e *NestingViolationError) Top() string {
	return e.top
}

// InconsistentContextError is returned when an activity is opened on a flow
// that still carries an unresolved nesting violation.
type InconsistentContextError struct {
	pending string
}

// NewInconsistentContext creates an inconsistent context error. pending is the id
// of the activity whose close was rejected.
func NewInconsistentContext(pending string) error {
	return &InconsistentContextError{pending: pending}
}

func (e *InconsistentContextError) Error() string {
	return fmt.Sprintf("inconsistent context: close of %s is still pending", e.pending)
}

// Pending returns the id of the activity whose close was rejected.
func (e *InconsistentContextError) Pending() string {
	return e.pending
}

// NoActiveActivityError carries the operation that found no open activity.
// It matches ErrNoActiveActivity.
type NoActiveActivityError struct {
	op string
}

// NewNoActiveActivity creates a no active activity error for the given operation.
func NewNoActiveActivity(op string) error {
	return &NoActiveActivityError{op: op}
}

func (e *NoActiveActivityError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, ErrNoActiveActivity)
}

func (e *NoActiveActivityError) Unwrap() error {
	return ErrNoActiveActivity
}

// IdentityExhaustionError is raised when no unique identifier can be produced.
// It is fatal: callers panic with it rather than return it.
type IdentityExhaustionError struct {
	cause error
}

// NewIdentityExhaustion creates an identity exhaustion error.
func NewIdentityExhaustion(cause error) error {
	return &IdentityExhaustionError{cause: cause}
}

func (e *IdentityExhaustionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("identity exhaustion: %v", e.cause)
	}
	return "identity exhaustion"
}

func (e *IdentityExhaustionError) Unwrap() error {
	return e.cause
}

// IsNestingViolation checks if an error is or wraps a NestingViolationError.
func IsNestingViolation(err error) bool {
	var nverr *NestingViolationError
	return errors.As(err, &nverr)
}

// IsInconsistentContext checks if an error is or wraps an InconsistentContextError.
func IsInconsistentContext(err error) bool {
	var icerr *InconsistentContextError
	return errors.As(err, &icerr)
}

// IsNoActiveActivity checks if an error is or wraps ErrNoActiveActivity.
func IsNoActiveActivity(err error) bool {
	return errors.Is(err, ErrNoActiveActivity)
}

// IsIdentityExhaustion checks if an error is or wraps an IdentityExhaustionError.
func IsIdentityExhaustion(err error) bool {
	var ieerr *IdentityExhaustionError
	return errors.As(err, &ieerr)
}
