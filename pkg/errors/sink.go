package errors

import (
	"errors"
	"fmt"
)

// SinkErrorKind classifies a failed append.
type SinkErrorKind int

const (
	// ConnectionFailure means the store could not be reached. It is transient
	// and the only kind that is retried.
	ConnectionFailure SinkErrorKind = iota + 1
	// SchemaMismatch means the record does not fit the target table: a missing
	// column, a missing table or a value the column type rejects.
	SchemaMismatch
	// ConstraintViolation means the store rejected the row, for instance a
	// duplicate unique_id.
	ConstraintViolation
)

func (k SinkErrorKind) String() string {
	switch k {
	case ConnectionFailure:
		return "connection_failure"
	case SchemaMismatch:
		return "schema_mismatch"
	case ConstraintViolation:
		return "constraint_violation"
	default:
		return "unknown"
	}
}

// Retryable reports whether an append that failed with this kind may succeed later.
func (k SinkErrorKind) Retryable() bool {
	return k == ConnectionFailure
}

// SinkError is a classified sink failure.
type SinkError struct {
	Kind  SinkErrorKind
	Sink  string
	msg   string
	cause error
}

// NewSinkError creates a sink error of the given kind for the named sink.
func NewSinkError(kind SinkErrorKind, sink string, cause error) error {
	return &SinkError{Kind: kind, Sink: sink, cause: cause}
}

// NewSinkErrorf creates a sink error with a formatted message and no cause.
func NewSinkErrorf(kind SinkErrorKind, sink, format string, args ...interface{}) error {
	return &SinkError{Kind: kind, Sink: sink, msg: fmt.Sprintf(format, args...)}
}

func (e *SinkError) Error() string {
	prefix := fmt.Sprintf("sink %s: %s", e.Sink, e.Kind)
	if e.msg != "" {
		prefix += ": " + e.msg
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", prefix, e.cause)
	}
	return prefix
}

func (e *SinkError) Unwrap() error {
	return e.cause
}

// IsSink checks if an error is or wraps a SinkError.
func IsSink(err error) bool {
	var serr *SinkError
	return errors.As(err, &serr)
}

// SinkKind returns the kind of the outermost SinkError in err's chain, or zero.
func SinkKind(err error) SinkErrorKind {
	var serr *SinkError
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return 0
}

// IsConnectionFailure checks if an error is a sink connection failure.
func IsConnectionFailure(err error) bool {
	return SinkKind(err) == ConnectionFailure
}

// IsSchemaMismatch checks if an error is a sink schema mismatch.
func IsSchemaMismatch(err error) bool {
	return SinkKind(err) == SchemaMismatch
}

// IsConstraintViolation checks if an error is a sink constraint violation.
func IsConstraintViolation(err error) bool {
	return SinkKind(err) == ConstraintViolation
}
