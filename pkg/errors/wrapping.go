package errors

import (
	"fmt"
)

// Wrap prefixes err with msg and keeps its category: a wrapped SinkError
// reports the same kind, a NotFound or InvalidInput keeps its resource or
// field, a temporary error stays temporary. Everything else becomes a
// PermanentError. The original error stays in the chain, so activity errors
// such as NestingViolation remain detectable through their Is helpers.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	var (
		se  *SinkError
		nfe *NotFoundError
		iie *InvalidInputError
	)
	switch {
	case As(err, &se):
		return &SinkError{Kind: se.Kind, Sink: se.Sink, msg: msg, cause: err}
	case As(err, &nfe):
		return NewNotFoundWithCause(nfe.resource, nfe.id, err)
	case As(err, &iie):
		return NewInvalidInputWithCause(iie.field, msg, err)
	case IsTemporary(err):
		return NewTemporary(msg, err)
	default:
		return NewPermanent(msg, err)
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}
