package errors

import (
	"errors"
)

// As is a re-export of errors.As for convenient access in error handling code.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a re-export of errors.Is for convenient access in error handling code.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Join is a re-export of errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// IsPermanent checks if an error is or wraps a PermanentError.
// Sink schema mismatches and constraint violations are permanent too.
func IsPermanent(err error) bool {
	var perr *PermanentError
	if errors.As(err, &perr) {
		return true
	}
	kind := SinkKind(err)
	return kind == SchemaMismatch || kind == ConstraintViolation
}

// IsTemporary checks if an error is or wraps a TemporaryError.
// Sink connection failures are temporary too.
func IsTemporary(err error) bool {
	var terr *TemporaryError
	return errors.As(err, &terr) || IsConnectionFailure(err)
}

// IsNotFound checks if an error is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nferr *NotFoundError
	return errors.As(err, &nferr)
}

// IsInvalidInput checks if an error is or wraps an InvalidInputError.
func IsInvalidInput(err error) bool {
	var iierr *InvalidInputError
	return errors.As(err, &iierr)
}
