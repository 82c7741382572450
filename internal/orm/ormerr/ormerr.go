// Package ormerr defines the error taxonomy shared by the ORM packages.
//
// Structural errors are metadata or programmer mistakes: an unknown field name, a missing id on
// update, an unresolved relationship participant, an unknown cascade action. They always propagate
// and are never retried. Expected data failures (validation, duplicate pairings) are reported as
// boolean results instead and never wrap ErrStructural.
package ormerr

import (
	"errors"
	"fmt"
)

// ErrStructural is the root of every structural error
var ErrStructural = errors.New("structural error")

// StructuralError is a structural error with a message and an optional cause.
// Message is the complete error text, including the cause when there is one.
type StructuralError struct {
	Message string
	Cause   error
}

// Error implements the error interface
func (e *StructuralError) Error() string {
	return e.Message
}

// Is reports whether target is ErrStructural
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// Unwrap returns the cause
func (e *StructuralError) Unwrap() error {
	return e.Cause
}

// Structuralf creates a structural error from a format string.
// A %w verb in format is honoured and becomes the cause.
func Structuralf(format string, args ...interface{}) error {
	wrapped := fmt.Errorf(format, args...)
	return &StructuralError{
		Message: wrapped.Error(),
		Cause:   errors.Unwrap(wrapped),
	}
}

// Wrap marks err as structural, prefixing it with message
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &StructuralError{Message: message + ": " + err.Error(), Cause: err}
}

// IsStructural returns true if err is, or wraps, a structural error
func IsStructural(err error) bool {
	return errors.Is(err, ErrStructural)
}
