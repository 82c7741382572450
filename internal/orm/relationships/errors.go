package relationships

import (
	"errors"
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
)

var (
	// ErrRestricted is matched by every RestrictError
	ErrRestricted = errors.New("delete restricted by related records")

	// ErrWrongSide is returned when an accessor is called from the side it does not serve
	ErrWrongSide = errors.New("accessor not available on this side of the relationship")
)

// RestrictError is returned when a RESTRICT relationship blocks a delete.
// It is a structural error and carries the number of active related rows.
type RestrictError struct {
	Relationship string
	Entity       string
	ID           string
	Count        int64
}

// Error implements the error interface
func (e *RestrictError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: relationship %s has %d active related record(s)",
		e.Entity, e.ID, e.Relationship, e.Count)
}

// Is matches ErrRestricted and the structural error root
func (e *RestrictError) Is(target error) bool {
	return target == ErrRestricted || target == ormerr.ErrStructural
}

// IsRestricted returns true if err is, or wraps, a RestrictError
func IsRestricted(err error) bool {
	return errors.Is(err, ErrRestricted)
}
