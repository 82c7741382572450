// Package fields binds runtime values to field definitions.
//
// Each field kind is a fixed coercion over schema.FieldType chosen from a constructor table;
// there is no per-kind type hierarchy.
package fields

import (
	"errors"
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

var (
	// ErrReadOnly is returned when a caller sets a read-only field
	ErrReadOnly = errors.New("field is read-only")
	// ErrInvalidValue is returned when a value cannot be coerced to the field kind
	ErrInvalidValue = errors.New("invalid field value")
)

// coerceFunc converts an input value to the canonical in-memory form of a kind.
// fromStorage is set when hydrating from a database row.
type coerceFunc func(def *schema.FieldDefinition, value interface{}, fromStorage bool) (interface{}, error)

// storeFunc converts the in-memory value to its column value
type storeFunc func(value interface{}) (interface{}, error)

// Field is a value bound to a field definition
type Field struct {
	def     *schema.FieldDefinition
	value   interface{}
	changed bool

	coerce coerceFunc
	store  storeFunc
}

// Definition returns the field definition
func (f *Field) Definition() *schema.FieldDefinition {
	return f.def
}

// Name returns the field name
func (f *Field) Name() string {
	return f.def.Name
}

// Value returns the current in-memory value
func (f *Field) Value() interface{} {
	return f.value
}

// IsNull returns true if the field holds no value
func (f *Field) IsNull() bool {
	return f.value == nil
}

// IsEmpty returns true if the field is null or holds an empty string or list
func (f *Field) IsEmpty() bool {
	switch v := f.value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	default:
		return false
	}
}

// Changed returns true if the value was set since construction or the last load
func (f *Field) Changed() bool {
	return f.changed
}

// IsReadOnly reports whether callers may not set the field.
// ReadOnlyAfterCreate fields become read-only once the owning record is persisted.
func (f *Field) IsReadOnly(persisted bool) bool {
	return f.def.ReadOnly || (persisted && f.def.ReadOnlyAfterCreate)
}

// StorageValue returns the value to write to the field's column
func (f *Field) StorageValue() (interface{}, error) {
	if f.value == nil || f.store == nil {
		return f.value, nil
	}
	return f.store(f.value)
}

func (f *Field) assign(value interface{}, fromStorage bool) error {
	if value == nil {
		f.value = nil
		return nil
	}

	coerced, err := f.coerce(f.def, value, fromStorage)
	if err != nil {
		return fmt.Errorf("%w: %s (%s): %v", ErrInvalidValue, f.def.Name, f.def.Type, err)
	}
	f.value = coerced
	return nil
}
