package fields

import (
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
)

// Set is the ordered collection of fields of one entity instance
type Set struct {
	fields    map[string]*Field
	order     []string
	persisted bool
	partial   bool
}

func newSet() *Set {
	return &Set{fields: make(map[string]*Field)}
}

func (s *Set) add(f *Field) {
	s.fields[f.Name()] = f
	s.order = append(s.order, f.Name())
}

// MarkPersisted records that the owning record exists in storage.
// ReadOnlyAfterCreate fields reject Set from this point on.
func (s *Set) MarkPersisted() {
	s.persisted = true
}

// Persisted returns true once MarkPersisted has been called
func (s *Set) Persisted() bool {
	return s.persisted
}

// Has returns true if the set contains the named field
func (s *Set) Has(name string) bool {
	_, ok := s.fields[name]
	return ok
}

// Field returns the named field
func (s *Set) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Names returns the field names in storage order
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Fields returns the fields in storage order
func (s *Set) Fields() []*Field {
	result := make([]*Field, len(s.order))
	for i, name := range s.order {
		result[i] = s.fields[name]
	}
	return result
}

// Get returns the value of the named field. Non-persisted fields return their last in-memory value.
func (s *Set) Get(name string) (interface{}, error) {
	f, ok := s.fields[name]
	if !ok {
		return nil, ormerr.Structuralf("unknown field %s", name)
	}
	return f.value, nil
}

// Set assigns a caller-supplied value
func (s *Set) Set(name string, value interface{}) error {
	f, ok := s.fields[name]
	if !ok {
		return ormerr.Structuralf("unknown field %s", name)
	}
	if f.IsReadOnly(s.persisted) {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if err := f.assign(value, false); err != nil {
		return err
	}
	f.changed = true
	return nil
}

// Assign writes a value bypassing read-only checks. It is used by the engine for ids and audit stamps.
func (s *Set) Assign(name string, value interface{}) error {
	f, ok := s.fields[name]
	if !ok {
		return ormerr.Structuralf("unknown field %s", name)
	}
	if err := f.assign(value, false); err != nil {
		return err
	}
	f.changed = true
	return nil
}

// Partial returns true when the last Load did not carry every persisted column.
// Fields missing from the row hold defaults or nil rather than their stored values.
func (s *Set) Partial() bool {
	return s.partial
}

// Load hydrates the set from a storage row. Columns without a matching persisted field are returned.
func (s *Set) Load(row map[string]interface{}) (map[string]interface{}, error) {
	s.partial = false
	for _, f := range s.fields {
		if _, ok := row[f.Name()]; !ok && f.def.IsPersisted() {
			s.partial = true
			break
		}
	}

	extras := make(map[string]interface{})
	for column, value := range row {
		f, ok := s.fields[column]
		if !ok || !f.def.IsPersisted() {
			extras[column] = value
			continue
		}
		if err := f.assign(value, true); err != nil {
			return nil, err
		}
		f.changed = false
	}
	return extras, nil
}

// StorageValues returns column values for the persisted fields in storage order.
// Null values are included only when includeNull is set.
func (s *Set) StorageValues(includeNull bool) ([]string, []interface{}, error) {
	var columns []string
	var values []interface{}

	for _, name := range s.order {
		f := s.fields[name]
		if !f.def.IsPersisted() {
			continue
		}
		if f.value == nil && !includeNull {
			continue
		}

		v, err := f.StorageValue()
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", name, err)
		}
		columns = append(columns, name)
		values = append(values, v)
	}

	return columns, values, nil
}

// Values returns a snapshot of all field values keyed by name
func (s *Set) Values() map[string]interface{} {
	result := make(map[string]interface{}, len(s.fields))
	for name, f := range s.fields {
		result[name] = f.value
	}
	return result
}
