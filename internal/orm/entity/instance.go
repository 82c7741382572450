// Package entity provides the runtime record type built from an entity definition.
package entity

import (
	"context"
	"sort"
	"time"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/fields"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// RelationshipHandle is one relationship bound to one instance
type RelationshipHandle interface {
	Definition() *schema.RelationshipDefinition
	GetRelatedRecords(ctx context.Context) ([]*Instance, error)
	AddRelation(ctx context.Context, other *Instance, extra map[string]interface{}) (bool, error)
	RemoveRelation(ctx context.Context, other *Instance) (bool, error)
	HasRelation(ctx context.Context, other *Instance) (bool, error)
}

// Instance is a single record of an entity
type Instance struct {
	def           *schema.EntityDefinition
	fields        *fields.Set
	relationships map[string]RelationshipHandle
	extras        map[string]interface{}
	errors        map[string][]string
}

// New creates a new, unpersisted instance
func New(def *schema.EntityDefinition, set *fields.Set) *Instance {
	return &Instance{
		def:           def,
		fields:        set,
		relationships: make(map[string]RelationshipHandle),
		extras:        make(map[string]interface{}),
	}
}

// Definition returns the entity definition
func (e *Instance) Definition() *schema.EntityDefinition {
	return e.def
}

// EntityName returns the name of the entity
func (e *Instance) EntityName() string {
	return e.def.Name
}

// TableName returns the table backing the instance's entity
func (e *Instance) TableName() string {
	return e.def.TableName()
}

// Fields returns the instance's field set
func (e *Instance) Fields() *fields.Set {
	return e.fields
}

// HasField returns true if the instance has the named field
func (e *Instance) HasField(name string) bool {
	return e.fields.Has(name)
}

// Get returns the value of a field
func (e *Instance) Get(name string) (interface{}, error) {
	return e.fields.Get(name)
}

// GetString returns the value of a field as a string, or "" when unset or not a string
func (e *Instance) GetString(name string) string {
	v, err := e.fields.Get(name)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Set assigns a caller-supplied field value, honouring read-only rules
func (e *Instance) Set(name string, value interface{}) error {
	return e.fields.Set(name, value)
}

// ID returns the record id, or "" for a record without one
func (e *Instance) ID() string {
	return e.GetString(schema.FieldID)
}

// SetID assigns the record id regardless of read-only rules
func (e *Instance) SetID(id string) error {
	return e.fields.Assign(schema.FieldID, id)
}

// IsPersisted returns true once the record has been created or loaded from storage
func (e *Instance) IsPersisted() bool {
	return e.fields.Persisted()
}

// MarkPersisted records that the instance exists in storage
func (e *Instance) MarkPersisted() {
	e.fields.MarkPersisted()
}

// IsPartial returns true if the instance was hydrated from a row missing persisted columns
func (e *Instance) IsPartial() bool {
	return e.fields.Partial()
}

// IsDeleted returns true if the record carries a tombstone
func (e *Instance) IsDeleted() bool {
	v, err := e.fields.Get(schema.FieldDeletedAt)
	return err == nil && v != nil
}

// Hydrate loads a storage row into the instance and marks it persisted.
// Columns that are not fields, such as join display projections, are kept as extras.
func (e *Instance) Hydrate(row map[string]interface{}) error {
	extras, err := e.fields.Load(row)
	if err != nil {
		return err
	}
	for k, v := range extras {
		e.extras[k] = v
	}
	e.fields.MarkPersisted()
	return nil
}

// Extra returns a non-field column loaded with the record
func (e *Instance) Extra(name string) (interface{}, bool) {
	v, ok := e.extras[name]
	return v, ok
}

// Display returns the synthesized display value of a RelatedRecord field
func (e *Instance) Display(fieldName string) (string, bool) {
	v, ok := e.extras[fieldName+"_display"]
	if !ok {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", v == nil
	}
}

// AttachRelationship binds a relationship handle to the instance
func (e *Instance) AttachRelationship(h RelationshipHandle) {
	e.relationships[h.Definition().Name] = h
}

// Relationship returns the named relationship handle
func (e *Instance) Relationship(name string) (RelationshipHandle, error) {
	h, ok := e.relationships[name]
	if !ok {
		return nil, ormerr.Structuralf("entity %s has no relationship %s", e.def.Name, name)
	}
	return h, nil
}

// RelationshipNames returns the names of the attached relationships, sorted
func (e *Instance) RelationshipNames() []string {
	names := make([]string, 0, len(e.relationships))
	for name := range e.relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidationErrors returns the per-field errors of the last failed save
func (e *Instance) ValidationErrors() map[string][]string {
	return e.errors
}

// SetValidationErrors stores the errors of a failed save; nil clears them
func (e *Instance) SetValidationErrors(errs map[string][]string) {
	e.errors = errs
}

// StampCreated sets the creation and update audit fields
func (e *Instance) StampCreated(actor string, at time.Time) error {
	if err := e.assignAudit(schema.FieldCreatedAt, schema.FieldCreatedBy, actor, at); err != nil {
		return err
	}
	return e.StampUpdated(actor, at)
}

// StampUpdated sets the update audit fields
func (e *Instance) StampUpdated(actor string, at time.Time) error {
	return e.assignAudit(schema.FieldUpdatedAt, schema.FieldUpdatedBy, actor, at)
}

// StampDeleted sets the tombstone
func (e *Instance) StampDeleted(actor string, at time.Time) error {
	return e.assignAudit(schema.FieldDeletedAt, schema.FieldDeletedBy, actor, at)
}

// ClearDeleted removes the tombstone
func (e *Instance) ClearDeleted() error {
	if err := e.fields.Assign(schema.FieldDeletedAt, nil); err != nil {
		return err
	}
	return e.fields.Assign(schema.FieldDeletedBy, nil)
}

func (e *Instance) assignAudit(atField, byField, actor string, at time.Time) error {
	if err := e.fields.Assign(atField, at); err != nil {
		return err
	}
	var by interface{}
	if actor != "" {
		by = actor
	}
	return e.fields.Assign(byField, by)
}
