// Package schema provides the type definitions of the metadata-driven relational model.
// It defines entities, their typed fields and the relationships between them, as resolved from
// declarative metadata. Definitions are immutable once built; callers that need a change must
// invalidate the metadata cache and resolve again.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
)

// FieldType represents the semantic type of a field
type FieldType int

const (
	TypeText FieldType = iota
	TypeBigText
	TypeEmail
	TypePassword
	TypeInteger
	TypeFloat
	TypeBoolean
	TypeDate
	TypeDateTime
	TypeEnum
	TypeMultiEnum
	TypeImage
	TypeVideo
	TypeRelatedRecord
	TypeID
)

// String returns the metadata name of the field type
func (t FieldType) String() string {
	switch t {
	case TypeText:
		return "Text"
	case TypeBigText:
		return "BigText"
	case TypeEmail:
		return "Email"
	case TypePassword:
		return "Password"
	case TypeInteger:
		return "Integer"
	case TypeFloat:
		return "Float"
	case TypeBoolean:
		return "Boolean"
	case TypeDate:
		return "Date"
	case TypeDateTime:
		return "DateTime"
	case TypeEnum:
		return "Enum"
	case TypeMultiEnum:
		return "MultiEnum"
	case TypeImage:
		return "Image"
	case TypeVideo:
		return "Video"
	case TypeRelatedRecord:
		return "RelatedRecord"
	case TypeID:
		return "ID"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a metadata type name to a FieldType.
// The "Field" suffix used by some metadata files is accepted ("TextField" == "Text").
func ParseFieldType(s string) (FieldType, error) {
	switch strings.TrimSuffix(s, "Field") {
	case "Text":
		return TypeText, nil
	case "BigText":
		return TypeBigText, nil
	case "Email":
		return TypeEmail, nil
	case "Password":
		return TypePassword, nil
	case "Integer":
		return TypeInteger, nil
	case "Float":
		return TypeFloat, nil
	case "Boolean":
		return TypeBoolean, nil
	case "Date":
		return TypeDate, nil
	case "DateTime":
		return TypeDateTime, nil
	case "Enum":
		return TypeEnum, nil
	case "MultiEnum":
		return TypeMultiEnum, nil
	case "Image":
		return TypeImage, nil
	case "Video":
		return TypeVideo, nil
	case "RelatedRecord":
		return TypeRelatedRecord, nil
	case "ID":
		return TypeID, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// FieldDefinition describes a single field of an entity
type FieldDefinition struct {
	Name     string    `mapstructure:"name" validate:"required"`
	TypeName string    `mapstructure:"type" validate:"required"`
	Type     FieldType `mapstructure:"-"`
	Label    string    `mapstructure:"label"`

	Required  bool     `mapstructure:"required"`
	Unique    bool     `mapstructure:"unique"`
	MaxLength int      `mapstructure:"maxLength" validate:"gte=0"`
	MinValue  *float64 `mapstructure:"minValue"`
	MaxValue  *float64 `mapstructure:"maxValue"`
	Nullable  bool     `mapstructure:"nullable"`

	// ReadOnly fields can never be set by callers.
	ReadOnly bool `mapstructure:"readOnly"`
	// ReadOnlyAfterCreate fields become read-only once the owning record is persisted.
	ReadOnlyAfterCreate bool `mapstructure:"readOnlyAfterCreate"`
	// IsDBField is nil when not declared; fields are persisted by default.
	IsDBField *bool `mapstructure:"isDBField"`

	DefaultValue    interface{} `mapstructure:"defaultValue"`
	ValidationRules []string    `mapstructure:"validationRules"`
	Options         []string    `mapstructure:"options"`
	RelatedEntity   string      `mapstructure:"relatedModel"`
}

// IsPersisted returns true if the field has a database column
func (f *FieldDefinition) IsPersisted() bool {
	return f.IsDBField == nil || *f.IsDBField
}

// HasOption returns true if value is one of the declared options
func (f *FieldDefinition) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// RelationshipType represents the variant of a relationship
type RelationshipType int

const (
	OneToOne RelationshipType = iota
	OneToMany
	ManyToMany
)

// String returns the metadata name of the relationship type
func (r RelationshipType) String() string {
	switch r {
	case OneToOne:
		return "OneToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToMany:
		return "ManyToMany"
	default:
		return "unknown"
	}
}

// ParseRelationshipType converts a metadata name to a RelationshipType
func ParseRelationshipType(s string) (RelationshipType, error) {
	switch s {
	case "OneToOne":
		return OneToOne, nil
	case "OneToMany":
		return OneToMany, nil
	case "ManyToMany":
		return ManyToMany, nil
	default:
		return 0, fmt.Errorf("unknown relationship type: %s", s)
	}
}

// CascadeAction represents the action taken on related rows when a participant is deleted
type CascadeAction int

const (
	CascadeRestrict CascadeAction = iota
	CascadeCascade
	CascadeSoftDelete
)

// String returns the string representation of the cascade action
func (c CascadeAction) String() string {
	switch c {
	case CascadeRestrict:
		return "RESTRICT"
	case CascadeCascade:
		return "CASCADE"
	case CascadeSoftDelete:
		return "SOFT_DELETE"
	default:
		return "unknown"
	}
}

// ParseCascadeAction converts a string to a CascadeAction. Matching is case-insensitive and an
// empty string selects RESTRICT.
func ParseCascadeAction(s string) (CascadeAction, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "_")) {
	case "", "RESTRICT":
		return CascadeRestrict, nil
	case "CASCADE":
		return CascadeCascade, nil
	case "SOFT_DELETE", "SOFTDELETE":
		return CascadeSoftDelete, nil
	default:
		return 0, fmt.Errorf("unknown cascade action: %s", s)
	}
}

// RelationshipDefinition describes a named association between two entities.
//
// For OneToMany, EntityA is the parent ("one") side and EntityB the child ("many") side. OneToOne
// and OneToMany store the link as a foreign key column on EntityB's table; ManyToMany stores it in
// a join table.
type RelationshipDefinition struct {
	Name     string           `mapstructure:"name" validate:"required"`
	Label    string           `mapstructure:"label"`
	TypeName string           `mapstructure:"type" validate:"required,oneof=OneToOne OneToMany ManyToMany"`
	Type     RelationshipType `mapstructure:"-"`

	EntityA string `mapstructure:"modelA"`
	EntityB string `mapstructure:"modelB"`
	// ModelOne and ModelMany are accepted as aliases of EntityA/EntityB for OneToMany.
	ModelOne  string `mapstructure:"modelOne"`
	ModelMany string `mapstructure:"modelMany"`

	ForeignKey string `mapstructure:"foreignKey"`
	JoinTable  string `mapstructure:"joinTable"`

	OnDeleteName string        `mapstructure:"onDelete"`
	OnDelete     CascadeAction `mapstructure:"-"`

	AdditionalFields map[string]*FieldDefinition `mapstructure:"additionalFields"`
}

// Normalize folds the OneToMany aliases into EntityA/EntityB and parses the enumerated names.
func (r *RelationshipDefinition) Normalize() error {
	if r.EntityA == "" {
		r.EntityA = r.ModelOne
	}
	if r.EntityB == "" {
		r.EntityB = r.ModelMany
	}
	if r.EntityA == "" || r.EntityB == "" {
		return fmt.Errorf("relationship %s must name both participants", r.Name)
	}

	relType, err := ParseRelationshipType(r.TypeName)
	if err != nil {
		return err
	}
	r.Type = relType

	action, err := ParseCascadeAction(r.OnDeleteName)
	if err != nil {
		return err
	}
	r.OnDelete = action

	for name, field := range r.AdditionalFields {
		if field.Name == "" {
			field.Name = name
		}
	}
	return nil
}

// ForeignKeyColumn returns the column on EntityB holding EntityA's id
func (r *RelationshipDefinition) ForeignKeyColumn() string {
	if r.ForeignKey != "" {
		return r.ForeignKey
	}
	return ToSnakeCase(r.EntityA) + "_id"
}

// JoinTableName returns the ManyToMany join table name
func (r *RelationshipDefinition) JoinTableName() string {
	if r.JoinTable != "" {
		return r.JoinTable
	}
	return "rel_" + ToSnakeCase(r.EntityA) + "_" + ToSnakeCase(r.EntityB)
}

// ColumnA returns the join table column referencing EntityA
func (r *RelationshipDefinition) ColumnA() string {
	if r.EntityA == r.EntityB {
		return ToSnakeCase(r.EntityA) + "_a_id"
	}
	return ToSnakeCase(r.EntityA) + "_id"
}

// ColumnB returns the join table column referencing EntityB
func (r *RelationshipDefinition) ColumnB() string {
	if r.EntityA == r.EntityB {
		return ToSnakeCase(r.EntityB) + "_b_id"
	}
	return ToSnakeCase(r.EntityB) + "_id"
}

// Involves returns true if entityName participates in the relationship
func (r *RelationshipDefinition) Involves(entityName string) bool {
	return r.EntityA == entityName || r.EntityB == entityName
}

// SortedAdditionalFields returns the join row extra fields ordered by name
func (r *RelationshipDefinition) SortedAdditionalFields() []*FieldDefinition {
	names := make([]string, 0, len(r.AdditionalFields))
	for name := range r.AdditionalFields {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*FieldDefinition, 0, len(names))
	for _, name := range names {
		result = append(result, r.AdditionalFields[name])
	}
	return result
}

// EntityDefinition is the fully merged description of an entity
type EntityDefinition struct {
	Name  string `mapstructure:"name" validate:"required"`
	Table string `mapstructure:"table"`
	Alias string `mapstructure:"alias"`
	Label string `mapstructure:"label"`

	Fields          map[string]*FieldDefinition `mapstructure:"fields" validate:"required,min=1,dive"`
	Relationships   []string                    `mapstructure:"relationships"`
	DisplayColumns  []string                    `mapstructure:"displayColumns"`
	ValidationRules []string                    `mapstructure:"validationRules"`
	RolesAndActions map[string][]string         `mapstructure:"rolesAndActions"`
	UI              map[string]interface{}      `mapstructure:"ui"`
}

// TableName returns the table backing the entity
func (e *EntityDefinition) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return DefaultTableName(e.Name)
}

// Field returns the field definition with the given name
func (e *EntityDefinition) Field(name string) (*FieldDefinition, bool) {
	f, ok := e.Fields[name]
	return f, ok
}

// HasField returns true if the entity defines the named field
func (e *EntityDefinition) HasField(name string) bool {
	_, ok := e.Fields[name]
	return ok
}

// HasRelationship returns true if the entity lists the named relationship
func (e *EntityDefinition) HasRelationship(name string) bool {
	for _, rel := range e.Relationships {
		if rel == name {
			return true
		}
	}
	return false
}

// FieldNames returns the field names in storage order: id first, then alphabetical
func (e *EntityDefinition) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		if name != FieldID {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := e.Fields[FieldID]; ok {
		names = append([]string{FieldID}, names...)
	}
	return names
}

// PersistedFields returns the fields that have database columns, in storage order
func (e *EntityDefinition) PersistedFields() []*FieldDefinition {
	var result []*FieldDefinition
	for _, name := range e.FieldNames() {
		if f := e.Fields[name]; f.IsPersisted() {
			result = append(result, f)
		}
	}
	return result
}

// ColumnNames returns the names of the persisted fields in storage order
func (e *EntityDefinition) ColumnNames() []string {
	fields := e.PersistedFields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// RelatedRecordFields returns the persisted RelatedRecord fields in storage order
func (e *EntityDefinition) RelatedRecordFields() []*FieldDefinition {
	var result []*FieldDefinition
	for _, f := range e.PersistedFields() {
		if f.Type == TypeRelatedRecord {
			result = append(result, f)
		}
	}
	return result
}

// GetDisplayColumns returns the columns concatenated to display a record of this entity.
// Defaults to name when the entity has one, otherwise id.
func (e *EntityDefinition) GetDisplayColumns() []string {
	if len(e.DisplayColumns) > 0 {
		return e.DisplayColumns
	}
	if e.HasField("name") {
		return []string{"name"}
	}
	return []string{FieldID}
}

// IsPersisted returns true if any field of the entity has a database column
func (e *EntityDefinition) IsPersisted() bool {
	return len(e.PersistedFields()) > 0
}

// DefaultTableName derives a table name from an entity name ("MovieQuote" -> "movie_quotes")
func DefaultTableName(entityName string) string {
	return inflect.Pluralize(ToSnakeCase(entityName))
}

// ToSnakeCase converts an entity or field name to snake_case
func ToSnakeCase(s string) string {
	return inflect.Underscore(s)
}

// ValidateStorageName returns an error unless name is a lowercase snake_case identifier.
// Table and column names must survive PostgreSQL case folding so quoted DDL and unquoted
// queries address the same object.
func ValidateStorageName(name string) error {
	if name == "" {
		return fmt.Errorf("empty storage name")
	}
	for i, char := range name {
		switch {
		case char >= 'a' && char <= 'z', char == '_':
		case char >= '0' && char <= '9' && i > 0:
		default:
			return fmt.Errorf("storage name %q must be lowercase snake_case (try %q)", name, ToSnakeCase(name))
		}
	}
	return nil
}
