package validation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/fields"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Built-in rule names, usable in field and entity validationRules metadata
const (
	RuleRequired      = "required"
	RuleUnique        = "unique"
	RuleEmail         = "email"
	RuleURL           = "url"
	RuleAlphanumeric  = "alphanumeric"
	RuleMaxLength     = "maxLength"
	RuleRange         = "range"
	RuleOptions       = "options"
	RuleRelatedRecord = "relatedRecord"
)

var tags = validator.New()

// Rule validates one field of an entity instance. Entity-level rules receive a nil field.
// A false result is a validation failure described by Message; an error is a structural or
// storage problem.
type Rule interface {
	Validate(ctx context.Context, field *fields.Field, e *entity.Instance) (bool, error)
	Message(field *fields.Field) string
}

// Store answers the existence queries of the unique and related-record rules.
// *crud.Gateway satisfies it.
type Store interface {
	ValueExists(ctx context.Context, def *schema.EntityDefinition, field string, value interface{}, excludeID string) (bool, error)
	RecordExists(ctx context.Context, field *schema.FieldDefinition, value interface{}) (bool, error)
}

// RuleFunc adapts a function and a fixed message to Rule
type RuleFunc struct {
	Fn  func(ctx context.Context, field *fields.Field, e *entity.Instance) (bool, error)
	Msg string
}

// Validate implements Rule
func (r RuleFunc) Validate(ctx context.Context, field *fields.Field, e *entity.Instance) (bool, error) {
	return r.Fn(ctx, field, e)
}

// Message implements Rule
func (r RuleFunc) Message(*fields.Field) string {
	return r.Msg
}

func requireField(rule string, field *fields.Field) error {
	if field == nil {
		return ormerr.Structuralf("rule %s applies to fields only", rule)
	}
	return nil
}

// RequiredRule rejects null and empty values
type RequiredRule struct{}

// Validate implements Rule
func (RequiredRule) Validate(_ context.Context, field *fields.Field, _ *entity.Instance) (bool, error) {
	if err := requireField(RuleRequired, field); err != nil {
		return false, err
	}
	return !field.IsEmpty(), nil
}

// Message implements Rule
func (RequiredRule) Message(*fields.Field) string {
	return "is required"
}

// tagRule checks string values with a go-playground/validator tag
type tagRule struct {
	name string
	tag  string
	msg  string
}

// Validate implements Rule
func (r tagRule) Validate(_ context.Context, field *fields.Field, _ *entity.Instance) (bool, error) {
	if err := requireField(r.name, field); err != nil {
		return false, err
	}
	if field.IsEmpty() {
		return true, nil
	}
	s, ok := field.Value().(string)
	if !ok {
		return false, nil
	}
	return tags.Var(s, r.tag) == nil, nil
}

// Message implements Rule
func (r tagRule) Message(*fields.Field) string {
	return r.msg
}

// EmailRule accepts RFC 5322 addresses
var EmailRule Rule = tagRule{name: RuleEmail, tag: "email", msg: "must be a valid email address"}

// URLRule accepts absolute URLs
var URLRule Rule = tagRule{name: RuleURL, tag: "url", msg: "must be a valid URL"}

// AlphanumericRule accepts ASCII letters and digits only
var AlphanumericRule Rule = tagRule{name: RuleAlphanumeric, tag: "alphanum", msg: "must contain only letters and digits"}

// MaxLengthRule enforces the field's declared maxLength in characters
type MaxLengthRule struct{}

// Validate implements Rule
func (MaxLengthRule) Validate(_ context.Context, field *fields.Field, _ *entity.Instance) (bool, error) {
	if err := requireField(RuleMaxLength, field); err != nil {
		return false, err
	}
	limit := field.Definition().MaxLength
	s, ok := field.Value().(string)
	if limit <= 0 || !ok {
		return true, nil
	}
	return utf8.RuneCountInString(s) <= limit, nil
}

// Message implements Rule
func (MaxLengthRule) Message(field *fields.Field) string {
	return fmt.Sprintf("must be at most %d characters", field.Definition().MaxLength)
}

// RangeRule enforces the field's declared minValue and maxValue
type RangeRule struct{}

// Validate implements Rule
func (RangeRule) Validate(_ context.Context, field *fields.Field, _ *entity.Instance) (bool, error) {
	if err := requireField(RuleRange, field); err != nil {
		return false, err
	}
	if field.IsNull() {
		return true, nil
	}
	n, err := cast.ToFloat64E(field.Value())
	if err != nil {
		return false, nil
	}

	def := field.Definition()
	if def.MinValue != nil && n < *def.MinValue {
		return false, nil
	}
	if def.MaxValue != nil && n > *def.MaxValue {
		return false, nil
	}
	return true, nil
}

// Message implements Rule
func (RangeRule) Message(field *fields.Field) string {
	def := field.Definition()
	switch {
	case def.MinValue != nil && def.MaxValue != nil:
		return fmt.Sprintf("must be between %s and %s", formatNumber(*def.MinValue), formatNumber(*def.MaxValue))
	case def.MinValue != nil:
		return fmt.Sprintf("must be at least %s", formatNumber(*def.MinValue))
	default:
		return fmt.Sprintf("must be at most %s", formatNumber(*def.MaxValue))
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// OptionsRule accepts only declared options, for each element of a MultiEnum
type OptionsRule struct{}

// Validate implements Rule
func (OptionsRule) Validate(_ context.Context, field *fields.Field, _ *entity.Instance) (bool, error) {
	if err := requireField(RuleOptions, field); err != nil {
		return false, err
	}
	def := field.Definition()
	if len(def.Options) == 0 {
		return true, nil
	}

	switch v := field.Value().(type) {
	case nil:
		return true, nil
	case string:
		return v == "" || def.HasOption(v), nil
	case []string:
		for _, item := range v {
			if !def.HasOption(item) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

// Message implements Rule
func (OptionsRule) Message(field *fields.Field) string {
	return "must be one of: " + strings.Join(field.Definition().Options, ", ")
}

// UniqueRule rejects a value already held by another live record of the entity
type UniqueRule struct {
	Store Store
}

// Validate implements Rule
func (r UniqueRule) Validate(ctx context.Context, field *fields.Field, e *entity.Instance) (bool, error) {
	if err := requireField(RuleUnique, field); err != nil {
		return false, err
	}
	if field.IsEmpty() || !field.Definition().IsPersisted() {
		return true, nil
	}

	value, err := field.StorageValue()
	if err != nil {
		return false, err
	}
	exists, err := r.Store.ValueExists(ctx, e.Definition(), field.Name(), value, e.ID())
	if err != nil {
		return false, fmt.Errorf("unique check on %s.%s: %w", e.EntityName(), field.Name(), err)
	}
	return !exists, nil
}

// Message implements Rule
func (UniqueRule) Message(*fields.Field) string {
	return "must be unique"
}

// RelatedRecordRule rejects references to missing or deleted records
type RelatedRecordRule struct {
	Store Store
}

// Validate implements Rule
func (r RelatedRecordRule) Validate(ctx context.Context, field *fields.Field, e *entity.Instance) (bool, error) {
	if err := requireField(RuleRelatedRecord, field); err != nil {
		return false, err
	}
	if field.IsEmpty() {
		return true, nil
	}

	exists, err := r.Store.RecordExists(ctx, field.Definition(), field.Value())
	if err != nil {
		return false, fmt.Errorf("related record check on %s.%s: %w", e.EntityName(), field.Name(), err)
	}
	return exists, nil
}

// Message implements Rule
func (RelatedRecordRule) Message(field *fields.Field) string {
	return "references a missing " + field.Definition().RelatedEntity
}
