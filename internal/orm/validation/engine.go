// Package validation runs field and entity rules against an instance before it is persisted.
package validation

import (
	"context"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/fields"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Engine resolves the rules of each field and evaluates them
type Engine struct {
	rules  map[string]Rule
	logger *zap.Logger
}

// NewEngine creates an engine with the built-in rules registered.
// The unique and relatedRecord rules need a store and are left out when store is nil.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		rules: map[string]Rule{
			RuleRequired:     RequiredRule{},
			RuleEmail:        EmailRule,
			RuleURL:          URLRule,
			RuleAlphanumeric: AlphanumericRule,
			RuleMaxLength:    MaxLengthRule{},
			RuleRange:        RangeRule{},
			RuleOptions:      OptionsRule{},
		},
		logger: logger,
	}
	if store != nil {
		e.rules[RuleUnique] = UniqueRule{Store: store}
		e.rules[RuleRelatedRecord] = RelatedRecordRule{Store: store}
	}
	return e
}

// Register adds or replaces a named rule
func (v *Engine) Register(name string, rule Rule) {
	v.rules[name] = rule
}

// Rule returns the named rule
func (v *Engine) Rule(name string) (Rule, bool) {
	r, ok := v.rules[name]
	return r, ok
}

// implicitRules returns the rule names implied by a field definition.
// Store-backed rules come last.
func implicitRules(def *schema.FieldDefinition) []string {
	var names []string
	if def.Required {
		names = append(names, RuleRequired)
	}
	switch def.Type {
	case schema.TypeEmail:
		names = append(names, RuleEmail)
	case schema.TypeEnum, schema.TypeMultiEnum:
		names = append(names, RuleOptions)
	}
	if def.MaxLength > 0 {
		names = append(names, RuleMaxLength)
	}
	if def.MinValue != nil || def.MaxValue != nil {
		names = append(names, RuleRange)
	}
	if def.Type == schema.TypeRelatedRecord {
		names = append(names, RuleRelatedRecord)
	}
	if def.Unique {
		names = append(names, RuleUnique)
	}
	return names
}

// fieldRules resolves the rules of a field. Implied rules without a registration are skipped;
// an unknown declared rule is structural.
func (v *Engine) fieldRules(def *schema.FieldDefinition) ([]Rule, error) {
	var rules []Rule
	seen := make(map[string]bool)

	for _, name := range implicitRules(def) {
		if r, ok := v.rules[name]; ok {
			rules = append(rules, r)
			seen[name] = true
		}
	}
	for _, name := range def.ValidationRules {
		if seen[name] {
			continue
		}
		r, ok := v.rules[name]
		if !ok {
			return nil, ormerr.Structuralf("field %s declares unknown validation rule %s", def.Name, name)
		}
		rules = append(rules, r)
		seen[name] = true
	}
	return rules, nil
}

// skipField reports fields the engine stamps itself
func skipField(name string) bool {
	return name == schema.FieldID || schema.IsAuditField(name)
}

// checkField evaluates rules in order and returns the message of the first failing one
func checkField(ctx context.Context, rules []Rule, field *fields.Field, e *entity.Instance) (string, bool, error) {
	for _, r := range rules {
		ok, err := r.Validate(ctx, field, e)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return r.Message(field), false, nil
		}
	}
	return "", true, nil
}

// ValidateField validates one field of e and returns its failure messages
func (v *Engine) ValidateField(ctx context.Context, e *entity.Instance, name string) ([]string, error) {
	field, ok := e.Fields().Field(name)
	if !ok {
		return nil, ormerr.Structuralf("entity %s has no field %s", e.EntityName(), name)
	}

	rules, err := v.fieldRules(field.Definition())
	if err != nil {
		return nil, err
	}
	msg, valid, err := checkField(ctx, rules, field, e)
	if err != nil || valid {
		return nil, err
	}
	return []string{msg}, nil
}

// Validate evaluates every field rule and then every entity-level rule of e.
// Each field reports at most its first failure. The result is nil when e is valid; errors are
// structural or storage problems, never validation failures.
func (v *Engine) Validate(ctx context.Context, e *entity.Instance) (*Errors, error) {
	errs := NewErrors()

	for _, field := range e.Fields().Fields() {
		if skipField(field.Name()) {
			continue
		}
		rules, err := v.fieldRules(field.Definition())
		if err != nil {
			return nil, err
		}
		msg, valid, err := checkField(ctx, rules, field, e)
		if err != nil {
			return nil, err
		}
		if !valid {
			errs.Add(field.Name(), msg)
		}
	}

	for _, name := range e.Definition().ValidationRules {
		r, ok := v.rules[name]
		if !ok {
			return nil, ormerr.Structuralf("entity %s declares unknown validation rule %s", e.EntityName(), name)
		}
		valid, err := r.Validate(ctx, nil, e)
		if err != nil {
			return nil, err
		}
		if !valid {
			errs.Add(name, r.Message(nil))
		}
	}

	if !errs.HasErrors() {
		return nil, nil
	}
	v.logger.Debug("validation failed",
		zap.String("entity", e.EntityName()),
		zap.String("id", e.ID()),
		zap.Int("count", errs.Count()),
	)
	return errs, nil
}
