package query

import (
	"fmt"
	"strings"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// JoinPlan holds the joins synthesized for one query. Aliases are allocated from a counter owned
// by the plan, so every query numbers its joins from rel_0.
type JoinPlan struct {
	next  int
	Joins []*Join
}

// Join is one LEFT JOIN from a RelatedRecord field to the related entity's table
type Join struct {
	Field        string
	Alias        string
	Table        string
	Condition    string
	Display      string
	DisplayAlias string
}

// NewJoinPlan creates an empty plan
func NewJoinPlan() *JoinPlan {
	return &JoinPlan{}
}

// Allocate returns a fresh join alias
func (p *JoinPlan) Allocate() string {
	alias := fmt.Sprintf("rel_%d", p.next)
	p.next++
	return alias
}

// Add plans the join for a RelatedRecord field of the owner table, displaying the given columns
// of the related entity
func (p *JoinPlan) Add(ownerTable string, field *schema.FieldDefinition, related *schema.EntityDefinition, columns []string) *Join {
	alias := p.Allocate()
	join := &Join{
		Field:        field.Name,
		Alias:        alias,
		Table:        related.TableName(),
		Condition:    fmt.Sprintf("%s.%s = %s.%s", ownerTable, field.Name, alias, schema.FieldID),
		Display:      DisplayExpression(alias, related, columns),
		DisplayAlias: field.Name + "_display",
	}
	p.Joins = append(p.Joins, join)
	return join
}

// SQL renders the JOIN clause
func (j *Join) SQL() string {
	return fmt.Sprintf("LEFT JOIN %s AS %s ON %s", j.Table, j.Alias, j.Condition)
}

// DisplayColumns splits the related entity's display columns into those naming a persisted field
// and the unknown rest
func DisplayColumns(related *schema.EntityDefinition) (valid, unknown []string) {
	for _, column := range related.GetDisplayColumns() {
		f, ok := related.Field(column)
		if !ok || !f.IsPersisted() || ValidateIdentifier(column) != nil {
			unknown = append(unknown, column)
			continue
		}
		valid = append(valid, column)
	}
	return valid, unknown
}

// DisplayExpression builds the space-joined, null-coalesced concatenation of columns of the
// related entity. Non-text columns are cast so COALESCE has a single type.
func DisplayExpression(alias string, related *schema.EntityDefinition, columns []string) string {
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		ref := alias + "." + column
		if f, ok := related.Field(column); ok && !isTextual(f.Type) {
			ref = "CAST(" + ref + " AS TEXT)"
		}
		parts = append(parts, fmt.Sprintf("COALESCE(%s, '')", ref))
	}
	return strings.Join(parts, " || ' ' || ")
}

func isTextual(t schema.FieldType) bool {
	switch t {
	case schema.TypeText, schema.TypeBigText, schema.TypeEmail, schema.TypeEnum,
		schema.TypeImage, schema.TypeVideo, schema.TypeID, schema.TypeRelatedRecord:
		return true
	default:
		return false
	}
}
