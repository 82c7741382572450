// Package query translates criteria into parameterized PostgreSQL statements
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// EntityResolver resolves related entity definitions during join synthesis
type EntityResolver interface {
	Entity(ctx context.Context, name string) (*schema.EntityDefinition, error)
}

// Builder builds a SELECT for one entity. A Builder is used for a single query.
type Builder struct {
	def      *schema.EntityDefinition
	resolver EntityResolver
	logger   *zap.Logger

	selected       []string
	conditions     []*Condition
	orderBy        []string
	limit          *int
	offset         *int
	includeDeleted bool

	err error
}

// NewBuilder creates a query builder for the given entity
func NewBuilder(def *schema.EntityDefinition, resolver EntityResolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		def:      def,
		resolver: resolver,
		logger:   logger,
	}
}

func (qb *Builder) fail(err error) *Builder {
	if qb.err == nil {
		qb.err = err
	}
	return qb
}

func (qb *Builder) column(field string) (string, bool) {
	f, ok := qb.def.Field(field)
	if !ok {
		qb.fail(ormerr.Structuralf("entity %s has no field %s", qb.def.Name, field))
		return "", false
	}
	if !f.IsPersisted() {
		qb.fail(ormerr.Structuralf("field %s of entity %s is not persisted", field, qb.def.Name))
		return "", false
	}
	return qb.def.TableName() + "." + field, true
}

// Select restricts the selected fields; no fields means every persisted field
func (qb *Builder) Select(fields ...string) *Builder {
	qb.selected = append(qb.selected, fields...)
	return qb
}

// Where adds an AND condition on a field
func (qb *Builder) Where(field string, op Operator, value interface{}) *Builder {
	if column, ok := qb.column(field); ok {
		qb.conditions = append(qb.conditions, &Condition{Column: column, Operator: op, Value: value})
	}
	return qb
}

// WhereCriteria adds one condition per criteria entry, in field-name order
func (qb *Builder) WhereCriteria(criteria map[string]interface{}) *Builder {
	names := make([]string, 0, len(criteria))
	for name := range criteria {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if column, ok := qb.column(name); ok {
			qb.conditions = append(qb.conditions, criteriaCondition(column, criteria[name]))
		}
	}
	return qb
}

// OrderBy adds an ORDER BY clause
func (qb *Builder) OrderBy(field string, direction string) *Builder {
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	if column, ok := qb.column(field); ok {
		qb.orderBy = append(qb.orderBy, column+" "+dir)
	}
	return qb
}

// Limit sets the LIMIT clause
func (qb *Builder) Limit(n int) *Builder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET clause
func (qb *Builder) Offset(n int) *Builder {
	qb.offset = &n
	return qb
}

// IncludeDeleted includes tombstoned rows in the result
func (qb *Builder) IncludeDeleted(include bool) *Builder {
	qb.includeDeleted = include
	return qb
}

// ToSQL generates the SELECT statement, its arguments and the join plan used to build it
func (qb *Builder) ToSQL(ctx context.Context) (string, []interface{}, *JoinPlan, error) {
	if qb.err != nil {
		return "", nil, nil, qb.err
	}
	if err := ValidateIdentifier(qb.def.TableName()); err != nil {
		return "", nil, nil, ormerr.Wrap(err, "entity "+qb.def.Name)
	}

	plan := NewJoinPlan()
	projection, err := qb.projection(ctx, plan)
	if err != nil {
		return "", nil, nil, err
	}

	var sql strings.Builder
	p := &params{}
	table := qb.def.TableName()

	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(projection, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(table)

	for _, join := range plan.Joins {
		sql.WriteString(" ")
		sql.WriteString(join.SQL())
	}

	where, err := qb.whereSQL(p)
	if err != nil {
		return "", nil, nil, err
	}
	sql.WriteString(where)

	if len(qb.orderBy) > 0 {
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(qb.orderBy, ", "))
	}
	if qb.limit != nil {
		sql.WriteString(" LIMIT " + p.add(*qb.limit))
	}
	if qb.offset != nil {
		sql.WriteString(" OFFSET " + p.add(*qb.offset))
	}

	return sql.String(), p.args, plan, nil
}

// CountSQL generates a COUNT(*) over the same conditions, without joins or paging
func (qb *Builder) CountSQL() (string, []interface{}, error) {
	if qb.err != nil {
		return "", nil, qb.err
	}

	p := &params{}
	where, err := qb.whereSQL(p)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + qb.def.TableName() + where, p.args, nil
}

func (qb *Builder) whereSQL(p *params) (string, error) {
	conditions := qb.conditions
	if !qb.includeDeleted {
		if f, ok := qb.def.Field(schema.FieldDeletedAt); ok && f.IsPersisted() {
			tombstone := &Condition{Column: qb.def.TableName() + "." + schema.FieldDeletedAt, Operator: OpIsNull}
			conditions = append([]*Condition{tombstone}, conditions...)
		}
	}
	if len(conditions) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(conditions))
	for _, cond := range conditions {
		condSQL, err := conditionToSQL(cond, p)
		if err != nil {
			return "", fmt.Errorf("failed to build condition: %w", err)
		}
		parts = append(parts, condSQL)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

// projection returns the select list, planning a join for every selected RelatedRecord field
func (qb *Builder) projection(ctx context.Context, plan *JoinPlan) ([]string, error) {
	names := qb.selected
	if len(names) == 0 {
		names = qb.def.ColumnNames()
	}

	table := qb.def.TableName()
	var projection []string
	for _, name := range names {
		f, ok := qb.def.Field(name)
		if !ok {
			return nil, ormerr.Structuralf("entity %s has no field %s", qb.def.Name, name)
		}
		if !f.IsPersisted() {
			continue
		}

		projection = append(projection, table+"."+name)
		if f.Type != schema.TypeRelatedRecord {
			continue
		}

		related, err := qb.resolveRelated(ctx, f)
		if err != nil {
			qb.logger.Warn("cannot resolve related entity, selecting bare foreign key",
				zap.String("entity", qb.def.Name),
				zap.String("field", name),
				zap.String("related", f.RelatedEntity),
				zap.Error(err),
			)
			continue
		}

		columns, unknown := DisplayColumns(related)
		if len(unknown) > 0 {
			qb.logger.Warn("ignoring unknown display columns",
				zap.String("entity", qb.def.Name),
				zap.String("field", name),
				zap.String("related", related.Name),
				zap.Strings("columns", unknown),
			)
		}
		if len(columns) == 0 {
			qb.logger.Warn("no usable display columns, selecting bare foreign key",
				zap.String("entity", qb.def.Name),
				zap.String("field", name),
				zap.String("related", related.Name),
			)
			continue
		}

		join := plan.Add(table, f, related, columns)
		projection = append(projection, join.Display+" AS "+join.DisplayAlias)
	}

	if len(projection) == 0 {
		return nil, ormerr.Structuralf("entity %s: no persisted fields selected", qb.def.Name)
	}
	return projection, nil
}

func (qb *Builder) resolveRelated(ctx context.Context, f *schema.FieldDefinition) (*schema.EntityDefinition, error) {
	if qb.resolver == nil {
		return nil, fmt.Errorf("no entity resolver configured")
	}
	related, err := qb.resolver.Entity(ctx, f.RelatedEntity)
	if err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(related.TableName()); err != nil {
		return nil, err
	}
	return related, nil
}
