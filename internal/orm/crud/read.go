package crud

import (
	"context"
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/query"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Find returns the rows of def matching criteria.
//
// A list-valued criterion becomes IN, nil becomes IS NULL and any other value an equality. An
// empty field list selects every persisted field. Each selected RelatedRecord field contributes
// its foreign key and a <field>_display column.
func (g *Gateway) Find(
	ctx context.Context,
	def *schema.EntityDefinition,
	criteria map[string]interface{},
	fields []string,
	params Params,
) ([]Record, error) {
	qb := g.builder(def).
		Select(fields...).
		WhereCriteria(criteria).
		IncludeDeleted(params.IncludeDeleted)
	for _, order := range params.OrderBy {
		qb.OrderBy(order.Field, order.Direction)
	}
	if params.Limit > 0 {
		qb.Limit(params.Limit)
	}
	if params.Offset > 0 {
		qb.Offset(params.Offset)
	}

	sql, args, _, err := qb.ToSQL(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := g.exec(ctx).QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", def.Name, ConvertDBError(err))
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s rows: %w", def.Name, ConvertDBError(err))
	}
	return records, nil
}

// FindByID returns the row with the given id, or ErrNotFound
func (g *Gateway) FindByID(ctx context.Context, def *schema.EntityDefinition, id string, includeDeleted bool) (Record, error) {
	if id == "" {
		return nil, ormerr.Structuralf("entity %s: find by id requires an id", def.Name)
	}

	records, err := g.Find(ctx, def, map[string]interface{}{schema.FieldID: id}, nil, Params{
		Limit:          1,
		IncludeDeleted: includeDeleted,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s %s: %w", def.Name, id, ErrNotFound)
	}
	return records[0], nil
}

// Count returns the number of rows of def matching criteria
func (g *Gateway) Count(ctx context.Context, def *schema.EntityDefinition, criteria map[string]interface{}, includeDeleted bool) (int64, error) {
	return g.count(ctx, g.builder(def).WhereCriteria(criteria).IncludeDeleted(includeDeleted))
}

func (g *Gateway) count(ctx context.Context, qb *query.Builder) (int64, error) {
	sql, args, err := qb.CountSQL()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := g.exec(ctx).QueryRowContext(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", ConvertDBError(err))
	}
	return count, nil
}

// RecordExists reports whether a non-deleted row of the field's related entity has the given id.
// Null and empty values always exist, so the referential check is skipped rather than failed.
func (g *Gateway) RecordExists(ctx context.Context, field *schema.FieldDefinition, value interface{}) (bool, error) {
	if isBlank(value) {
		return true, nil
	}
	if field.RelatedEntity == "" {
		return false, ormerr.Structuralf("field %s has no related entity", field.Name)
	}
	if g.resolver == nil {
		return false, ormerr.Structuralf("field %s: no entity resolver configured", field.Name)
	}

	related, err := g.resolver.Entity(ctx, field.RelatedEntity)
	if err != nil {
		return false, err
	}

	count, err := g.count(ctx, g.builder(related).Where(schema.FieldID, query.OpEqual, value))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ValueExists reports whether another non-deleted row of def already holds value in field.
// The row with id excludeID, when given, is ignored.
func (g *Gateway) ValueExists(
	ctx context.Context,
	def *schema.EntityDefinition,
	field string,
	value interface{},
	excludeID string,
) (bool, error) {
	qb := g.builder(def).Where(field, query.OpEqual, value)
	if excludeID != "" {
		qb.Where(schema.FieldID, query.OpNotEqual, excludeID)
	}

	count, err := g.count(ctx, qb)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func isBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	default:
		return false
	}
}
