package crud

import (
	"context"
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// SoftDelete persists the tombstone of e. Only deleted_at and deleted_by are written; the caller
// stamps them first.
func (g *Gateway) SoftDelete(ctx context.Context, e *entity.Instance) error {
	id := e.ID()
	if id == "" {
		return ormerr.Structuralf("entity %s: soft delete requires an id", e.EntityName())
	}

	columns := []string{schema.FieldDeletedAt, schema.FieldDeletedBy}
	values := make([]interface{}, 0, len(columns))
	populated := false
	for _, name := range columns {
		f, ok := e.Fields().Field(name)
		if !ok {
			return ormerr.Structuralf("entity %s has no field %s", e.EntityName(), name)
		}
		v, err := f.StorageValue()
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		if v != nil {
			populated = true
		}
		values = append(values, v)
	}
	if !populated {
		return ormerr.Structuralf("entity %s %s: soft delete with neither deleted_at nor deleted_by set",
			e.EntityName(), id)
	}

	return g.updateColumns(ctx, e, id, columns, values)
}

// HardDelete removes the row of e. The delete is irreversible.
func (g *Gateway) HardDelete(ctx context.Context, e *entity.Instance) error {
	id := e.ID()
	if id == "" {
		return ormerr.Structuralf("entity %s: hard delete requires an id", e.EntityName())
	}
	if err := checkIdentifiers(e.TableName(), nil); err != nil {
		return err
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", e.TableName(), schema.FieldID)
	result, err := g.exec(ctx).ExecContext(ctx, stmt, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", e.EntityName(), ConvertDBError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", e.EntityName(), id, ErrNotFound)
	}
	return nil
}
