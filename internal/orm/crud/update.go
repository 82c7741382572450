package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Update writes every persisted field except id, including nulls, to the row keyed by id.
// Writing explicit nulls is what clears a tombstone on restore. Instances loaded with a partial
// column list are rejected.
func (g *Gateway) Update(ctx context.Context, e *entity.Instance) error {
	id := e.ID()
	if id == "" {
		return ormerr.Structuralf("entity %s: update requires an id", e.EntityName())
	}
	if e.IsPartial() {
		return ormerr.Structuralf("update %s %s: %w", e.EntityName(), id, ErrPartialRecord)
	}

	columns, values, err := e.Fields().StorageValues(true)
	if err != nil {
		return fmt.Errorf("failed to extract %s values: %w", e.EntityName(), err)
	}

	var setCols []string
	var setVals []interface{}
	for i, column := range columns {
		if column == schema.FieldID {
			continue
		}
		setCols = append(setCols, column)
		setVals = append(setVals, values[i])
	}
	if len(setCols) == 0 {
		return ormerr.Structuralf("entity %s: no persisted fields to update", e.EntityName())
	}

	return g.updateColumns(ctx, e, id, setCols, setVals)
}

func (g *Gateway) updateColumns(ctx context.Context, e *entity.Instance, id string, columns []string, values []interface{}) error {
	if err := checkIdentifiers(e.TableName(), columns); err != nil {
		return err
	}

	assignments := make([]string, len(columns))
	for i, column := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", column, i+1)
	}
	args := append(append([]interface{}{}, values...), id)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		e.TableName(),
		strings.Join(assignments, ", "),
		schema.FieldID,
		len(args),
	)

	result, err := g.exec(ctx).ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", e.EntityName(), ConvertDBError(err))
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
