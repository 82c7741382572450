package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/query"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Create inserts a new record. Only persisted, non-null fields are written.
// An instance without an id gets a generated UUID; the id returned by the database is assigned back.
func (g *Gateway) Create(ctx context.Context, e *entity.Instance) error {
	if e.IsPersisted() {
		return ormerr.Structuralf("entity %s: create called on a persisted record %s", e.EntityName(), e.ID())
	}

	if e.ID() == "" {
		if err := e.SetID(uuid.NewString()); err != nil {
			return fmt.Errorf("failed to assign id: %w", err)
		}
	}

	columns, values, err := e.Fields().StorageValues(false)
	if err != nil {
		return fmt.Errorf("failed to extract %s values: %w", e.EntityName(), err)
	}
	if err := checkIdentifiers(e.TableName(), columns); err != nil {
		return err
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		e.TableName(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		schema.FieldID,
	)

	var id string
	if err := g.exec(ctx).QueryRowContext(ctx, stmt, values...).Scan(&id); err != nil {
		return fmt.Errorf("failed to create %s: %w", e.EntityName(), ConvertDBError(err))
	}

	if err := e.SetID(strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("failed to assign id: %w", err)
	}
	e.MarkPersisted()
	return nil
}

func checkIdentifiers(table string, columns []string) error {
	if err := query.ValidateIdentifier(table); err != nil {
		return ormerr.Wrap(err, "table "+table)
	}
	for _, column := range columns {
		if err := query.ValidateIdentifier(column); err != nil {
			return ormerr.Wrap(err, "table "+table)
		}
	}
	return nil
}
