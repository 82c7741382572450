package migrate

import (
	"fmt"
	"strings"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
)

// ChangeType represents the type of schema change
type ChangeType int

const (
	ChangeCreateTable ChangeType = iota
	ChangeAddColumn
	ChangeAlterColumnType
	ChangeAlterNullability
	ChangeCreateIndex
	ChangeOrphanColumn
)

// String returns the string representation of the change type
func (c ChangeType) String() string {
	switch c {
	case ChangeCreateTable:
		return "create_table"
	case ChangeAddColumn:
		return "add_column"
	case ChangeAlterColumnType:
		return "alter_column_type"
	case ChangeAlterNullability:
		return "alter_nullability"
	case ChangeCreateIndex:
		return "create_index"
	case ChangeOrphanColumn:
		return "orphan_column"
	default:
		return "unknown"
	}
}

// SchemaChange represents a detected difference between the live and target schemas
type SchemaChange struct {
	Type  ChangeType
	Table string
	// Definition is the full target table of a ChangeCreateTable
	Definition *TableDefinition
	// Column is the target column, or the live one for ChangeOrphanColumn
	Column   codegen.Column
	Index    codegen.Index
	OldValue string
	NewValue string
	// Breaking changes may fail against existing rows
	Breaking bool
}

// IsWarning returns true for changes that are reported but never applied
func (c SchemaChange) IsWarning() bool {
	return c.Type == ChangeOrphanColumn
}

// String returns a one-line description of the change
func (c SchemaChange) String() string {
	switch c.Type {
	case ChangeCreateTable:
		return fmt.Sprintf("create table %s", c.Table)
	case ChangeAddColumn:
		return fmt.Sprintf("add column %s.%s %s", c.Table, c.Column.Name, c.Column.Type)
	case ChangeAlterColumnType:
		return fmt.Sprintf("change type of %s.%s from %s to %s", c.Table, c.Column.Name, c.OldValue, c.NewValue)
	case ChangeAlterNullability:
		return fmt.Sprintf("change %s.%s from %s to %s", c.Table, c.Column.Name, c.OldValue, c.NewValue)
	case ChangeCreateIndex:
		return fmt.Sprintf("create index %s on %s", c.Index.Name, c.Table)
	case ChangeOrphanColumn:
		return fmt.Sprintf("column %s.%s has no field and is left in place", c.Table, c.Column.Name)
	default:
		return c.Type.String()
	}
}

// Diff computes the changes that move current toward target, table by table in target order.
// It never emits a drop: tables absent from target are ignored and live columns absent from
// target are reported as ChangeOrphanColumn.
func Diff(current, target *Graph) []SchemaChange {
	var changes []SchemaChange

	for _, want := range target.Tables {
		have, exists := current.Table(want.Name)
		if !exists {
			changes = append(changes, SchemaChange{
				Type:       ChangeCreateTable,
				Table:      want.Name,
				Definition: want,
			})
			for _, idx := range want.Indexes {
				changes = append(changes, SchemaChange{Type: ChangeCreateIndex, Table: want.Name, Index: idx})
			}
			continue
		}

		changes = append(changes, diffColumns(have, want)...)
		for _, idx := range want.Indexes {
			if !have.HasIndex(idx.Name) {
				changes = append(changes, SchemaChange{Type: ChangeCreateIndex, Table: want.Name, Index: idx})
			}
		}
	}

	return changes
}

func diffColumns(have, want *TableDefinition) []SchemaChange {
	var changes []SchemaChange

	for _, col := range want.Columns {
		live, exists := have.Column(col.Name)
		if !exists {
			changes = append(changes, SchemaChange{
				Type:     ChangeAddColumn,
				Table:    want.Name,
				Column:   col,
				Breaking: !col.Nullable && col.Default == "",
			})
			continue
		}

		if !strings.EqualFold(live.Type, col.Type) {
			changes = append(changes, SchemaChange{
				Type:     ChangeAlterColumnType,
				Table:    want.Name,
				Column:   col,
				OldValue: live.Type,
				NewValue: col.Type,
				Breaking: true,
			})
		}
		if live.Nullable != col.Nullable && !col.PrimaryKey {
			changes = append(changes, SchemaChange{
				Type:     ChangeAlterNullability,
				Table:    want.Name,
				Column:   col,
				OldValue: nullability(live.Nullable),
				NewValue: nullability(col.Nullable),
				Breaking: !col.Nullable,
			})
		}
	}

	for _, live := range have.Columns {
		if _, wanted := want.Column(live.Name); !wanted {
			changes = append(changes, SchemaChange{Type: ChangeOrphanColumn, Table: want.Name, Column: live})
		}
	}

	return changes
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}
