package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
)

// Introspector reads the live schema into a graph
type Introspector interface {
	Introspect(ctx context.Context, q transaction.Executor) (*Graph, error)
}

// PostgresIntrospector reads tables from information_schema and pg_indexes
type PostgresIntrospector struct {
	schema string
}

// NewPostgresIntrospector creates an introspector for the named PostgreSQL schema.
// An empty name means "public".
func NewPostgresIntrospector(schemaName string) *PostgresIntrospector {
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresIntrospector{schema: schemaName}
}

const columnsQuery = `SELECT table_name, column_name, data_type, character_maximum_length, is_nullable
FROM information_schema.columns
WHERE table_schema = $1
ORDER BY table_name, ordinal_position`

const indexesQuery = `SELECT tablename, indexname, indexdef
FROM pg_indexes
WHERE schemaname = $1
ORDER BY tablename, indexname`

// Introspect returns the tables of the schema ordered by name, with column types normalized
// to the codegen vocabulary
func (p *PostgresIntrospector) Introspect(ctx context.Context, q transaction.Executor) (*Graph, error) {
	graph := NewGraph()
	if err := p.readColumns(ctx, q, graph); err != nil {
		return nil, err
	}
	if err := p.readIndexes(ctx, q, graph); err != nil {
		return nil, err
	}
	return graph, nil
}

func (p *PostgresIntrospector) readColumns(ctx context.Context, q transaction.Executor, graph *Graph) error {
	rows, err := q.QueryContext(ctx, columnsQuery, p.schema)
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, column, dataType, isNullable string
			length                              sql.NullInt64
		)
		if err := rows.Scan(&table, &column, &dataType, &length, &isNullable); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		t, ok := graph.Table(table)
		if !ok {
			t = &TableDefinition{Name: table}
			graph.Add(t)
		}
		t.Columns = append(t.Columns, codegen.Column{
			Name:     column,
			Type:     codegen.NormalizeType(dataType, length.Int64),
			Nullable: strings.EqualFold(isNullable, "YES"),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating columns: %w", err)
	}
	return nil
}

func (p *PostgresIntrospector) readIndexes(ctx context.Context, q transaction.Executor, graph *Graph) error {
	rows, err := q.QueryContext(ctx, indexesQuery, p.schema)
	if err != nil {
		return fmt.Errorf("failed to read indexes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, name, def string
		if err := rows.Scan(&table, &name, &def); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		t, ok := graph.Table(table)
		if !ok {
			continue
		}
		t.Indexes = append(t.Indexes, codegen.Index{
			Name:   name,
			Table:  table,
			Unique: strings.Contains(strings.ToUpper(def), "UNIQUE INDEX"),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating indexes: %w", err)
	}
	return nil
}
