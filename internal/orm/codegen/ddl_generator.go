package codegen

import (
	"fmt"
	"strings"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Column describes a table column in mapper vocabulary
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	Default    string
	PrimaryKey bool
}

// Index describes a table index. Where holds an optional partial-index predicate.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Where   string
}

// DDLGenerator generates PostgreSQL DDL statements
type DDLGenerator struct {
	typeMapper *TypeMapper
}

// NewDDLGenerator creates a new DDL generator
func NewDDLGenerator() *DDLGenerator {
	return &DDLGenerator{
		typeMapper: NewTypeMapper(),
	}
}

// ColumnFor maps a persisted field definition to its column
func (g *DDLGenerator) ColumnFor(field *schema.FieldDefinition) (Column, error) {
	columnType, err := g.typeMapper.MapType(field)
	if err != nil {
		return Column{}, fmt.Errorf("field %s: %w", field.Name, err)
	}
	def, err := g.typeMapper.MapDefault(field)
	if err != nil {
		return Column{}, err
	}
	return Column{
		Name:       field.Name,
		Type:       columnType,
		Nullable:   g.typeMapper.MapNullability(field),
		Default:    def,
		PrimaryKey: field.Name == schema.FieldID,
	}, nil
}

// ColumnsFor maps the persisted fields of an entity to columns in storage order
func (g *DDLGenerator) ColumnsFor(def *schema.EntityDefinition) ([]Column, error) {
	fields := def.PersistedFields()
	columns := make([]Column, 0, len(fields))
	for _, field := range fields {
		col, err := g.ColumnFor(field)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", def.Name, err)
		}
		columns = append(columns, col)
	}
	return columns, nil
}

// GenerateCreateTable generates a CREATE TABLE statement
func (g *DDLGenerator) GenerateCreateTable(table string, columns []Column) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s has no columns", table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdentifier(table))
	for i, col := range columns {
		b.WriteString("  ")
		b.WriteString(g.columnDefinition(col))
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")

	return b.String(), nil
}

func (g *DDLGenerator) columnDefinition(col Column) string {
	parts := []string{QuoteIdentifier(col.Name), col.Type}
	if col.Nullable {
		parts = append(parts, "NULL")
	} else {
		parts = append(parts, "NOT NULL")
	}
	if col.Default != "" {
		parts = append(parts, "DEFAULT "+col.Default)
	}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	return strings.Join(parts, " ")
}

// GenerateAddColumn generates an ALTER TABLE ... ADD COLUMN statement
func (g *DDLGenerator) GenerateAddColumn(table string, col Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s;",
		QuoteIdentifier(table), g.columnDefinition(col))
}

// GenerateAlterColumnType generates a statement changing the type of a column
func (g *DDLGenerator) GenerateAlterColumnType(table string, col Column) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;",
		QuoteIdentifier(table), QuoteIdentifier(col.Name), col.Type,
		QuoteIdentifier(col.Name), col.Type)
}

// GenerateAlterNullability generates a statement adding or dropping NOT NULL on a column
func (g *DDLGenerator) GenerateAlterNullability(table string, col Column) string {
	action := "SET NOT NULL"
	if col.Nullable {
		action = "DROP NOT NULL"
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s;",
		QuoteIdentifier(table), QuoteIdentifier(col.Name), action)
}

// GenerateCreateIndex generates a CREATE INDEX statement
func (g *DDLGenerator) GenerateCreateIndex(idx Index) string {
	columns := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		columns[i] = QuoteIdentifier(c)
	}

	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	stmt := fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind, QuoteIdentifier(idx.Name), QuoteIdentifier(idx.Table), strings.Join(columns, ", "))
	if idx.Where != "" {
		stmt += " WHERE " + idx.Where
	}
	return stmt + ";"
}

// JoinTableColumns returns the columns of a ManyToMany join table: id, the two participant ids,
// the six audit columns and the relationship's additional fields
func (g *DDLGenerator) JoinTableColumns(rel *schema.RelationshipDefinition) ([]Column, error) {
	if rel.Type != schema.ManyToMany {
		return nil, fmt.Errorf("relationship %s is %s and has no join table", rel.Name, rel.Type)
	}

	columns := []Column{
		{Name: schema.FieldID, Type: TypeGUID, PrimaryKey: true},
		{Name: rel.ColumnA(), Type: TypeGUID},
		{Name: rel.ColumnB(), Type: TypeGUID},
	}
	for _, name := range schema.AuditFields {
		columnType := TypeGUID
		if name == schema.FieldCreatedAt || name == schema.FieldUpdatedAt || name == schema.FieldDeletedAt {
			columnType = TypeTimestamp
		}
		columns = append(columns, Column{Name: name, Type: columnType, Nullable: true})
	}

	for _, field := range rel.SortedAdditionalFields() {
		if !field.IsPersisted() {
			continue
		}
		col, err := g.ColumnFor(field)
		if err != nil {
			return nil, fmt.Errorf("relationship %s: %w", rel.Name, err)
		}
		col.PrimaryKey = false
		columns = append(columns, col)
	}
	return columns, nil
}
