package migrate

import (
	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// TargetGraph derives the tables implied by the definitions in reg: one table per persisted
// entity in dependency order, followed by the join table of each ManyToMany relationship.
// OneToOne and OneToMany relationships live in a foreign key column and add no table.
func TargetGraph(reg *schema.Registry, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg.Count() == 0 {
		return nil, ormerr.Structuralf("no entities to synthesize a schema from")
	}

	ddl := codegen.NewDDLGenerator()
	indexes := codegen.NewIndexGenerator()

	order, err := reg.DependencyOrder()
	if err != nil {
		logger.Warn("entity dependencies are cyclic, creating tables in name order", zap.Error(err))
	}

	graph := NewGraph()
	for _, name := range order {
		def, ok := reg.Get(name)
		if !ok || !def.IsPersisted() {
			continue
		}
		if _, ok := def.Field(schema.FieldID); !ok {
			return nil, ormerr.Structuralf("entity %s has no %s field", name, schema.FieldID)
		}

		columns, err := ddl.ColumnsFor(def)
		if err != nil {
			return nil, err
		}
		graph.Add(&TableDefinition{
			Name:    def.TableName(),
			Columns: columns,
			Indexes: indexes.GenerateIndexes(def),
		})
	}

	for _, rel := range reg.Relationships() {
		if rel.Type != schema.ManyToMany {
			continue
		}
		table := rel.JoinTableName()
		if _, exists := graph.Table(table); exists {
			return nil, ormerr.Structuralf("relationship %s: join table %s collides with an existing table", rel.Name, table)
		}

		columns, err := ddl.JoinTableColumns(rel)
		if err != nil {
			return nil, err
		}
		joinIndexes, err := indexes.GenerateJoinTableIndexes(rel)
		if err != nil {
			return nil, err
		}
		graph.Add(&TableDefinition{Name: table, Columns: columns, Indexes: joinIndexes})
	}

	return graph, nil
}
