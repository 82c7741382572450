package codegen

import (
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// MaxIdentifierLength is the PostgreSQL limit on identifier bytes
const MaxIdentifierLength = 63

// ActiveRowPredicate restricts partial indexes to rows that are not soft-deleted
var ActiveRowPredicate = schema.FieldDeletedAt + " IS NULL"

// IndexGenerator derives the indexes of entity and join tables
type IndexGenerator struct{}

// NewIndexGenerator creates a new index generator
func NewIndexGenerator() *IndexGenerator {
	return &IndexGenerator{}
}

// IndexName builds an index name, truncated to the identifier limit so the live name matches
func IndexName(table string, parts ...string) string {
	name := "idx_" + table
	for _, p := range parts {
		name += "_" + p
	}
	if len(name) > MaxIdentifierLength {
		name = name[:MaxIdentifierLength]
	}
	return name
}

// GenerateIndexes returns the indexes of an entity table in storage order: a partial unique
// index per unique field, a plain index per RelatedRecord field and one on the tombstone
func (g *IndexGenerator) GenerateIndexes(def *schema.EntityDefinition) []Index {
	table := def.TableName()
	softDeletes := hasPersisted(def, schema.FieldDeletedAt)

	var indexes []Index
	for _, field := range def.PersistedFields() {
		if field.Name == schema.FieldID {
			continue
		}
		if field.Unique {
			idx := Index{
				Name:    IndexName(table, field.Name, "unique"),
				Table:   table,
				Columns: []string{field.Name},
				Unique:  true,
			}
			if softDeletes {
				idx.Where = ActiveRowPredicate
			}
			indexes = append(indexes, idx)
		}
		if field.Type == schema.TypeRelatedRecord {
			indexes = append(indexes, Index{
				Name:    IndexName(table, field.Name),
				Table:   table,
				Columns: []string{field.Name},
			})
		}
	}

	if softDeletes {
		indexes = append(indexes, Index{
			Name:    IndexName(table, schema.FieldDeletedAt),
			Table:   table,
			Columns: []string{schema.FieldDeletedAt},
		})
	}
	return indexes
}

// GenerateJoinTableIndexes returns the indexes of a ManyToMany join table: the participant
// pair is unique among active rows and the B column is indexed for reverse lookups
func (g *IndexGenerator) GenerateJoinTableIndexes(rel *schema.RelationshipDefinition) ([]Index, error) {
	if rel.Type != schema.ManyToMany {
		return nil, fmt.Errorf("relationship %s is %s and has no join table", rel.Name, rel.Type)
	}
	table := rel.JoinTableName()
	return []Index{
		{
			Name:    IndexName(table, "pair", "unique"),
			Table:   table,
			Columns: []string{rel.ColumnA(), rel.ColumnB()},
			Unique:  true,
			Where:   ActiveRowPredicate,
		},
		{
			Name:    IndexName(table, rel.ColumnB()),
			Table:   table,
			Columns: []string{rel.ColumnB()},
		},
	}, nil
}

func hasPersisted(def *schema.EntityDefinition, name string) bool {
	f, ok := def.Field(name)
	return ok && f.IsPersisted()
}
