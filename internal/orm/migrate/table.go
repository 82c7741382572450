// Package migrate evolves the live database schema toward the one implied by entity metadata.
//
// Both sides are modelled as declarative table graphs: the target is derived from resolved
// definitions, the current one is introspected from the database. Diff compares them without
// touching the database, the Generator renders the resulting changes as ordered DDL and the
// Runner applies the batch in a single transaction. Columns are never dropped; a live column
// with no field behind it is reported as a warning.
package migrate

import (
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
)

// TableDefinition is the declarative shape of one table
type TableDefinition struct {
	Name    string
	Columns []codegen.Column
	Indexes []codegen.Index
}

// Column returns the named column
func (t *TableDefinition) Column(name string) (codegen.Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return codegen.Column{}, false
}

// HasIndex returns true if the table carries an index with the given name
func (t *TableDefinition) HasIndex(name string) bool {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

// Graph is an ordered set of table definitions
type Graph struct {
	Tables []*TableDefinition
	byName map[string]*TableDefinition
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]*TableDefinition)}
}

// Add appends a table, replacing any earlier table of the same name in place
func (g *Graph) Add(t *TableDefinition) {
	if g.byName == nil {
		g.byName = make(map[string]*TableDefinition)
	}
	if existing, ok := g.byName[t.Name]; ok {
		for i, table := range g.Tables {
			if table == existing {
				g.Tables[i] = t
			}
		}
	} else {
		g.Tables = append(g.Tables, t)
	}
	g.byName[t.Name] = t
}

// Table returns the named table
func (g *Graph) Table(name string) (*TableDefinition, bool) {
	t, ok := g.byName[name]
	return t, ok
}

// Len returns the number of tables
func (g *Graph) Len() int {
	return len(g.Tables)
}
