package migrate

import (
	"fmt"
	"sort"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
)

// Plan is the outcome of diffing a live schema against a target
type Plan struct {
	Changes    []SchemaChange
	Statements []string
}

// Empty returns true when no statement needs to run
func (p *Plan) Empty() bool {
	return len(p.Statements) == 0
}

// Warnings returns the changes that are reported but not applied
func (p *Plan) Warnings() []SchemaChange {
	var warnings []SchemaChange
	for _, c := range p.Changes {
		if c.IsWarning() {
			warnings = append(warnings, c)
		}
	}
	return warnings
}

// Breaking returns true if any applied change may fail against existing rows
func (p *Plan) Breaking() bool {
	for _, c := range p.Changes {
		if c.Breaking {
			return true
		}
	}
	return false
}

// Generator renders schema changes as ordered DDL
type Generator struct {
	ddl *codegen.DDLGenerator
}

// NewGenerator creates a new generator
func NewGenerator() *Generator {
	return &Generator{ddl: codegen.NewDDLGenerator()}
}

// Plan diffs current against target and renders the statements
func (g *Generator) Plan(current, target *Graph) (*Plan, error) {
	changes := Diff(current, target)
	statements, err := g.Statements(changes)
	if err != nil {
		return nil, err
	}
	return &Plan{Changes: changes, Statements: statements}, nil
}

// phase orders statements so tables exist before their columns change and indexes come last
func phase(t ChangeType) int {
	switch t {
	case ChangeCreateTable:
		return 0
	case ChangeAddColumn:
		return 1
	case ChangeAlterColumnType:
		return 2
	case ChangeAlterNullability:
		return 3
	default:
		return 4
	}
}

// Statements renders changes as DDL: creates first, then column additions and alterations,
// then indexes. Within a phase the diff order is kept. Warnings produce no statement.
func (g *Generator) Statements(changes []SchemaChange) ([]string, error) {
	ordered := make([]SchemaChange, 0, len(changes))
	for _, c := range changes {
		if !c.IsWarning() {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return phase(ordered[i].Type) < phase(ordered[j].Type)
	})

	statements := make([]string, 0, len(ordered))
	for _, c := range ordered {
		stmt, err := g.render(c)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

func (g *Generator) render(c SchemaChange) (string, error) {
	switch c.Type {
	case ChangeCreateTable:
		if c.Definition == nil {
			return "", fmt.Errorf("create table %s: missing definition", c.Table)
		}
		return g.ddl.GenerateCreateTable(c.Table, c.Definition.Columns)
	case ChangeAddColumn:
		return g.ddl.GenerateAddColumn(c.Table, c.Column), nil
	case ChangeAlterColumnType:
		return g.ddl.GenerateAlterColumnType(c.Table, c.Column), nil
	case ChangeAlterNullability:
		return g.ddl.GenerateAlterNullability(c.Table, c.Column), nil
	case ChangeCreateIndex:
		return g.ddl.GenerateCreateIndex(c.Index), nil
	default:
		return "", fmt.Errorf("cannot render %s change on %s", c.Type, c.Table)
	}
}
