// Package model ties the ORM layers together: it builds instances from entity names and runs
// validated, transactional CRUD with relationship cascades.
package model

import (
	"context"
	"fmt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/fields"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/relationships"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Factory creates instances by entity name with their fields and relationship handles bound
type Factory struct {
	resolver relationships.Resolver
	registry *fields.Registry
	engine   *relationships.Engine
}

// New returns a fresh, unpersisted instance of the named entity
func (f *Factory) New(ctx context.Context, name string) (*entity.Instance, error) {
	def, err := f.resolver.Entity(ctx, name)
	if err != nil {
		return nil, err
	}
	return f.build(ctx, def), nil
}

// Hydrate turns a storage row of def into a persisted instance
func (f *Factory) Hydrate(ctx context.Context, def *schema.EntityDefinition, rec crud.Record) (*entity.Instance, error) {
	inst := f.build(ctx, def)
	if err := inst.Hydrate(rec); err != nil {
		return nil, fmt.Errorf("failed to hydrate %s: %w", def.Name, err)
	}
	return inst, nil
}

func (f *Factory) build(ctx context.Context, def *schema.EntityDefinition) *entity.Instance {
	inst := entity.New(def, f.registry.Build(def))
	if f.engine != nil {
		f.engine.Bind(ctx, inst)
	}
	return inst
}
