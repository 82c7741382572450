// Package relationships implements the OneToOne, OneToMany and ManyToMany relationship variants
// and their cascade behaviour when a participant is deleted.
//
// OneToOne and OneToMany store the link as a foreign key column on the B entity's table.
// ManyToMany stores it in a join table whose rows carry the audit columns and a tombstone of their
// own. Statements run on the transaction carried by the context when there is one.
package relationships

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/fields"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
)

// Relationship is the contract shared by the three variants.
// Methods taking a and b expect a to be an EntityA record and b an EntityB record.
type Relationship interface {
	Definition() *schema.RelationshipDefinition

	// Validate checks the definition against the participant entities
	Validate(ctx context.Context) error

	// AddRelation links a and b. It returns false when the pairing is not allowed
	// or already exists.
	AddRelation(ctx context.Context, a, b *entity.Instance, extra map[string]interface{}) (bool, error)

	// RemoveRelation unlinks a and b, returning false when they were not linked
	RemoveRelation(ctx context.Context, a, b *entity.Instance) (bool, error)

	HasRelation(ctx context.Context, a, b *entity.Instance) (bool, error)

	// GetRelatedRecords returns the active records linked to e
	GetRelatedRecords(ctx context.Context, e *entity.Instance) ([]*entity.Instance, error)

	// HandleEntityDeletion applies action to the rows related to e, which is being deleted
	HandleEntityDeletion(ctx context.Context, e *entity.Instance, action schema.CascadeAction) error

	// RestoreRelations clears the tombstones a SOFT_DELETE cascade stamped with deletedAt
	RestoreRelations(ctx context.Context, e *entity.Instance, deletedAt time.Time) error
}

// Resolver resolves entity and relationship definitions by name
type Resolver interface {
	Entity(ctx context.Context, name string) (*schema.EntityDefinition, error)
	Relationship(ctx context.Context, name string) (*schema.RelationshipDefinition, error)
}

// HydrateFunc turns a result row of def into an instance
type HydrateFunc func(ctx context.Context, def *schema.EntityDefinition, record crud.Record) (*entity.Instance, error)

type constructor func(en *Engine, def *schema.RelationshipDefinition) Relationship

var constructors = map[schema.RelationshipType]constructor{
	schema.OneToOne:   newOneToOne,
	schema.OneToMany:  newOneToMany,
	schema.ManyToMany: newManyToMany,
}

// Engine builds relationships and runs cascades
type Engine struct {
	db       crud.DB
	gateway  *crud.Gateway
	resolver Resolver
	registry *fields.Registry
	hydrate  HydrateFunc
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *zap.Logger) Option {
	return func(en *Engine) {
		if logger != nil {
			en.logger = logger
		}
	}
}

// WithClock sets the clock used for audit and tombstone stamps
func WithClock(now func() time.Time) Option {
	return func(en *Engine) {
		en.now = now
	}
}

// WithHydrator sets the function that builds related instances from rows
func WithHydrator(fn HydrateFunc) Option {
	return func(en *Engine) {
		en.hydrate = fn
	}
}

// WithFieldRegistry sets the registry used to build instances and coerce join row fields
func WithFieldRegistry(registry *fields.Registry) Option {
	return func(en *Engine) {
		en.registry = registry
	}
}

// NewEngine creates a relationship engine on db
func NewEngine(db crud.DB, resolver Resolver, opts ...Option) *Engine {
	en := &Engine{
		db:       db,
		resolver: resolver,
		logger:   zap.NewNop(),
		now:      Now,
	}
	for _, opt := range opts {
		opt(en)
	}
	if en.registry == nil {
		en.registry = fields.NewRegistry(en.logger)
	}
	if en.hydrate == nil {
		en.hydrate = en.defaultHydrate
	}
	en.gateway = crud.NewGateway(db, resolver, en.logger)
	return en
}

// Now returns the current time at the precision of a PostgreSQL TIMESTAMP column
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (en *Engine) defaultHydrate(_ context.Context, def *schema.EntityDefinition, record crud.Record) (*entity.Instance, error) {
	inst := entity.New(def, en.registry.Build(def))
	if err := inst.Hydrate(record); err != nil {
		return nil, err
	}
	return inst, nil
}

func (en *Engine) exec(ctx context.Context) transaction.Executor {
	return transaction.ExecutorFrom(ctx, en.db)
}

// For builds the relationship variant of def
func (en *Engine) For(def *schema.RelationshipDefinition) (Relationship, error) {
	build, ok := constructors[def.Type]
	if !ok {
		return nil, ormerr.Structuralf("relationship %s: unsupported type %s", def.Name, def.TypeName)
	}
	return build(en, def), nil
}

// Relationship resolves and builds the named relationship
func (en *Engine) Relationship(ctx context.Context, name string) (Relationship, error) {
	def, err := en.resolver.Relationship(ctx, name)
	if err != nil {
		return nil, err
	}
	return en.For(def)
}

// Bind attaches a handle for every relationship the instance's entity declares.
// Relationships that fail to resolve are logged and skipped.
func (en *Engine) Bind(ctx context.Context, inst *entity.Instance) {
	for _, name := range inst.Definition().Relationships {
		rel, err := en.Relationship(ctx, name)
		if err != nil {
			en.logger.Warn("failed to build relationship, skipping it",
				zap.String("entity", inst.EntityName()),
				zap.String("relationship", name),
				zap.Error(err),
			)
			continue
		}
		inst.AttachRelationship(NewHandle(rel, inst))
	}
}

type cascadeKey struct{}

// visit records inst in the cascade carried by ctx, starting one when there is none.
// It returns false when inst was already visited by the same cascade.
func visit(ctx context.Context, inst *entity.Instance) (context.Context, bool) {
	visited, ok := ctx.Value(cascadeKey{}).(map[string]struct{})
	if !ok {
		visited = make(map[string]struct{})
		ctx = context.WithValue(ctx, cascadeKey{}, visited)
	}
	key := inst.EntityName() + ":" + inst.ID()
	if _, seen := visited[key]; seen {
		return ctx, false
	}
	visited[key] = struct{}{}
	return ctx, true
}

// HandleEntityDeletion applies the configured cascade of every relationship of inst.
// RESTRICT relationships are checked before any cascade runs so a blocked delete changes nothing.
// A record reached twice in one cascade, as in cyclic self-referential data, is handled once.
func (en *Engine) HandleEntityDeletion(ctx context.Context, inst *entity.Instance) error {
	ctx, first := visit(ctx, inst)
	if !first {
		return nil
	}

	rels, err := en.relationshipsOf(ctx, inst)
	if err != nil {
		return err
	}

	for _, rel := range rels {
		if rel.Definition().OnDelete == schema.CascadeRestrict {
			if err := rel.HandleEntityDeletion(ctx, inst, schema.CascadeRestrict); err != nil {
				return err
			}
		}
	}
	for _, rel := range rels {
		if action := rel.Definition().OnDelete; action != schema.CascadeRestrict {
			if err := rel.HandleEntityDeletion(ctx, inst, action); err != nil {
				return err
			}
		}
	}
	return nil
}

// RestoreRelations reverses the SOFT_DELETE cascades of every relationship of inst
func (en *Engine) RestoreRelations(ctx context.Context, inst *entity.Instance, deletedAt time.Time) error {
	rels, err := en.relationshipsOf(ctx, inst)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if rel.Definition().OnDelete != schema.CascadeSoftDelete {
			continue
		}
		if err := rel.RestoreRelations(ctx, inst, deletedAt); err != nil {
			return err
		}
	}
	return nil
}

func (en *Engine) relationshipsOf(ctx context.Context, inst *entity.Instance) ([]Relationship, error) {
	var rels []Relationship
	for _, name := range inst.Definition().Relationships {
		rel, err := en.Relationship(ctx, name)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// hydrateAll turns rows of def into instances
func (en *Engine) hydrateAll(ctx context.Context, def *schema.EntityDefinition, records []crud.Record) ([]*entity.Instance, error) {
	result := make([]*entity.Instance, 0, len(records))
	for _, record := range records {
		inst, err := en.hydrate(ctx, def, record)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, nil
}

// stamp returns the update stamp for a link mutation
func (en *Engine) stamp(ctx context.Context) (time.Time, interface{}) {
	return en.now(), actorValue(entity.ActorFrom(ctx))
}

// tombstone returns the deleted_at/deleted_by to copy from the entity being deleted
func (en *Engine) tombstone(ctx context.Context, e *entity.Instance) (time.Time, interface{}) {
	at := en.now()
	if v, err := e.Get(schema.FieldDeletedAt); err == nil {
		if t, ok := v.(time.Time); ok {
			at = t
		}
	}

	by := actorValue(entity.ActorFrom(ctx))
	if actor := e.GetString(schema.FieldDeletedBy); actor != "" {
		by = actor
	}
	return at, by
}

func actorValue(actor string) interface{} {
	if actor == "" {
		return nil
	}
	return actor
}

// side reports which participant e is. Self-referential relationships report both.
func side(def *schema.RelationshipDefinition, e *entity.Instance) (isA, isB bool, err error) {
	isA = e.EntityName() == def.EntityA
	isB = e.EntityName() == def.EntityB
	if !isA && !isB {
		return false, false, ormerr.Structuralf("entity %s does not participate in relationship %s",
			e.EntityName(), def.Name)
	}
	return isA, isB, nil
}

func requireID(def *schema.RelationshipDefinition, instances ...*entity.Instance) error {
	for _, inst := range instances {
		if inst.ID() == "" {
			return ormerr.Structuralf("relationship %s: %s record has no id", def.Name, inst.EntityName())
		}
	}
	return nil
}

func requirePair(def *schema.RelationshipDefinition, a, b *entity.Instance) error {
	if a.EntityName() != def.EntityA {
		return ormerr.Structuralf("relationship %s expects a %s record, got %s", def.Name, def.EntityA, a.EntityName())
	}
	if b.EntityName() != def.EntityB {
		return ormerr.Structuralf("relationship %s expects a %s record, got %s", def.Name, def.EntityB, b.EntityName())
	}
	return requireID(def, a, b)
}

func unknownAction(def *schema.RelationshipDefinition, action schema.CascadeAction) error {
	return ormerr.Structuralf("relationship %s: unknown cascade action %d", def.Name, int(action))
}
