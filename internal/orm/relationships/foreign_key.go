package relationships

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/query"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// foreignKey holds the behaviour OneToOne and OneToMany share: the link is a nullable column on
// the B table pointing at the A record's id, and only deletions of A records cascade.
type foreignKey struct {
	en  *Engine
	def *schema.RelationshipDefinition
}

// Definition returns the relationship definition
func (r *foreignKey) Definition() *schema.RelationshipDefinition {
	return r.def
}

func (r *foreignKey) column() string {
	return r.def.ForeignKeyColumn()
}

func (r *foreignKey) participants(ctx context.Context) (*schema.EntityDefinition, *schema.EntityDefinition, error) {
	a, err := r.en.resolver.Entity(ctx, r.def.EntityA)
	if err != nil {
		return nil, nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
	}
	b, err := r.en.resolver.Entity(ctx, r.def.EntityB)
	if err != nil {
		return nil, nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
	}
	return a, b, nil
}

func (r *foreignKey) childTable(ctx context.Context) (string, error) {
	_, b, err := r.participants(ctx)
	if err != nil {
		return "", err
	}
	return b.TableName(), nil
}

// Validate checks that the B entity carries a persisted RelatedRecord foreign key to A
func (r *foreignKey) Validate(ctx context.Context) error {
	_, b, err := r.participants(ctx)
	if err != nil {
		return err
	}

	f, ok := b.Field(r.column())
	if !ok || !f.IsPersisted() {
		return ormerr.Structuralf("relationship %s: entity %s has no persisted foreign key %s",
			r.def.Name, b.Name, r.column())
	}
	if f.Type != schema.TypeRelatedRecord || f.RelatedEntity != r.def.EntityA {
		return ormerr.Structuralf("relationship %s: field %s.%s must be a RelatedRecord to %s",
			r.def.Name, b.Name, f.Name, r.def.EntityA)
	}
	if err := query.ValidateIdentifier(r.column()); err != nil {
		return ormerr.Wrap(err, "relationship "+r.def.Name)
	}
	return nil
}

// link points b at a when b has no active link yet
func (r *foreignKey) link(ctx context.Context, a, b *entity.Instance) (bool, error) {
	table, err := r.childTable(ctx)
	if err != nil {
		return false, err
	}

	at, by := r.en.stamp(ctx)
	stmt := fmt.Sprintf("UPDATE %s SET %s = $1, %s = $2, %s = $3 WHERE %s = $4 AND %s IS NULL AND %s IS NULL",
		table, r.column(), schema.FieldUpdatedAt, schema.FieldUpdatedBy,
		schema.FieldID, r.column(), schema.FieldDeletedAt)
	n, err := r.en.execRows(ctx, stmt, a.ID(), at, by, b.ID())
	if err != nil {
		return false, fmt.Errorf("relationship %s: failed to link: %w", r.def.Name, err)
	}
	if n == 0 {
		return false, nil
	}

	r.sync(b, a.ID())
	return true, nil
}

// sync mirrors a link change on the in-memory B record
func (r *foreignKey) sync(b *entity.Instance, value interface{}) {
	if !b.HasField(r.column()) {
		return
	}
	if err := b.Fields().Assign(r.column(), value); err != nil {
		r.en.logger.Warn("failed to mirror foreign key on instance",
			zap.String("relationship", r.def.Name),
			zap.String("field", r.column()),
			zap.Error(err),
		)
	}
}

// RemoveRelation clears b's link when it points at a
func (r *foreignKey) RemoveRelation(ctx context.Context, a, b *entity.Instance) (bool, error) {
	if err := requirePair(r.def, a, b); err != nil {
		return false, err
	}
	table, err := r.childTable(ctx)
	if err != nil {
		return false, err
	}

	at, by := r.en.stamp(ctx)
	stmt := fmt.Sprintf("UPDATE %s SET %s = NULL, %s = $1, %s = $2 WHERE %s = $3 AND %s = $4",
		table, r.column(), schema.FieldUpdatedAt, schema.FieldUpdatedBy, schema.FieldID, r.column())
	n, err := r.en.execRows(ctx, stmt, at, by, b.ID(), a.ID())
	if err != nil {
		return false, fmt.Errorf("relationship %s: failed to unlink: %w", r.def.Name, err)
	}
	if n == 0 {
		return false, nil
	}

	r.sync(b, nil)
	return true, nil
}

// HasRelation reports whether b is actively linked to a
func (r *foreignKey) HasRelation(ctx context.Context, a, b *entity.Instance) (bool, error) {
	if err := requirePair(r.def, a, b); err != nil {
		return false, err
	}
	table, err := r.childTable(ctx)
	if err != nil {
		return false, err
	}

	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1 AND %s = $2 AND %s IS NULL",
		table, schema.FieldID, r.column(), schema.FieldDeletedAt)
	n, err := r.en.countRows(ctx, stmt, b.ID(), a.ID())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// activeChildren counts the active B rows linked to a
func (r *foreignKey) activeChildren(ctx context.Context, table string, a *entity.Instance) (int64, error) {
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1 AND %s IS NULL",
		table, r.column(), schema.FieldDeletedAt)
	return r.en.countRows(ctx, stmt, a.ID())
}

// children returns the active B records linked to a, oldest first
func (r *foreignKey) children(ctx context.Context, a *entity.Instance) ([]*entity.Instance, error) {
	if err := requireID(r.def, a); err != nil {
		return nil, err
	}
	_, b, err := r.participants(ctx)
	if err != nil {
		return nil, err
	}

	records, err := r.en.gateway.Find(ctx, b, map[string]interface{}{r.column(): a.ID()}, nil, crud.Params{
		OrderBy: []crud.Order{{Field: schema.FieldCreatedAt, Direction: "ASC"}},
	})
	if err != nil {
		return nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
	}
	return r.en.hydrateAll(ctx, b, records)
}

// parent returns the active A record b is linked to, or nil
func (r *foreignKey) parent(ctx context.Context, b *entity.Instance) (*entity.Instance, error) {
	id := b.GetString(r.column())
	if id == "" {
		return nil, nil
	}
	a, _, err := r.participants(ctx)
	if err != nil {
		return nil, err
	}

	record, err := r.en.gateway.FindByID(ctx, a, id, false)
	if crud.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
	}
	return r.en.hydrate(ctx, a, record)
}

// HandleEntityDeletion applies action to the B rows linked to e.
// Deleting a B record only drops its own link, which lives on the deleted row, so nothing cascades.
func (r *foreignKey) HandleEntityDeletion(ctx context.Context, e *entity.Instance, action schema.CascadeAction) error {
	isA, _, err := side(r.def, e)
	if err != nil {
		return err
	}
	switch action {
	case schema.CascadeRestrict, schema.CascadeCascade, schema.CascadeSoftDelete:
	default:
		return unknownAction(r.def, action)
	}
	if !isA {
		return nil
	}
	if err := requireID(r.def, e); err != nil {
		return err
	}

	table, err := r.childTable(ctx)
	if err != nil {
		return err
	}

	switch action {
	case schema.CascadeRestrict:
		n, err := r.activeChildren(ctx, table, e)
		if err != nil {
			return err
		}
		if n > 0 {
			return &RestrictError{Relationship: r.def.Name, Entity: e.EntityName(), ID: e.ID(), Count: n}
		}
		return nil

	case schema.CascadeCascade:
		return r.cascade(ctx, table, e)

	default:
		stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL",
			schema.FieldID, table, r.column(), schema.FieldDeletedAt)
		ids, err := r.en.collectIDs(ctx, stmt, e.ID())
		if err != nil {
			return err
		}
		at, by := r.en.tombstone(ctx, e)
		n, err := r.en.tombstoneIDs(ctx, table, ids, at, by)
		if err != nil {
			return err
		}
		r.en.logger.Debug("tombstoned related records",
			zap.String("relationship", r.def.Name),
			zap.String("id", e.ID()),
			zap.Int64("count", n),
		)
		return nil
	}
}

// cascade hard-deletes every B row linked to e, running the children's own cascades first
func (r *foreignKey) cascade(ctx context.Context, table string, e *entity.Instance) error {
	children, err := r.children(ctx, e)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := r.en.HandleEntityDeletion(ctx, child); err != nil {
			return err
		}
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, r.column())
	n, err := r.en.execRows(ctx, stmt, e.ID())
	if err != nil {
		return fmt.Errorf("relationship %s: failed to delete related records: %w", r.def.Name, err)
	}
	r.en.logger.Debug("deleted related records",
		zap.String("relationship", r.def.Name),
		zap.String("id", e.ID()),
		zap.Int64("count", n),
	)
	return nil
}

// RestoreRelations clears the tombstones a SOFT_DELETE cascade from e stamped with deletedAt
func (r *foreignKey) RestoreRelations(ctx context.Context, e *entity.Instance, deletedAt time.Time) error {
	isA, _, err := side(r.def, e)
	if err != nil || !isA {
		return err
	}
	table, err := r.childTable(ctx)
	if err != nil {
		return err
	}
	_, err = r.en.restoreTombstones(ctx, table, r.column()+" = $1", e.ID(), deletedAt)
	return err
}

// oneToOne allows exactly one active pairing per side
type oneToOne struct {
	foreignKey
}

func newOneToOne(en *Engine, def *schema.RelationshipDefinition) Relationship {
	return &oneToOne{foreignKey{en: en, def: def}}
}

// AddRelation pairs a with b, returning false when either side is already paired
func (r *oneToOne) AddRelation(ctx context.Context, a, b *entity.Instance, _ map[string]interface{}) (bool, error) {
	if err := requirePair(r.def, a, b); err != nil {
		return false, err
	}
	table, err := r.childTable(ctx)
	if err != nil {
		return false, err
	}

	paired, err := r.activeChildren(ctx, table, a)
	if err != nil {
		return false, err
	}
	if paired > 0 {
		return false, nil
	}
	return r.link(ctx, a, b)
}

// GetRelatedRecords returns the record paired with e, from either side
func (r *oneToOne) GetRelatedRecords(ctx context.Context, e *entity.Instance) ([]*entity.Instance, error) {
	isA, _, err := side(r.def, e)
	if err != nil {
		return nil, err
	}
	if isA {
		return r.children(ctx, e)
	}

	parent, err := r.parent(ctx, e)
	if err != nil || parent == nil {
		return nil, err
	}
	return []*entity.Instance{parent}, nil
}

// oneToMany links one A parent to many B children
type oneToMany struct {
	foreignKey
}

func newOneToMany(en *Engine, def *schema.RelationshipDefinition) Relationship {
	return &oneToMany{foreignKey{en: en, def: def}}
}

// AddRelation makes child a child of parent. It returns false when the child already has a parent.
func (r *oneToMany) AddRelation(ctx context.Context, parent, child *entity.Instance, _ map[string]interface{}) (bool, error) {
	if err := requirePair(r.def, parent, child); err != nil {
		return false, err
	}
	return r.link(ctx, parent, child)
}

// GetRelatedRecords returns the children of a parent record.
// Calling it with a child record is a structural error; use GetParent.
func (r *oneToMany) GetRelatedRecords(ctx context.Context, e *entity.Instance) ([]*entity.Instance, error) {
	isA, _, err := side(r.def, e)
	if err != nil {
		return nil, err
	}
	if !isA {
		return nil, ormerr.Structuralf("relationship %s: %s is the child side, use GetParent: %w",
			r.def.Name, e.EntityName(), ErrWrongSide)
	}
	return r.children(ctx, e)
}

// GetParent returns the parent of a child record, or nil.
// Calling it with a parent record is a structural error; use GetRelatedRecords.
func (r *oneToMany) GetParent(ctx context.Context, e *entity.Instance) (*entity.Instance, error) {
	_, isB, err := side(r.def, e)
	if err != nil {
		return nil, err
	}
	if !isB {
		return nil, ormerr.Structuralf("relationship %s: %s is the parent side, use GetRelatedRecords: %w",
			r.def.Name, e.EntityName(), ErrWrongSide)
	}
	return r.parent(ctx, e)
}
