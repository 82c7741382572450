package relationships

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/query"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
)

// manyToMany links records through join table rows. At most one active row exists per pair.
type manyToMany struct {
	en  *Engine
	def *schema.RelationshipDefinition
}

func newManyToMany(en *Engine, def *schema.RelationshipDefinition) Relationship {
	return &manyToMany{en: en, def: def}
}

// Definition returns the relationship definition
func (r *manyToMany) Definition() *schema.RelationshipDefinition {
	return r.def
}

func (r *manyToMany) table() string {
	return r.def.JoinTableName()
}

// reservedColumns returns the join table columns extra fields may not reuse
func (r *manyToMany) reservedColumns() map[string]bool {
	reserved := map[string]bool{
		schema.FieldID:  true,
		r.def.ColumnA(): true,
		r.def.ColumnB(): true,
	}
	for _, name := range schema.AuditFields {
		reserved[name] = true
	}
	return reserved
}

// Validate checks the participants and the join table naming
func (r *manyToMany) Validate(ctx context.Context) error {
	for _, name := range []string{r.def.EntityA, r.def.EntityB} {
		if _, err := r.en.resolver.Entity(ctx, name); err != nil {
			return fmt.Errorf("relationship %s: %w", r.def.Name, err)
		}
	}

	for _, identifier := range []string{r.table(), r.def.ColumnA(), r.def.ColumnB()} {
		if err := query.ValidateIdentifier(identifier); err != nil {
			return ormerr.Wrap(err, "relationship "+r.def.Name)
		}
	}

	reserved := r.reservedColumns()
	for _, f := range r.def.SortedAdditionalFields() {
		if reserved[f.Name] {
			return ormerr.Structuralf("relationship %s: additional field %s collides with a join table column",
				r.def.Name, f.Name)
		}
		if err := query.ValidateIdentifier(f.Name); err != nil {
			return ormerr.Wrap(err, "relationship "+r.def.Name)
		}
	}
	return nil
}

// extraValues coerces the join row extra fields through the field registry.
// Unknown names are structural errors.
func (r *manyToMany) extraValues(extra map[string]interface{}) ([]string, []interface{}, error) {
	if len(extra) == 0 {
		return nil, nil, nil
	}

	set := r.en.registry.Build(&schema.EntityDefinition{Name: r.def.Name, Fields: r.def.AdditionalFields})
	for name, value := range extra {
		if !set.Has(name) {
			return nil, nil, ormerr.Structuralf("relationship %s has no additional field %s", r.def.Name, name)
		}
		if err := set.Set(name, value); err != nil {
			return nil, nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
		}
	}
	return set.StorageValues(false)
}

// AddRelation inserts a join row for (a, b). An existing active pairing returns false.
func (r *manyToMany) AddRelation(ctx context.Context, a, b *entity.Instance, extra map[string]interface{}) (bool, error) {
	if err := requirePair(r.def, a, b); err != nil {
		return false, err
	}
	extraCols, extraVals, err := r.extraValues(extra)
	if err != nil {
		return false, err
	}

	exists, err := r.HasRelation(ctx, a, b)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	at, by := r.en.stamp(ctx)
	columns := []string{
		schema.FieldID, r.def.ColumnA(), r.def.ColumnB(),
		schema.FieldCreatedAt, schema.FieldCreatedBy, schema.FieldUpdatedAt, schema.FieldUpdatedBy,
	}
	values := []interface{}{uuid.NewString(), a.ID(), b.ID(), at, by, at, by}
	columns = append(columns, extraCols...)
	values = append(values, extraVals...)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table(), strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if err := r.insertRow(ctx, stmt, values); err != nil {
		// a concurrent insert of the same pair hits the partial unique index
		if crud.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("relationship %s: failed to add relation: %w", r.def.Name, err)
	}
	return true, nil
}

// insertRow runs stmt under a savepoint when ctx carries a transaction, so a failed insert
// leaves the caller's transaction usable
func (r *manyToMany) insertRow(ctx context.Context, stmt string, values []interface{}) error {
	parent, ok := transaction.FromContext(ctx)
	if !ok {
		_, err := r.en.execRows(ctx, stmt, values...)
		return err
	}

	sp, err := parent.BeginNested(ctx)
	if err != nil {
		return err
	}
	if _, err := r.en.execRows(transaction.WithContext(ctx, sp), stmt, values...); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint failed: %v)", err, rbErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

// RemoveRelation tombstones the active join row of (a, b)
func (r *manyToMany) RemoveRelation(ctx context.Context, a, b *entity.Instance) (bool, error) {
	if err := requirePair(r.def, a, b); err != nil {
		return false, err
	}

	at, by := r.en.stamp(ctx)
	stmt := fmt.Sprintf("UPDATE %s SET %s = $1, %s = $2 WHERE %s = $3 AND %s = $4 AND %s IS NULL",
		r.table(), schema.FieldDeletedAt, schema.FieldDeletedBy,
		r.def.ColumnA(), r.def.ColumnB(), schema.FieldDeletedAt)
	n, err := r.en.execRows(ctx, stmt, at, by, a.ID(), b.ID())
	if err != nil {
		return false, fmt.Errorf("relationship %s: failed to remove relation: %w", r.def.Name, err)
	}
	return n > 0, nil
}

// HasRelation reports whether an active join row exists for (a, b)
func (r *manyToMany) HasRelation(ctx context.Context, a, b *entity.Instance) (bool, error) {
	if err := requirePair(r.def, a, b); err != nil {
		return false, err
	}

	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1 AND %s = $2 AND %s IS NULL",
		r.table(), r.def.ColumnA(), r.def.ColumnB(), schema.FieldDeletedAt)
	n, err := r.en.countRows(ctx, stmt, a.ID(), b.ID())
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetRelatedRecords returns the active records on the other side of e's active join rows.
// In a self-referential relationship e is taken as the A side.
func (r *manyToMany) GetRelatedRecords(ctx context.Context, e *entity.Instance) ([]*entity.Instance, error) {
	isA, _, err := side(r.def, e)
	if err != nil {
		return nil, err
	}
	if err := requireID(r.def, e); err != nil {
		return nil, err
	}

	own, other, otherEntity := r.def.ColumnA(), r.def.ColumnB(), r.def.EntityB
	if !isA {
		own, other, otherEntity = r.def.ColumnB(), r.def.ColumnA(), r.def.EntityA
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 AND %s IS NULL",
		other, r.table(), own, schema.FieldDeletedAt)
	ids, err := r.en.collectIDs(ctx, stmt, e.ID())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	def, err := r.en.resolver.Entity(ctx, otherEntity)
	if err != nil {
		return nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
	}
	records, err := r.en.gateway.Find(ctx, def, map[string]interface{}{schema.FieldID: ids}, nil, crud.Params{})
	if err != nil {
		return nil, fmt.Errorf("relationship %s: %w", r.def.Name, err)
	}
	return r.en.hydrateAll(ctx, def, records)
}

// sideCondition matches the join rows e participates in, binding e's id to $1
func (r *manyToMany) sideCondition(e *entity.Instance) (string, error) {
	isA, isB, err := side(r.def, e)
	if err != nil {
		return "", err
	}
	switch {
	case isA && isB:
		return fmt.Sprintf("(%s = $1 OR %s = $1)", r.def.ColumnA(), r.def.ColumnB()), nil
	case isA:
		return r.def.ColumnA() + " = $1", nil
	default:
		return r.def.ColumnB() + " = $1", nil
	}
}

// HandleEntityDeletion applies action to e's own join rows. The records on the other side are
// never touched.
func (r *manyToMany) HandleEntityDeletion(ctx context.Context, e *entity.Instance, action schema.CascadeAction) error {
	where, err := r.sideCondition(e)
	if err != nil {
		return err
	}
	if err := requireID(r.def, e); err != nil {
		return err
	}

	switch action {
	case schema.CascadeRestrict:
		stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s AND %s IS NULL", r.table(), where, schema.FieldDeletedAt)
		n, err := r.en.countRows(ctx, stmt, e.ID())
		if err != nil {
			return err
		}
		if n > 0 {
			return &RestrictError{Relationship: r.def.Name, Entity: e.EntityName(), ID: e.ID(), Count: n}
		}
		return nil

	case schema.CascadeCascade:
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", r.table(), where)
		n, err := r.en.execRows(ctx, stmt, e.ID())
		if err != nil {
			return fmt.Errorf("relationship %s: failed to delete join rows: %w", r.def.Name, err)
		}
		r.en.logger.Debug("deleted join rows",
			zap.String("relationship", r.def.Name),
			zap.String("id", e.ID()),
			zap.Int64("count", n),
		)
		return nil

	case schema.CascadeSoftDelete:
		stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s AND %s IS NULL",
			schema.FieldID, r.table(), where, schema.FieldDeletedAt)
		ids, err := r.en.collectIDs(ctx, stmt, e.ID())
		if err != nil {
			return err
		}
		at, by := r.en.tombstone(ctx, e)
		_, err = r.en.tombstoneIDs(ctx, r.table(), ids, at, by)
		return err

	default:
		return unknownAction(r.def, action)
	}
}

// RestoreRelations clears the join row tombstones stamped with deletedAt
func (r *manyToMany) RestoreRelations(ctx context.Context, e *entity.Instance, deletedAt time.Time) error {
	where, err := r.sideCondition(e)
	if err != nil {
		return err
	}
	_, err = r.en.restoreTombstones(ctx, r.table(), where, e.ID(), deletedAt)
	return err
}
