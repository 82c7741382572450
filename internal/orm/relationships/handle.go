package relationships

import (
	"context"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Handle binds a relationship to one instance. The other record passed to its methods is placed
// on the opposite side of the relationship.
type Handle struct {
	rel   Relationship
	owner *entity.Instance
}

var _ entity.RelationshipHandle = (*Handle)(nil)

// NewHandle binds rel to owner
func NewHandle(rel Relationship, owner *entity.Instance) *Handle {
	return &Handle{rel: rel, owner: owner}
}

// Definition returns the relationship definition
func (h *Handle) Definition() *schema.RelationshipDefinition {
	return h.rel.Definition()
}

// Relationship returns the underlying relationship
func (h *Handle) Relationship() Relationship {
	return h.rel
}

func (h *Handle) order(other *entity.Instance) (a, b *entity.Instance) {
	if h.owner.EntityName() == h.rel.Definition().EntityA {
		return h.owner, other
	}
	return other, h.owner
}

// GetRelatedRecords returns the records related to the owner
func (h *Handle) GetRelatedRecords(ctx context.Context) ([]*entity.Instance, error) {
	return h.rel.GetRelatedRecords(ctx, h.owner)
}

// GetParent returns the parent of the owner in a OneToMany relationship
func (h *Handle) GetParent(ctx context.Context) (*entity.Instance, error) {
	otm, ok := h.rel.(*oneToMany)
	if !ok {
		return nil, ormerr.Structuralf("relationship %s is %s, GetParent requires OneToMany: %w",
			h.rel.Definition().Name, h.rel.Definition().Type, ErrWrongSide)
	}
	return otm.GetParent(ctx, h.owner)
}

// AddRelation links the owner with other
func (h *Handle) AddRelation(ctx context.Context, other *entity.Instance, extra map[string]interface{}) (bool, error) {
	a, b := h.order(other)
	return h.rel.AddRelation(ctx, a, b, extra)
}

// RemoveRelation unlinks the owner and other
func (h *Handle) RemoveRelation(ctx context.Context, other *entity.Instance) (bool, error) {
	a, b := h.order(other)
	return h.rel.RemoveRelation(ctx, a, b)
}

// HasRelation reports whether the owner and other are linked
func (h *Handle) HasRelation(ctx context.Context, other *entity.Instance) (bool, error) {
	a, b := h.order(other)
	return h.rel.HasRelation(ctx, a, b)
}
