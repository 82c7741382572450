package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
)

// Registry holds a resolved set of entity and relationship definitions
type Registry struct {
	entities      map[string]*EntityDefinition
	relationships map[string]*RelationshipDefinition
	mu            sync.RWMutex
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	return &Registry{
		entities:      make(map[string]*EntityDefinition),
		relationships: make(map[string]*RelationshipDefinition),
	}
}

// Register registers an entity definition
func (r *Registry) Register(def *EntityDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[def.Name]; exists {
		return fmt.Errorf("entity %s is already registered", def.Name)
	}
	if len(def.Fields) == 0 {
		return ormerr.Structuralf("entity %s has no fields", def.Name)
	}

	r.entities[def.Name] = def
	return nil
}

// RegisterRelationship registers a relationship definition.
// Participants are checked by ValidateAll so relationships may be registered before their entities.
func (r *Registry) RegisterRelationship(def *RelationshipDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.relationships[def.Name]; exists {
		return fmt.Errorf("relationship %s is already registered", def.Name)
	}

	r.relationships[def.Name] = def
	return nil
}

// Get retrieves an entity definition by name
func (r *Registry) Get(name string) (*EntityDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.entities[name]
	return def, exists
}

// Relationship retrieves a relationship definition by name
func (r *Registry) Relationship(name string) (*RelationshipDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.relationships[name]
	return def, exists
}

// List returns the registered entity names in alphabetical order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Relationships returns all relationship definitions ordered by name
func (r *Registry) Relationships() []*RelationshipDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedRelationships(func(*RelationshipDefinition) bool { return true })
}

// RelationshipsFor returns the relationships the entity participates in, ordered by name
func (r *Registry) RelationshipsFor(entityName string) []*RelationshipDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedRelationships(func(rel *RelationshipDefinition) bool {
		return rel.Involves(entityName)
	})
}

func (r *Registry) sortedRelationships(keep func(*RelationshipDefinition) bool) []*RelationshipDefinition {
	names := make([]string, 0, len(r.relationships))
	for name, rel := range r.relationships {
		if keep(rel) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	result := make([]*RelationshipDefinition, len(names))
	for i, name := range names {
		result[i] = r.relationships[name]
	}
	return result
}

// ValidateAll checks that every relationship participant and RelatedRecord target
// resolves to a registered entity
func (r *Registry) ValidateAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rel := range r.sortedRelationships(func(*RelationshipDefinition) bool { return true }) {
		for _, participant := range []string{rel.EntityA, rel.EntityB} {
			if _, ok := r.entities[participant]; !ok {
				return ormerr.Structuralf("relationship %s references unknown entity %s", rel.Name, participant)
			}
		}
	}

	for _, name := range r.sortedEntityNames() {
		for _, field := range r.entities[name].RelatedRecordFields() {
			if _, ok := r.entities[field.RelatedEntity]; !ok {
				return ormerr.Structuralf("entity %s: field %s references unknown entity %s",
					name, field.Name, field.RelatedEntity)
			}
		}
	}

	return nil
}

func (r *Registry) sortedEntityNames() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Graph builds the dependency graph of the registered definitions
func (r *Registry) Graph() *RelationshipGraph {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return NewRelationshipGraph(r.entities, r.relationships)
}

// DependencyOrder returns entity names with dependencies first.
// When the graph has cycles the alphabetical order is returned along with the error.
func (r *Registry) DependencyOrder() ([]string, error) {
	order, err := r.Graph().TopologicalSort()
	if err != nil {
		return r.List(), err
	}
	return order, nil
}

// Count returns the number of registered entities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entities)
}
