// Package hooks runs entity lifecycle callbacks around model operations.
//
// Synchronous hooks run inside the operation's transaction and abort it on error. Asynchronous
// hooks receive a snapshot of the record and run on a worker pool once the operation committed.
package hooks

import (
	"context"
	"sync"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
)

// Type identifies a lifecycle point
type Type int

const (
	BeforeCreate Type = iota
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
	AfterRestore
)

// String returns the name of the lifecycle point
func (t Type) String() string {
	switch t {
	case BeforeCreate:
		return "before_create"
	case AfterCreate:
		return "after_create"
	case BeforeUpdate:
		return "before_update"
	case AfterUpdate:
		return "after_update"
	case BeforeDelete:
		return "before_delete"
	case AfterDelete:
		return "after_delete"
	case AfterRestore:
		return "after_restore"
	default:
		return "unknown"
	}
}

// AllEntities registers a hook for every entity
const AllEntities = ""

// Func is a synchronous hook. It may modify the instance.
type Func func(ctx context.Context, e *entity.Instance) error

// Record is the detached copy of an instance handed to asynchronous hooks
type Record struct {
	Entity string
	ID     string
	Values map[string]interface{}
}

// AsyncFunc is an asynchronous hook
type AsyncFunc func(ctx context.Context, rec Record) error

type key struct {
	entity string
	typ    Type
}

// Registry holds hooks per entity and lifecycle point. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	inline map[key][]Func
	async  map[key][]AsyncFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		inline: make(map[key][]Func),
		async:  make(map[key][]AsyncFunc),
	}
}

// On registers a synchronous hook. AllEntities matches every entity.
func (r *Registry) On(entityName string, t Type, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{entity: entityName, typ: t}
	r.inline[k] = append(r.inline[k], fn)
}

// OnAsync registers an asynchronous hook. AllEntities matches every entity.
func (r *Registry) OnAsync(entityName string, t Type, fn AsyncFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{entity: entityName, typ: t}
	r.async[k] = append(r.async[k], fn)
}

// Hooks returns the synchronous hooks for an entity: AllEntities hooks first, in registration order
func (r *Registry) Hooks(entityName string, t Type) []Func {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := append([]Func(nil), r.inline[key{entity: AllEntities, typ: t}]...)
	if entityName != AllEntities {
		result = append(result, r.inline[key{entity: entityName, typ: t}]...)
	}
	return result
}

// AsyncHooks returns the asynchronous hooks for an entity, ordered like Hooks
func (r *Registry) AsyncHooks(entityName string, t Type) []AsyncFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := append([]AsyncFunc(nil), r.async[key{entity: AllEntities, typ: t}]...)
	if entityName != AllEntities {
		result = append(result, r.async[key{entity: entityName, typ: t}]...)
	}
	return result
}

// HasHooks returns true if any hook, synchronous or not, is registered for the entity and type
func (r *Registry) HasHooks(entityName string, t Type) bool {
	return len(r.Hooks(entityName, t)) > 0 || len(r.AsyncHooks(entityName, t)) > 0
}
