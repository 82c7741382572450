package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cache"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

const (
	entityKeyPrefix       = "entity:"
	relationshipKeyPrefix = "relationship:"
)

// Resolver turns raw metadata into immutable schema definitions.
//
// Resolved definitions are cached per name until Invalidate or InvalidateAll is called. When a
// shared cache is configured, merged metadata is also stored there so other processes skip the
// source read.
type Resolver struct {
	source   Source
	shared   cache.Cache
	logger   *zap.Logger
	validate *validator.Validate

	entities      cmap.ConcurrentMap[string, *schema.EntityDefinition]
	relationships cmap.ConcurrentMap[string, *schema.RelationshipDefinition]
	group         singleflight.Group
}

// Option configures a Resolver
type Option func(*Resolver)

// WithCache sets the shared second-level cache
func WithCache(c cache.Cache) Option {
	return func(r *Resolver) {
		r.shared = c
	}
}

// WithLogger sets the logger used for degradations
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver reading from source
func NewResolver(source Source, opts ...Option) *Resolver {
	r := &Resolver{
		source:        source,
		logger:        zap.NewNop(),
		validate:      validator.New(),
		entities:      cmap.New[*schema.EntityDefinition](),
		relationships: cmap.New[*schema.RelationshipDefinition](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Entity returns the merged definition of the named entity
func (r *Resolver) Entity(ctx context.Context, name string) (*schema.EntityDefinition, error) {
	if def, ok := r.entities.Get(name); ok {
		return def, nil
	}

	v, err, _ := r.group.Do(entityKeyPrefix+name, func() (interface{}, error) {
		if def, ok := r.entities.Get(name); ok {
			return def, nil
		}

		raw, err := r.loadEntity(ctx, name)
		if err != nil {
			return nil, err
		}

		def, err := r.buildEntity(ctx, name, raw)
		if err != nil {
			return nil, err
		}

		r.entities.Set(name, def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.EntityDefinition), nil
}

// Relationship returns the definition of the named relationship.
// Both participants must exist in the source.
func (r *Resolver) Relationship(ctx context.Context, name string) (*schema.RelationshipDefinition, error) {
	if def, ok := r.relationships.Get(name); ok {
		return def, nil
	}

	v, err, _ := r.group.Do(relationshipKeyPrefix+name, func() (interface{}, error) {
		if def, ok := r.relationships.Get(name); ok {
			return def, nil
		}

		raw, err := r.loadShared(ctx, relationshipKeyPrefix+name, func() (map[string]interface{}, error) {
			return r.source.RelationshipMetadata(ctx, name)
		})
		if err != nil {
			return nil, r.notFound(err, "relationship", name)
		}

		def, err := r.buildRelationship(ctx, name, raw)
		if err != nil {
			return nil, err
		}

		r.relationships.Set(name, def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.RelationshipDefinition), nil
}

// All resolves every entity and relationship in the source into a validated registry
func (r *Resolver) All(ctx context.Context) (*schema.Registry, error) {
	registry := schema.NewRegistry()

	entityNames, err := r.source.EntityNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	for _, name := range entityNames {
		def, err := r.Entity(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(def); err != nil {
			return nil, err
		}
	}

	relNames, err := r.source.RelationshipNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	for _, name := range relNames {
		def, err := r.Relationship(ctx, name)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterRelationship(def); err != nil {
			return nil, err
		}
	}

	if err := registry.ValidateAll(); err != nil {
		return nil, err
	}
	return registry, nil
}

// Invalidate drops the cached definitions of one entity or relationship name
func (r *Resolver) Invalidate(ctx context.Context, name string) error {
	r.entities.Remove(name)
	r.relationships.Remove(name)

	if r.shared == nil {
		return nil
	}
	if err := r.shared.Delete(ctx, entityKeyPrefix+name); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", name, err)
	}
	if err := r.shared.Delete(ctx, relationshipKeyPrefix+name); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", name, err)
	}
	return nil
}

// InvalidateAll drops every cached definition
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	r.entities.Clear()
	r.relationships.Clear()

	if r.shared == nil {
		return nil
	}
	if err := r.shared.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear metadata cache: %w", err)
	}
	return nil
}

// loadEntity returns the entity metadata merged over the core fields
func (r *Resolver) loadEntity(ctx context.Context, name string) (map[string]interface{}, error) {
	raw, err := r.loadShared(ctx, entityKeyPrefix+name, func() (map[string]interface{}, error) {
		own, err := r.source.EntityMetadata(ctx, name)
		if err != nil {
			return nil, err
		}

		declared, _ := asMap(own["fields"])
		if len(declared) == 0 {
			return nil, ormerr.Structuralf("entity %s: no fields defined in metadata", name)
		}

		base := map[string]interface{}{"fields": schema.CoreFieldMetadata()}
		return Merge(base, own), nil
	})
	if err != nil {
		return nil, r.notFound(err, "entity", name)
	}
	return raw, nil
}

func (r *Resolver) loadShared(ctx context.Context, key string, load func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if r.shared != nil {
		var cached map[string]interface{}
		err := cache.GetValue(ctx, r.shared, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !cache.IsCacheMiss(err) {
			r.logger.Warn("metadata cache read failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	raw, err := load()
	if err != nil {
		return nil, err
	}

	if r.shared != nil {
		if err := cache.SetValue(ctx, r.shared, key, raw, 0); err != nil {
			r.logger.Warn("metadata cache write failed",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return raw, nil
}

func (r *Resolver) notFound(err error, kind, name string) error {
	if errors.Is(err, ErrNotFound) {
		return ormerr.Structuralf("unknown %s %s: %w", kind, name, err)
	}
	return err
}

func (r *Resolver) buildEntity(ctx context.Context, name string, raw map[string]interface{}) (*schema.EntityDefinition, error) {
	def := &schema.EntityDefinition{}
	if err := decode(raw, def); err != nil {
		return nil, ormerr.Structuralf("entity %s: invalid metadata: %w", name, err)
	}
	if def.Name == "" {
		def.Name = name
	}

	for fieldName, field := range def.Fields {
		if field == nil {
			delete(def.Fields, fieldName)
			continue
		}
		if field.Name == "" {
			field.Name = fieldName
		}
		r.resolveFieldType(name, field)
	}

	if err := r.validate.Struct(def); err != nil {
		return nil, ormerr.Structuralf("entity %s: invalid metadata: %w", name, err)
	}

	if err := schema.ValidateStorageName(def.TableName()); err != nil {
		return nil, ormerr.Structuralf("entity %s: invalid table: %w", name, err)
	}
	for _, field := range def.PersistedFields() {
		if err := schema.ValidateStorageName(field.Name); err != nil {
			return nil, ormerr.Structuralf("entity %s: invalid field: %w", name, err)
		}
	}

	if err := r.injectForeignKeys(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

// resolveFieldType parses the declared type, falling back to Text for unknown types
func (r *Resolver) resolveFieldType(entityName string, field *schema.FieldDefinition) {
	fieldType, err := schema.ParseFieldType(field.TypeName)
	if err != nil {
		r.logger.Warn("unknown field type, using Text",
			zap.String("entity", entityName),
			zap.String("field", field.Name),
			zap.String("type", field.TypeName),
		)
		fieldType = schema.TypeText
		field.TypeName = fieldType.String()
	}
	field.Type = fieldType
}

// injectForeignKeys adds the foreign key field for each OneToOne/OneToMany relationship in which
// the entity is the B side and the field is not already declared
func (r *Resolver) injectForeignKeys(ctx context.Context, def *schema.EntityDefinition) error {
	for _, relName := range def.Relationships {
		rel, err := r.Relationship(ctx, relName)
		if err != nil {
			return fmt.Errorf("entity %s: %w", def.Name, err)
		}
		if rel.Type == schema.ManyToMany || rel.EntityB != def.Name {
			continue
		}

		column := rel.ForeignKeyColumn()
		if def.HasField(column) {
			continue
		}
		def.Fields[column] = &schema.FieldDefinition{
			Name:          column,
			TypeName:      schema.TypeRelatedRecord.String(),
			Type:          schema.TypeRelatedRecord,
			Label:         rel.EntityA,
			Nullable:      true,
			RelatedEntity: rel.EntityA,
		}
	}
	return nil
}

func (r *Resolver) buildRelationship(ctx context.Context, name string, raw map[string]interface{}) (*schema.RelationshipDefinition, error) {
	def := &schema.RelationshipDefinition{}
	if err := decode(raw, def); err != nil {
		return nil, ormerr.Structuralf("relationship %s: invalid metadata: %w", name, err)
	}
	if def.Name == "" {
		def.Name = name
	}
	if err := r.validate.Struct(def); err != nil {
		return nil, ormerr.Structuralf("relationship %s: invalid metadata: %w", name, err)
	}
	if err := def.Normalize(); err != nil {
		return nil, ormerr.Structuralf("relationship %s: %w", name, err)
	}

	for _, field := range def.SortedAdditionalFields() {
		r.resolveFieldType(name, field)
	}
	if err := validateRelationshipNames(def); err != nil {
		return nil, ormerr.Structuralf("relationship %s: %w", name, err)
	}

	known, err := r.source.EntityNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	sort.Strings(known)
	for _, participant := range []string{def.EntityA, def.EntityB} {
		i := sort.SearchStrings(known, participant)
		if i == len(known) || known[i] != participant {
			return nil, ormerr.Structuralf("relationship %s references unknown entity %s", name, participant)
		}
	}

	return def, nil
}

func validateRelationshipNames(def *schema.RelationshipDefinition) error {
	if def.Type != schema.ManyToMany {
		if err := schema.ValidateStorageName(def.ForeignKeyColumn()); err != nil {
			return fmt.Errorf("invalid foreign key: %w", err)
		}
		return nil
	}
	if err := schema.ValidateStorageName(def.JoinTableName()); err != nil {
		return fmt.Errorf("invalid join table: %w", err)
	}
	for _, field := range def.SortedAdditionalFields() {
		if err := schema.ValidateStorageName(field.Name); err != nil {
			return fmt.Errorf("invalid additional field: %w", err)
		}
	}
	return nil
}

func decode(input map[string]interface{}, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}
