package fields

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

type constructor func(def *schema.FieldDefinition) (*Field, error)

// Registry builds field sets from entity definitions
type Registry struct {
	constructors map[schema.FieldType]constructor
	logger       *zap.Logger
}

// NewRegistry creates a registry covering every field type
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		logger: logger,
		constructors: map[schema.FieldType]constructor{
			schema.TypeID:            simple(coerceID, nil),
			schema.TypeText:          simple(coerceString, nil),
			schema.TypeBigText:       simple(coerceString, nil),
			schema.TypeEmail:         simple(coerceString, nil),
			schema.TypeImage:         simple(coerceString, nil),
			schema.TypeVideo:         simple(coerceString, nil),
			schema.TypePassword:      simple(coercePassword, nil),
			schema.TypeInteger:       simple(coerceInteger, nil),
			schema.TypeFloat:         simple(coerceFloat, nil),
			schema.TypeBoolean:       simple(coerceBoolean, nil),
			schema.TypeDate:          simple(coerceDate, storeDate),
			schema.TypeDateTime:      simple(coerceDateTime, nil),
			schema.TypeEnum:          withOptions(coerceString, nil),
			schema.TypeMultiEnum:     withOptions(coerceMultiEnum, storeMultiEnum),
			schema.TypeRelatedRecord: relatedRecord,
		},
	}
}

func simple(coerce coerceFunc, store storeFunc) constructor {
	return func(def *schema.FieldDefinition) (*Field, error) {
		return &Field{def: def, coerce: coerce, store: store}, nil
	}
}

func withOptions(coerce coerceFunc, store storeFunc) constructor {
	return func(def *schema.FieldDefinition) (*Field, error) {
		if len(def.Options) == 0 {
			return nil, fmt.Errorf("%s field %s declares no options", def.Type, def.Name)
		}
		return &Field{def: def, coerce: coerce, store: store}, nil
	}
}

func relatedRecord(def *schema.FieldDefinition) (*Field, error) {
	if def.RelatedEntity == "" {
		return nil, fmt.Errorf("related record field %s declares no related entity", def.Name)
	}
	return &Field{def: def, coerce: coerceID}, nil
}

// NewField constructs a single field for def
func (r *Registry) NewField(def *schema.FieldDefinition) (*Field, error) {
	build, ok := r.constructors[def.Type]
	if !ok {
		return nil, fmt.Errorf("no field kind for type %s", def.Type)
	}
	return build(def)
}

// Build instantiates one field per definition of the entity, applying default values.
// Fields that fail construction are logged and omitted.
func (r *Registry) Build(entity *schema.EntityDefinition) *Set {
	set := newSet()

	for _, name := range entity.FieldNames() {
		def := entity.Fields[name]

		field, err := r.NewField(def)
		if err != nil {
			r.logger.Error("failed to construct field, omitting it",
				zap.String("entity", entity.Name),
				zap.String("field", name),
				zap.String("type", def.TypeName),
				zap.Error(err),
			)
			continue
		}

		if def.DefaultValue != nil {
			if err := field.assign(def.DefaultValue, false); err != nil {
				r.logger.Warn("ignoring invalid default value",
					zap.String("entity", entity.Name),
					zap.String("field", name),
					zap.Any("default", def.DefaultValue),
					zap.Error(err),
				)
			}
		}

		set.add(field)
	}

	return set
}
