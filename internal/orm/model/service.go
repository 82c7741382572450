package model

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/crud"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/fields"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/hooks"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/relationships"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/validation"
)

// errInvalid rolls back a save that failed validation
var errInvalid = errors.New("validation failed")

type options struct {
	logger   *zap.Logger
	now      func() time.Time
	hooks    *hooks.Executor
	registry *fields.Registry
}

// Option configures a Service
type Option func(*options)

// WithLogger sets the logger shared by every layer of the service
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the clock used for audit stamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithHooks sets the lifecycle hook executor
func WithHooks(executor *hooks.Executor) Option {
	return func(o *options) {
		o.hooks = executor
	}
}

// WithFieldRegistry sets the field registry used to build instances
func WithFieldRegistry(registry *fields.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// Service is the entry point for entity CRUD
type Service struct {
	factory   *Factory
	gateway   *crud.Gateway
	engine    *relationships.Engine
	validator *validation.Engine
	tx        *transaction.Manager
	hooks     *hooks.Executor
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires the gateway, relationship engine, validation and transactions on db
func NewService(db *sql.DB, resolver relationships.Resolver, opts ...Option) *Service {
	o := &options{logger: zap.NewNop(), now: relationships.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = fields.NewRegistry(o.logger)
	}
	if o.hooks == nil {
		o.hooks = hooks.NewExecutor(nil, nil, o.logger)
	}

	factory := &Factory{resolver: resolver, registry: o.registry}
	engine := relationships.NewEngine(db, resolver,
		relationships.WithLogger(o.logger),
		relationships.WithClock(o.now),
		relationships.WithFieldRegistry(o.registry),
		relationships.WithHydrator(factory.Hydrate),
	)
	factory.engine = engine
	gateway := crud.NewGateway(db, resolver, o.logger)

	return &Service{
		factory:   factory,
		gateway:   gateway,
		engine:    engine,
		validator: validation.NewEngine(gateway, o.logger),
		tx:        transaction.NewManager(db),
		hooks:     o.hooks,
		logger:    o.logger,
		now:       o.now,
	}
}

// Factory returns the instance factory
func (s *Service) Factory() *Factory {
	return s.factory
}

// Validator returns the validation engine, for registering custom rules
func (s *Service) Validator() *validation.Engine {
	return s.validator
}

// Relationships returns the relationship engine
func (s *Service) Relationships() *relationships.Engine {
	return s.engine
}

// New returns a fresh instance of the named entity
func (s *Service) New(ctx context.Context, name string) (*entity.Instance, error) {
	return s.factory.New(ctx, name)
}

// checkRelationships validates the definitions of e's relationships
func (s *Service) checkRelationships(ctx context.Context, e *entity.Instance) error {
	for _, name := range e.Definition().Relationships {
		rel, err := s.engine.Relationship(ctx, name)
		if err != nil {
			return err
		}
		if err := rel.Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// validate stores the outcome on e and returns errInvalid when a rule failed
func (s *Service) validate(ctx context.Context, e *entity.Instance) error {
	if err := s.checkRelationships(ctx, e); err != nil {
		return err
	}
	errs, err := s.validator.Validate(ctx, e)
	if err != nil {
		return err
	}
	if errs.HasErrors() {
		e.SetValidationErrors(errs.Fields)
		return errInvalid
	}
	e.SetValidationErrors(nil)
	return nil
}

func (s *Service) requirePersisted(op string, e *entity.Instance) error {
	if !e.IsPersisted() || e.ID() == "" {
		return ormerr.Structuralf("%s %s: instance is not persisted", op, e.EntityName())
	}
	return nil
}

// requireComplete also rejects instances loaded with a partial field list
func (s *Service) requireComplete(op string, e *entity.Instance) error {
	if err := s.requirePersisted(op, e); err != nil {
		return err
	}
	if e.IsPartial() {
		return ormerr.Structuralf("%s %s %s: %w", op, e.EntityName(), e.ID(), crud.ErrPartialRecord)
	}
	return nil
}

// Create validates and inserts e, generating its id when unset. A validation failure returns
// false with the per-field messages stored on e.
func (s *Service) Create(ctx context.Context, e *entity.Instance) (bool, error) {
	if e.IsPersisted() {
		return false, ormerr.Structuralf("create %s: instance %s is already persisted", e.EntityName(), e.ID())
	}
	if e.ID() == "" {
		if err := e.SetID(uuid.NewString()); err != nil {
			return false, err
		}
	}
	if err := e.StampCreated(entity.ActorFrom(ctx), s.now()); err != nil {
		return false, err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.hooks.Run(ctx, hooks.BeforeCreate, e); err != nil {
			return err
		}
		if err := s.validate(ctx, e); err != nil {
			return err
		}
		if err := s.gateway.Create(ctx, e); err != nil {
			return err
		}
		return s.hooks.Run(ctx, hooks.AfterCreate, e)
	})
	if errors.Is(err, errInvalid) {
		return false, nil
	}
	if err != nil {
		s.logger.Error("failed to create record",
			zap.String("entity", e.EntityName()),
			zap.String("id", e.ID()),
			zap.Error(err),
		)
		return false, err
	}

	s.hooks.Dispatch(hooks.AfterCreate, e)
	return true, nil
}

// Update validates and writes every persisted field of e
func (s *Service) Update(ctx context.Context, e *entity.Instance) (bool, error) {
	if err := s.requireComplete("update", e); err != nil {
		return false, err
	}
	if err := e.StampUpdated(entity.ActorFrom(ctx), s.now()); err != nil {
		return false, err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.hooks.Run(ctx, hooks.BeforeUpdate, e); err != nil {
			return err
		}
		if err := s.validate(ctx, e); err != nil {
			return err
		}
		if err := s.gateway.Update(ctx, e); err != nil {
			return err
		}
		return s.hooks.Run(ctx, hooks.AfterUpdate, e)
	})
	if errors.Is(err, errInvalid) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.hooks.Dispatch(hooks.AfterUpdate, e)
	return true, nil
}

// Delete soft-deletes e after applying the cascade policy of each of its relationships.
// Deleting an already deleted record does nothing.
func (s *Service) Delete(ctx context.Context, e *entity.Instance) error {
	if err := s.requirePersisted("delete", e); err != nil {
		return err
	}
	if e.IsDeleted() {
		return nil
	}
	if err := e.StampDeleted(entity.ActorFrom(ctx), s.now()); err != nil {
		return err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.hooks.Run(ctx, hooks.BeforeDelete, e); err != nil {
			return err
		}
		if err := s.engine.HandleEntityDeletion(ctx, e); err != nil {
			return err
		}
		if err := s.gateway.SoftDelete(ctx, e); err != nil {
			return err
		}
		return s.hooks.Run(ctx, hooks.AfterDelete, e)
	})
	if err != nil {
		if clearErr := e.ClearDeleted(); clearErr != nil {
			return fmt.Errorf("%w (clearing tombstone: %v)", err, clearErr)
		}
		return err
	}

	s.logger.Debug("soft-deleted record", zap.String("entity", e.EntityName()), zap.String("id", e.ID()))
	s.hooks.Dispatch(hooks.AfterDelete, e)
	return nil
}

// HardDelete removes e's row after applying the cascade policy of each of its relationships
func (s *Service) HardDelete(ctx context.Context, e *entity.Instance) error {
	if err := s.requirePersisted("hard delete", e); err != nil {
		return err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.hooks.Run(ctx, hooks.BeforeDelete, e); err != nil {
			return err
		}
		if err := s.engine.HandleEntityDeletion(ctx, e); err != nil {
			return err
		}
		if err := s.gateway.HardDelete(ctx, e); err != nil {
			return err
		}
		return s.hooks.Run(ctx, hooks.AfterDelete, e)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted record", zap.String("entity", e.EntityName()), zap.String("id", e.ID()))
	s.hooks.Dispatch(hooks.AfterDelete, e)
	return nil
}

// Restore clears e's tombstone and reverses the soft-delete cascades stamped with it.
// Other fields are written back unchanged.
func (s *Service) Restore(ctx context.Context, e *entity.Instance) error {
	if err := s.requireComplete("restore", e); err != nil {
		return err
	}
	if !e.IsDeleted() {
		return ormerr.Structuralf("restore %s %s: record is not deleted", e.EntityName(), e.ID())
	}

	v, _ := e.Get(schema.FieldDeletedAt)
	deletedAt, _ := v.(time.Time)
	deletedBy := e.GetString(schema.FieldDeletedBy)
	if err := e.ClearDeleted(); err != nil {
		return err
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.gateway.Update(ctx, e); err != nil {
			return err
		}
		if err := s.engine.RestoreRelations(ctx, e, deletedAt); err != nil {
			return err
		}
		return s.hooks.Run(ctx, hooks.AfterRestore, e)
	})
	if err != nil {
		if stampErr := e.StampDeleted(deletedBy, deletedAt); stampErr != nil {
			return fmt.Errorf("%w (restoring tombstone: %v)", err, stampErr)
		}
		return err
	}

	s.hooks.Dispatch(hooks.AfterRestore, e)
	return nil
}

// Find returns the instances of the named entity matching criteria
func (s *Service) Find(
	ctx context.Context,
	name string,
	criteria map[string]interface{},
	fieldNames []string,
	params crud.Params,
) ([]*entity.Instance, error) {
	def, err := s.factory.resolver.Entity(ctx, name)
	if err != nil {
		return nil, err
	}

	records, err := s.gateway.Find(ctx, def, criteria, fieldNames, params)
	if err != nil {
		return nil, err
	}

	result := make([]*entity.Instance, 0, len(records))
	for _, rec := range records {
		inst, err := s.factory.Hydrate(ctx, def, rec)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, nil
}

// List decodes query-string list parameters (see crud.ParseListQuery) and finds the matching
// instances of the named entity
func (s *Service) List(ctx context.Context, name string, values url.Values) ([]*entity.Instance, error) {
	def, err := s.factory.resolver.Entity(ctx, name)
	if err != nil {
		return nil, err
	}

	lq, err := crud.ParseListQuery(def, values)
	if err != nil {
		return nil, err
	}
	return s.Find(ctx, name, lq.Criteria, lq.Fields, lq.Params)
}

// FindByID returns one instance of the named entity. A missing row is crud.ErrNotFound.
func (s *Service) FindByID(ctx context.Context, name, id string, includeDeleted bool) (*entity.Instance, error) {
	def, err := s.factory.resolver.Entity(ctx, name)
	if err != nil {
		return nil, err
	}

	rec, err := s.gateway.FindByID(ctx, def, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	return s.factory.Hydrate(ctx, def, rec)
}
