package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/entity"
)

// Executor runs the hooks of a registry
type Executor struct {
	registry *Registry
	queue    *AsyncQueue
	logger   *zap.Logger
}

// NewExecutor creates an executor. A nil registry is replaced by an empty one; without a queue
// asynchronous hooks are dropped with a warning.
func NewExecutor(registry *Registry, queue *AsyncQueue, logger *zap.Logger) *Executor {
	if registry == nil {
		registry = NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, queue: queue, logger: logger}
}

// Registry returns the hook registry
func (x *Executor) Registry() *Registry {
	return x.registry
}

// Run executes the synchronous hooks of t for e in order and stops at the first error
func (x *Executor) Run(ctx context.Context, t Type, e *entity.Instance) error {
	for _, fn := range x.registry.Hooks(e.EntityName(), t) {
		if err := fn(ctx, e); err != nil {
			return fmt.Errorf("%s hook on %s failed: %w", t, e.EntityName(), err)
		}
	}
	return nil
}

// Dispatch enqueues the asynchronous hooks of t with a snapshot of e.
// Failures to enqueue are logged and never reach the caller.
func (x *Executor) Dispatch(t Type, e *entity.Instance) {
	hooks := x.registry.AsyncHooks(e.EntityName(), t)
	if len(hooks) == 0 {
		return
	}
	if x.queue == nil {
		x.logger.Warn("async hooks registered without a queue, dropping them",
			zap.String("hook", t.String()),
			zap.String("entity", e.EntityName()),
		)
		return
	}

	for _, fn := range hooks {
		fn := fn
		rec := snapshot(e)
		task := AsyncTask{
			Name: fmt.Sprintf("%s_%s", e.EntityName(), t),
			Fn: func(ctx context.Context) error {
				return fn(ctx, rec)
			},
		}
		if err := x.queue.Enqueue(task); err != nil {
			x.logger.Warn("failed to enqueue async hook",
				zap.String("hook", t.String()),
				zap.String("entity", e.EntityName()),
				zap.String("id", e.ID()),
				zap.Error(err),
			)
		}
	}
}

// snapshot copies the instance values so a hook cannot observe later mutations
func snapshot(e *entity.Instance) Record {
	values := e.Fields().Values()
	copied := make(map[string]interface{}, len(values))
	for k, v := range values {
		copied[k] = copyValue(v)
	}
	return Record{Entity: e.EntityName(), ID: e.ID(), Values: copied}
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []byte:
		return append([]byte(nil), val...)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[k] = copyValue(item)
		}
		return m
	default:
		return v
	}
}
