package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/transaction"
)

// AdvisoryLockKey serializes schema application across processes sharing a database
const AdvisoryLockKey int64 = 0x67726176697479

// StatementError reports the statement that aborted a batch
type StatementError struct {
	Index     int
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("schema statement %d failed: %v\n%s", e.Index+1, e.Err, e.Statement)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Runner plans and applies schema changes
type Runner struct {
	db           *sql.DB
	tx           *transaction.Manager
	introspector Introspector
	generator    *Generator
	tracker      *Tracker
	logger       *zap.Logger
	now          func() time.Time
}

// NewRunner creates a runner over db. A nil introspector reads the "public" schema.
func NewRunner(db *sql.DB, introspector Introspector, logger *zap.Logger) *Runner {
	if introspector == nil {
		introspector = NewPostgresIntrospector("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		db:           db,
		tx:           transaction.NewManager(db),
		introspector: introspector,
		generator:    NewGenerator(),
		tracker:      NewTracker(db),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Tracker returns the synthesis history tracker
func (r *Runner) Tracker() *Tracker {
	return r.tracker
}

// Plan introspects the live schema and returns the changes needed to reach target.
// Nothing is executed.
func (r *Runner) Plan(ctx context.Context, target *Graph) (*Plan, error) {
	current, err := r.introspector.Introspect(ctx, r.db)
	if err != nil {
		return nil, err
	}
	plan, err := r.generator.Plan(current, target)
	if err != nil {
		return nil, err
	}
	r.warn(plan)
	return plan, nil
}

// Apply brings the live schema to target in one transaction holding the advisory lock.
// The live schema is introspected after the lock is taken. The first failing statement rolls
// back the whole batch and is returned as a *StatementError.
func (r *Runner) Apply(ctx context.Context, target *Graph) (*Plan, error) {
	var plan *Plan
	start := time.Now()

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		exec := transaction.ExecutorFrom(ctx, r.db)
		if _, err := exec.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", AdvisoryLockKey); err != nil {
			return fmt.Errorf("failed to acquire schema lock: %w", err)
		}
		if err := r.tracker.Initialize(ctx); err != nil {
			return err
		}

		current, err := r.introspector.Introspect(ctx, exec)
		if err != nil {
			return err
		}
		plan, err = r.generator.Plan(current, target)
		if err != nil {
			return err
		}
		r.warn(plan)
		if plan.Empty() {
			return nil
		}

		for i, stmt := range plan.Statements {
			if _, err := exec.ExecContext(ctx, stmt); err != nil {
				return &StatementError{Index: i, Statement: stmt, Err: err}
			}
		}
		return r.tracker.Record(ctx, plan.Statements, r.now())
	})
	if err != nil {
		r.logger.Error("schema synthesis failed", zap.Error(err))
		return nil, err
	}

	if plan.Empty() {
		r.logger.Info("schema is up to date")
	} else {
		r.logger.Info("applied schema changes",
			zap.Int("statements", len(plan.Statements)),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return plan, nil
}

func (r *Runner) warn(plan *Plan) {
	for _, w := range plan.Warnings() {
		r.logger.Warn("orphan column left in place",
			zap.String("table", w.Table),
			zap.String("column", w.Column.Name),
		)
	}
}
