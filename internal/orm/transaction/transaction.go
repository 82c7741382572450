// Package transaction runs units of work inside database transactions.
//
// The active transaction travels in the context: operations that receive a context from
// WithTransaction join it, and a nested WithTransaction becomes a savepoint.
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrNestedTransactionNotSupported is returned when nesting is requested without a transaction
	ErrNestedTransactionNotSupported = errors.New("nested transactions require an existing transaction")
	// ErrFinished is returned when committing a transaction that already ended
	ErrFinished = errors.New("transaction already finished")
)

// savepointCounter provides unique savepoint names across all transactions
var savepointCounter atomic.Uint64

// Executor is the statement interface shared by *sql.DB, *sql.Tx and Transaction
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// IsolationLevel represents the transaction isolation level
type IsolationLevel int

const (
	// ReadCommitted prevents dirty reads (PostgreSQL default)
	ReadCommitted IsolationLevel = iota
	// RepeatableRead prevents non-repeatable reads
	RepeatableRead
	// Serializable provides full isolation
	Serializable
)

// String returns the string representation of the isolation level
func (l IsolationLevel) String() string {
	switch l {
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	default:
		return "READ COMMITTED"
	}
}

// ToSQLOptions converts IsolationLevel to sql.TxOptions
func (l IsolationLevel) ToSQLOptions() *sql.TxOptions {
	switch l {
	case RepeatableRead:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead}
	case Serializable:
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
}

// Transaction is a database transaction, or a savepoint inside one
type Transaction struct {
	tx            *sql.Tx
	level         int // 0 = top-level, 1+ = savepoint
	savepointName string
	finished      atomic.Bool
}

// Manager starts transactions on a database
type Manager struct {
	db *sql.DB
}

// NewManager creates a new transaction manager
func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

// DB returns the managed database
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Begin starts a new top-level transaction
func (m *Manager) Begin(ctx context.Context, level IsolationLevel) (*Transaction, error) {
	tx, err := m.db.BeginTx(ctx, level.ToSQLOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// WithTransaction runs fn in a transaction carried by the context passed to fn.
// When ctx already carries a transaction, fn runs inside a savepoint of it.
// The transaction commits when fn returns nil and rolls back otherwise.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.WithTransactionIsolation(ctx, ReadCommitted, fn)
}

// WithTransactionIsolation is WithTransaction with an explicit isolation level for new transactions
func (m *Manager) WithTransactionIsolation(ctx context.Context, level IsolationLevel, fn func(ctx context.Context) error) error {
	var (
		tx  *Transaction
		err error
	)
	if parent, ok := FromContext(ctx); ok {
		tx, err = parent.BeginNested(ctx)
	} else {
		tx, err = m.Begin(ctx, level)
	}
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(WithContext(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}

// Level returns the nesting level of the transaction
func (t *Transaction) Level() int {
	return t.level
}

// Tx returns the underlying sql.Tx
func (t *Transaction) Tx() *sql.Tx {
	return t.tx
}

// Commit commits the transaction or releases the savepoint
func (t *Transaction) Commit(ctx context.Context) error {
	if !t.finished.CompareAndSwap(false, true) {
		return ErrFinished
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
		return nil
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction or to the savepoint. Rolling back twice is a no-op.
func (t *Transaction) Rollback(ctx context.Context) error {
	if !t.finished.CompareAndSwap(false, true) {
		return nil
	}

	if t.level > 0 {
		if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.savepointName); err != nil {
			return fmt.Errorf("failed to rollback to savepoint: %w", err)
		}
		return nil
	}

	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// BeginNested creates a savepoint inside the transaction
func (t *Transaction) BeginNested(ctx context.Context) (*Transaction, error) {
	if t.tx == nil {
		return nil, ErrNestedTransactionNotSupported
	}

	name := fmt.Sprintf("sp_%d_%d", savepointCounter.Add(1), t.level+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	return &Transaction{
		tx:            t.tx,
		level:         t.level + 1,
		savepointName: name,
	}, nil
}

// ExecContext executes a statement that returns no rows
func (t *Transaction) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (t *Transaction) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row
func (t *Transaction) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}
