package transaction

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory database with a single connection so every statement
// sees the same schema
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE movies (id TEXT PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })
	return db
}

func countMovies(t *testing.T, ctx context.Context, exec Executor) int {
	t.Helper()
	var n int
	require.NoError(t, exec.QueryRowContext(ctx, "SELECT COUNT(*) FROM movies").Scan(&n))
	return n
}

var errBoom = errors.New("boom")

func TestWithTransaction_Commit(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	err := mgr.WithTransaction(ctx, func(ctx context.Context) error {
		tx, ok := FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, 0, tx.Level())

		_, err := ExecutorFrom(ctx, db).ExecContext(ctx, "INSERT INTO movies (id, name) VALUES (?, ?)", "m-1", "Alien")
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countMovies(t, ctx, db))
}

func TestWithTransaction_RollbackOnError(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	err := mgr.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := ExecutorFrom(ctx, db).ExecContext(ctx, "INSERT INTO movies (id, name) VALUES (?, ?)", "m-1", "Alien"); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	assert.Equal(t, 0, countMovies(t, ctx, db))
}

func TestWithTransaction_RollbackOnPanic(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = mgr.WithTransaction(ctx, func(ctx context.Context) error {
			_, _ = ExecutorFrom(ctx, db).ExecContext(ctx, "INSERT INTO movies (id, name) VALUES (?, ?)", "m-1", "Alien")
			panic("unexpected")
		})
	})

	assert.Equal(t, 0, countMovies(t, ctx, db))
}

func TestWithTransaction_NestedUsesSavepoint(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	err := mgr.WithTransaction(ctx, func(ctx context.Context) error {
		exec := ExecutorFrom(ctx, db)
		if _, err := exec.ExecContext(ctx, "INSERT INTO movies (id, name) VALUES (?, ?)", "m-1", "Alien"); err != nil {
			return err
		}

		nestedErr := mgr.WithTransaction(ctx, func(ctx context.Context) error {
			tx, _ := FromContext(ctx)
			assert.Equal(t, 1, tx.Level())
			if _, err := ExecutorFrom(ctx, db).ExecContext(ctx, "INSERT INTO movies (id, name) VALUES (?, ?)", "m-2", "Aliens"); err != nil {
				return err
			}
			return errBoom
		})
		assert.ErrorIs(t, nestedErr, errBoom)

		assert.Equal(t, 1, countMovies(t, ctx, exec))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countMovies(t, ctx, db))
}

func TestTransaction_FinishedState(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db)
	ctx := context.Background()

	tx, err := mgr.Begin(ctx, Serializable)
	require.NoError(t, err)

	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), ErrFinished)
	assert.NoError(t, tx.Rollback(ctx))
}

func TestBeginNested_RequiresTransaction(t *testing.T) {
	_, err := (&Transaction{}).BeginNested(context.Background())
	assert.ErrorIs(t, err, ErrNestedTransactionNotSupported)
}

func TestExecutorFrom_Fallback(t *testing.T) {
	db := setupTestDB(t)
	assert.Equal(t, Executor(db), ExecutorFrom(context.Background(), db))
}

func TestIsolationLevel(t *testing.T) {
	assert.Equal(t, "SERIALIZABLE", Serializable.String())
	assert.Equal(t, sql.LevelRepeatableRead, RepeatableRead.ToSQLOptions().Isolation)
	assert.Equal(t, sql.LevelReadCommitted, ReadCommitted.ToSQLOptions().Isolation)
}
