package migrate

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
)

// setupTestDB connects to GRAVITYCAR_TEST_DATABASE_URL and skips when it is unset or unreachable
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("GRAVITYCAR_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GRAVITYCAR_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		t.Skip("Test database not available:", err)
	}
	if err := db.Ping(); err != nil {
		t.Skip("Test database not reachable:", err)
	}
	return db
}

func TestPostgres_ApplyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	want := target(t)

	drop := func() {
		for _, table := range want.Tables {
			_, _ = db.Exec("DROP TABLE IF EXISTS " + codegen.QuoteIdentifier(table.Name) + " CASCADE")
		}
		_, _ = db.Exec("DROP TABLE IF EXISTS " + LogTable)
	}
	drop()
	t.Cleanup(func() {
		drop()
		_ = db.Close()
	})

	runner := NewRunner(db, nil, nil)
	ctx := context.Background()

	first, err := runner.Apply(ctx, want)
	require.NoError(t, err)
	require.False(t, first.Empty())

	second, err := runner.Apply(ctx, want)
	require.NoError(t, err)
	require.True(t, second.Empty(), "unexpected changes: %v", second.Changes)

	runs, err := runner.Tracker().History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, Checksum(first.Statements), runs[0].Checksum)
}
