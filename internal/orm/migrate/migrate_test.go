package migrate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/codegen"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormtest"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

const lockQuery = "SELECT pg_advisory_xact_lock($1)"

func target(t *testing.T) *Graph {
	t.Helper()

	reg, err := ormtest.Resolver(nil).All(context.Background())
	require.NoError(t, err)
	graph, err := TargetGraph(reg, nil)
	require.NoError(t, err)
	return graph
}

func position(g *Graph, table string) int {
	for i, t := range g.Tables {
		if t.Name == table {
			return i
		}
	}
	return -1
}

// informationSchemaType reverses codegen.NormalizeType
func informationSchemaType(columnType string) (string, driver.Value) {
	var n int64
	if _, err := fmt.Sscanf(columnType, "CHAR(%d)", &n); err == nil {
		return "character", n
	}
	if _, err := fmt.Sscanf(columnType, "VARCHAR(%d)", &n); err == nil {
		return "character varying", n
	}
	if columnType == codegen.TypeTimestamp {
		return "timestamp without time zone", nil
	}
	return strings.ToLower(columnType), nil
}

// expectLiveSchema answers the introspection queries with the tables of live
func expectLiveSchema(mock sqlmock.Sqlmock, live *Graph) {
	columns := sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "character_maximum_length", "is_nullable"})
	indexes := sqlmock.NewRows([]string{"tablename", "indexname", "indexdef"})
	if live != nil {
		for _, table := range live.Tables {
			for _, col := range table.Columns {
				dataType, length := informationSchemaType(col.Type)
				nullable := "NO"
				if col.Nullable {
					nullable = "YES"
				}
				columns.AddRow(table.Name, col.Name, dataType, length, nullable)
			}
			for _, idx := range table.Indexes {
				indexes.AddRow(table.Name, idx.Name, "CREATE INDEX "+idx.Name+" ON public."+table.Name)
			}
		}
	}
	mock.ExpectQuery(columnsQuery).WithArgs("public").WillReturnRows(columns)
	mock.ExpectQuery(indexesQuery).WithArgs("public").WillReturnRows(indexes)
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectLock(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(lockQuery).WithArgs(AdvisoryLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(logTableDDL).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestTargetGraph(t *testing.T) {
	graph := target(t)

	require.Equal(t, 6, graph.Len())
	assert.Less(t, position(graph, "users"), position(graph, "profiles"))
	assert.Less(t, position(graph, "users"), position(graph, "movies"))
	assert.Less(t, position(graph, "movies"), position(graph, "movie_quotes"))
	assert.Equal(t, 5, position(graph, "rel_movie_genre"), "join tables follow entity tables")

	profiles, _ := graph.Table("profiles")
	fk, ok := profiles.Column("user_id")
	require.True(t, ok, "OneToOne foreign key lives on the B side")
	assert.Equal(t, codegen.TypeGUID, fk.Type)

	movies, _ := graph.Table("movies")
	_, ok = movies.Column("poster_hint")
	assert.False(t, ok, "non-persisted fields have no column")
	assert.True(t, movies.HasIndex("idx_movies_tmdb_id_unique"))

	join, _ := graph.Table("rel_movie_genre")
	assert.True(t, join.HasIndex("idx_rel_movie_genre_pair_unique"))
	_, ok = join.Column("assigned_at")
	assert.True(t, ok)
}

func TestTargetGraph_Empty(t *testing.T) {
	_, err := TargetGraph(schema.NewRegistry(), nil)
	assert.True(t, ormerr.IsStructural(err))
}

func TestGraph_AddReplacesInPlace(t *testing.T) {
	g := NewGraph()
	g.Add(&TableDefinition{Name: "a"})
	g.Add(&TableDefinition{Name: "b"})
	g.Add(&TableDefinition{Name: "a", Columns: []codegen.Column{{Name: "id"}}})

	require.Equal(t, 2, g.Len())
	assert.Equal(t, "a", g.Tables[0].Name)
	_, ok := g.Tables[0].Column("id")
	assert.True(t, ok)
}

func TestDiff_EmptyDatabaseCreatesEverything(t *testing.T) {
	want := target(t)
	changes := Diff(NewGraph(), want)

	var creates, indexes int
	for _, c := range changes {
		switch c.Type {
		case ChangeCreateTable:
			creates++
		case ChangeCreateIndex:
			indexes++
		default:
			t.Errorf("unexpected change %s", c)
		}
	}
	assert.Equal(t, want.Len(), creates)
	assert.Positive(t, indexes)
}

func TestDiff_UnchangedSchemaIsEmpty(t *testing.T) {
	want := target(t)
	assert.Empty(t, Diff(want, want))
}

func TestDiff_ColumnChanges(t *testing.T) {
	want := &TableDefinition{
		Name: "genres",
		Columns: []codegen.Column{
			{Name: "id", Type: "CHAR(36)", PrimaryKey: true},
			{Name: "name", Type: "VARCHAR(64)"},
			{Name: "slug", Type: "VARCHAR(255)", Nullable: true},
			{Name: "rank", Type: "INTEGER"},
		},
		Indexes: []codegen.Index{{Name: "idx_genres_slug", Table: "genres", Columns: []string{"slug"}}},
	}
	have := &TableDefinition{
		Name: "genres",
		Columns: []codegen.Column{
			{Name: "id", Type: "CHAR(36)"},
			{Name: "name", Type: "VARCHAR(32)", Nullable: true},
			{Name: "legacy_code", Type: "TEXT", Nullable: true},
		},
	}
	current, target := NewGraph(), NewGraph()
	current.Add(have)
	target.Add(want)

	changes := Diff(current, target)
	var got []string
	for _, c := range changes {
		got = append(got, c.Type.String()+":"+c.Column.Name+c.Index.Name)
	}
	assert.Equal(t, []string{
		"alter_column_type:name",
		"alter_nullability:name",
		"add_column:slug",
		"add_column:rank",
		"orphan_column:legacy_code",
		"create_index:idx_genres_slug",
	}, got)

	assert.Equal(t, "VARCHAR(32)", changes[0].OldValue)
	assert.True(t, changes[1].Breaking, "setting NOT NULL may fail on existing rows")
	assert.False(t, changes[2].Breaking)
	assert.True(t, changes[3].Breaking, "NOT NULL column without default")
	assert.True(t, changes[4].IsWarning())
	assert.Contains(t, changes[4].String(), "genres.legacy_code")
}

func TestGenerator_OrdersStatementsByPhase(t *testing.T) {
	gen := NewGenerator()
	table := &TableDefinition{Name: "tags", Columns: []codegen.Column{{Name: "id", Type: "CHAR(36)", PrimaryKey: true}}}

	statements, err := gen.Statements([]SchemaChange{
		{Type: ChangeCreateIndex, Table: "genres", Index: codegen.Index{Name: "idx_genres_slug", Table: "genres", Columns: []string{"slug"}}},
		{Type: ChangeOrphanColumn, Table: "genres", Column: codegen.Column{Name: "legacy"}},
		{Type: ChangeAlterNullability, Table: "genres", Column: codegen.Column{Name: "name"}},
		{Type: ChangeAddColumn, Table: "genres", Column: codegen.Column{Name: "slug", Type: "VARCHAR(255)", Nullable: true}},
		{Type: ChangeCreateTable, Table: "tags", Definition: table},
	})
	require.NoError(t, err)

	require.Len(t, statements, 4, "warnings produce no statement")
	assert.True(t, strings.HasPrefix(statements[0], `CREATE TABLE IF NOT EXISTS "tags"`))
	assert.Equal(t, `ALTER TABLE "genres" ADD COLUMN IF NOT EXISTS "slug" VARCHAR(255) NULL;`, statements[1])
	assert.Equal(t, `ALTER TABLE "genres" ALTER COLUMN "name" SET NOT NULL;`, statements[2])
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_genres_slug" ON "genres" ("slug");`, statements[3])
}

func TestGenerator_CreateTableWithoutDefinition(t *testing.T) {
	_, err := NewGenerator().Statements([]SchemaChange{{Type: ChangeCreateTable, Table: "tags"}})
	assert.Error(t, err)
}

func TestIntrospect_NormalizesTypes(t *testing.T) {
	db, mock := newMock(t)

	columns := sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "character_maximum_length", "is_nullable"}).
		AddRow("genres", "id", "character", int64(36), "NO").
		AddRow("genres", "name", "character varying", int64(64), "NO").
		AddRow("genres", "created_at", "timestamp without time zone", nil, "YES")
	indexes := sqlmock.NewRows([]string{"tablename", "indexname", "indexdef"}).
		AddRow("genres", "genres_pkey", "CREATE UNIQUE INDEX genres_pkey ON public.genres USING btree (id)").
		AddRow("other", "other_pkey", "CREATE UNIQUE INDEX other_pkey ON public.other USING btree (id)")
	mock.ExpectQuery(columnsQuery).WithArgs("catalog").WillReturnRows(columns)
	mock.ExpectQuery(indexesQuery).WithArgs("catalog").WillReturnRows(indexes)

	graph, err := NewPostgresIntrospector("catalog").Introspect(context.Background(), db)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Equal(t, 1, graph.Len(), "indexes of tables without columns are ignored")
	genres, _ := graph.Table("genres")
	assert.Equal(t, []codegen.Column{
		{Name: "id", Type: "CHAR(36)"},
		{Name: "name", Type: "VARCHAR(64)"},
		{Name: "created_at", Type: "TIMESTAMP", Nullable: true},
	}, genres.Columns)
	require.Len(t, genres.Indexes, 1)
	assert.True(t, genres.Indexes[0].Unique)
}

func TestRunner_ApplyCreatesSchema(t *testing.T) {
	db, mock := newMock(t)
	want := target(t)

	expected, err := NewGenerator().Plan(NewGraph(), want)
	require.NoError(t, err)

	expectLock(mock)
	expectLiveSchema(mock, nil)
	for _, stmt := range expected.Statements {
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO "+LogTable+" (applied_at, statement_count, checksum, statements)\nVALUES ($1, $2, $3, $4)").
		WithArgs(sqlmock.AnyArg(), int64(len(expected.Statements)), Checksum(expected.Statements), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	plan, err := NewRunner(db, nil, nil).Apply(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, expected.Statements, plan.Statements)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_SecondApplyIsEmpty(t *testing.T) {
	db, mock := newMock(t)
	want := target(t)

	expectLock(mock)
	expectLiveSchema(mock, want)
	mock.ExpectCommit()

	plan, err := NewRunner(db, nil, nil).Apply(context.Background(), want)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Empty(t, plan.Changes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_StatementFailureAbortsBatch(t *testing.T) {
	db, mock := newMock(t)
	want := target(t)

	expected, err := NewGenerator().Plan(NewGraph(), want)
	require.NoError(t, err)
	driverErr := errors.New(`relation "users" already exists`)

	expectLock(mock)
	expectLiveSchema(mock, nil)
	mock.ExpectExec(expected.Statements[0]).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(expected.Statements[1]).WillReturnError(driverErr)
	mock.ExpectRollback()

	_, err = NewRunner(db, nil, nil).Apply(context.Background(), want)
	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 1, stmtErr.Index)
	assert.Equal(t, expected.Statements[1], stmtErr.Statement)
	assert.ErrorIs(t, err, driverErr)
	assert.Contains(t, err.Error(), "schema statement 2 failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_LockFailure(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(lockQuery).WithArgs(AdvisoryLockKey).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, err := NewRunner(db, nil, nil).Apply(context.Background(), target(t))
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunner_PlanWarnsAboutOrphans(t *testing.T) {
	db, mock := newMock(t)
	want := target(t)

	live := NewGraph()
	for _, table := range want.Tables {
		copied := *table
		if table.Name == "genres" {
			copied.Columns = append(append([]codegen.Column(nil), table.Columns...),
				codegen.Column{Name: "legacy_code", Type: "TEXT", Nullable: true})
		}
		live.Add(&copied)
	}
	expectLiveSchema(mock, live)

	core, logs := observer.New(zap.WarnLevel)
	plan, err := NewRunner(db, nil, zap.New(core)).Plan(context.Background(), want)
	require.NoError(t, err)

	assert.True(t, plan.Empty())
	require.Len(t, plan.Warnings(), 1)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "orphan column left in place", entry.Message)
	assert.Equal(t, "legacy_code", entry.ContextMap()["column"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTracker_RecordAndHistory(t *testing.T) {
	db, mock := newMock(t)
	tracker := NewTracker(db)
	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	statements := []string{"ALTER TABLE tags ADD COLUMN label TEXT;"}

	mock.ExpectExec("INSERT INTO "+LogTable+" (applied_at, statement_count, checksum, statements)\nVALUES ($1, $2, $3, $4)").
		WithArgs(at, int64(1), Checksum(statements), `["ALTER TABLE tags ADD COLUMN label TEXT;"]`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, tracker.Record(context.Background(), statements, at))

	mock.ExpectQuery("SELECT id, applied_at, checksum, statements FROM " + LogTable + "\nORDER BY id DESC\nLIMIT $1").
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at", "checksum", "statements"}).
			AddRow(int64(2), at, "abc", `["ALTER TABLE x ADD COLUMN y TEXT;"]`).
			AddRow(int64(1), at, Checksum(statements), `[]`))
	runs, err := tracker.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].ID)
	assert.Equal(t, []string{"ALTER TABLE x ADD COLUMN y TEXT;"}, runs[0].Statements)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTracker_LastWithoutRuns(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("SELECT id, applied_at, checksum, statements FROM " + LogTable + "\nORDER BY id DESC\nLIMIT 1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "applied_at", "checksum", "statements"}))

	run, err := NewTracker(db).Last(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestChecksum_IsStable(t *testing.T) {
	a := Checksum([]string{"CREATE TABLE a ();", "CREATE TABLE b ();"})
	assert.Len(t, a, 64)
	assert.Equal(t, a, Checksum([]string{"CREATE TABLE a ();", "CREATE TABLE b ();"}))
	assert.NotEqual(t, a, Checksum([]string{"CREATE TABLE b ();", "CREATE TABLE a ();"}))
}
