package query

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

type mapResolver map[string]*schema.EntityDefinition

func (m mapResolver) Entity(_ context.Context, name string) (*schema.EntityDefinition, error) {
	def, ok := m[name]
	if !ok {
		return nil, errors.New("unknown entity " + name)
	}
	return def, nil
}

func testEntities() mapResolver {
	notPersisted := false
	return mapResolver{
		"User": {
			Name:           "User",
			DisplayColumns: []string{"first_name", "last_name"},
			Fields: map[string]*schema.FieldDefinition{
				"id":         {Name: "id", Type: schema.TypeID},
				"first_name": {Name: "first_name", Type: schema.TypeText},
				"last_name":  {Name: "last_name", Type: schema.TypeText},
			},
		},
		"Movie": {
			Name: "Movie",
			Fields: map[string]*schema.FieldDefinition{
				"id":      {Name: "id", Type: schema.TypeID},
				"name":    {Name: "name", Type: schema.TypeText},
				"tmdb_id": {Name: "tmdb_id", Type: schema.TypeInteger},
			},
		},
		"Award": {
			Name:           "Award",
			DisplayColumns: []string{"year", "title"},
			Fields: map[string]*schema.FieldDefinition{
				"id":    {Name: "id", Type: schema.TypeID},
				"year":  {Name: "year", Type: schema.TypeInteger},
				"title": {Name: "title", Type: schema.TypeText},
			},
		},
		"MovieQuote": {
			Name: "MovieQuote",
			Fields: map[string]*schema.FieldDefinition{
				"id":                      {Name: "id", Type: schema.TypeID},
				"quote":                   {Name: "quote", Type: schema.TypeText},
				"movie_id":                {Name: "movie_id", Type: schema.TypeRelatedRecord, RelatedEntity: "Movie"},
				schema.FieldCreatedBy:     {Name: schema.FieldCreatedBy, Type: schema.TypeRelatedRecord, RelatedEntity: "User"},
				schema.FieldDeletedAt:     {Name: schema.FieldDeletedAt, Type: schema.TypeDateTime},
				schema.FieldCreatedByName: {Name: schema.FieldCreatedByName, Type: schema.TypeText, IsDBField: &notPersisted},
				"award_id":                {Name: "award_id", Type: schema.TypeRelatedRecord, RelatedEntity: "Award"},
				"sequel_id":               {Name: "sequel_id", Type: schema.TypeRelatedRecord, RelatedEntity: "Sequel"},
			},
		},
	}
}

func TestBuilder_SelectAllExcludesTombstones(t *testing.T) {
	entities := testEntities()
	sql, args, plan, err := NewBuilder(entities["Movie"], entities, nil).ToSQL(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT movies.id, movies.name, movies.tmdb_id FROM movies"
	if sql != expected {
		t.Errorf("got %q, want %q", sql, expected)
	}
	if len(args) != 0 || len(plan.Joins) != 0 {
		t.Errorf("unexpected args %v or joins %v", args, plan.Joins)
	}

	sql, _, _, err = NewBuilder(entities["MovieQuote"], entities, nil).Select("quote").ToSQL(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected = "SELECT movie_quotes.quote FROM movie_quotes WHERE movie_quotes.deleted_at IS NULL"
	if sql != expected {
		t.Errorf("got %q, want %q", sql, expected)
	}
}

func TestBuilder_Criteria(t *testing.T) {
	entities := testEntities()
	sql, args, _, err := NewBuilder(entities["MovieQuote"], entities, nil).
		Select("id").
		WhereCriteria(map[string]interface{}{
			"movie_id": []string{"m-1", "m-2"},
			"quote":    "There is no spoon.",
			"id":       nil,
		}).
		OrderBy("quote", "desc").
		Limit(10).
		Offset(20).
		IncludeDeleted(true).
		ToSQL(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT movie_quotes.id FROM movie_quotes WHERE movie_quotes.id IS NULL" +
		" AND movie_quotes.movie_id IN ($1, $2) AND movie_quotes.quote = $3" +
		" ORDER BY movie_quotes.quote DESC LIMIT $4 OFFSET $5"
	if sql != expected {
		t.Errorf("got %q, want %q", sql, expected)
	}
	expectedArgs := []interface{}{"m-1", "m-2", "There is no spoon.", 10, 20}
	if !reflect.DeepEqual(args, expectedArgs) {
		t.Errorf("got args %v, want %v", args, expectedArgs)
	}
}

func TestBuilder_JoinSynthesis(t *testing.T) {
	entities := testEntities()
	sql, _, plan, err := NewBuilder(entities["MovieQuote"], entities, nil).
		Select("quote", "movie_id", schema.FieldCreatedBy, "award_id").
		ToSQL(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT movie_quotes.quote, movie_quotes.movie_id, COALESCE(rel_0.name, '') AS movie_id_display," +
		" movie_quotes.created_by, COALESCE(rel_1.first_name, '') || ' ' || COALESCE(rel_1.last_name, '') AS created_by_display," +
		" movie_quotes.award_id, COALESCE(CAST(rel_2.year AS TEXT), '') || ' ' || COALESCE(rel_2.title, '') AS award_id_display" +
		" FROM movie_quotes" +
		" LEFT JOIN movies AS rel_0 ON movie_quotes.movie_id = rel_0.id" +
		" LEFT JOIN users AS rel_1 ON movie_quotes.created_by = rel_1.id" +
		" LEFT JOIN awards AS rel_2 ON movie_quotes.award_id = rel_2.id" +
		" WHERE movie_quotes.deleted_at IS NULL"
	if sql != expected {
		t.Errorf("got\n%s\nwant\n%s", sql, expected)
	}
	if len(plan.Joins) != 3 || plan.Joins[1].Alias != "rel_1" {
		t.Errorf("unexpected join plan %+v", plan.Joins)
	}
}

func TestBuilder_UnresolvableJoinFallsBackToBareKey(t *testing.T) {
	entities := testEntities()
	core, logs := observer.New(zapcore.WarnLevel)

	sql, _, plan, err := NewBuilder(entities["MovieQuote"], entities, zap.New(core)).
		Select("sequel_id").
		IncludeDeleted(true).
		ToSQL(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sql != "SELECT movie_quotes.sequel_id FROM movie_quotes" {
		t.Errorf("unexpected sql %q", sql)
	}
	if len(plan.Joins) != 0 {
		t.Errorf("expected no joins, got %d", len(plan.Joins))
	}
	if logs.FilterMessage("cannot resolve related entity, selecting bare foreign key").Len() != 1 {
		t.Error("expected a warning for the unresolved join")
	}
}

func TestBuilder_UnknownDisplayColumnsAreDropped(t *testing.T) {
	entities := testEntities()
	entities["Studio"] = &schema.EntityDefinition{
		Name:           "Studio",
		DisplayColumns: []string{"title", "nmae", "title; DROP TABLE studios"},
		Fields: map[string]*schema.FieldDefinition{
			"id":    {Name: "id", Type: schema.TypeID},
			"title": {Name: "title", Type: schema.TypeText},
		},
	}
	entities["Ghost"] = &schema.EntityDefinition{
		Name:           "Ghost",
		DisplayColumns: []string{"nmae"},
		Fields: map[string]*schema.FieldDefinition{
			"id": {Name: "id", Type: schema.TypeID},
		},
	}
	release := &schema.EntityDefinition{
		Name:  "Release",
		Table: "releases",
		Fields: map[string]*schema.FieldDefinition{
			"id":        {Name: "id", Type: schema.TypeID},
			"studio_id": {Name: "studio_id", Type: schema.TypeRelatedRecord, RelatedEntity: "Studio"},
			"ghost_id":  {Name: "ghost_id", Type: schema.TypeRelatedRecord, RelatedEntity: "Ghost"},
		},
	}
	core, logs := observer.New(zapcore.WarnLevel)

	sql, _, plan, err := NewBuilder(release, entities, zap.New(core)).
		Select("studio_id", "ghost_id").
		IncludeDeleted(true).
		ToSQL(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT releases.studio_id, COALESCE(rel_0.title, '') AS studio_id_display, releases.ghost_id" +
		" FROM releases LEFT JOIN studios AS rel_0 ON releases.studio_id = rel_0.id"
	if sql != expected {
		t.Errorf("got\n%s\nwant\n%s", sql, expected)
	}
	if len(plan.Joins) != 1 {
		t.Errorf("expected one join, got %d", len(plan.Joins))
	}

	dropped := logs.FilterMessage("ignoring unknown display columns").All()
	if len(dropped) != 2 {
		t.Fatalf("expected two unknown display column warnings, got %d", len(dropped))
	}
	if got := dropped[0].ContextMap()["columns"]; !reflect.DeepEqual(got, []interface{}{"nmae", "title; DROP TABLE studios"}) {
		t.Errorf("unexpected dropped columns %v", got)
	}
	if logs.FilterMessage("no usable display columns, selecting bare foreign key").Len() != 1 {
		t.Error("expected a bare foreign key warning for Ghost")
	}
}

func TestBuilder_AliasesArePerQuery(t *testing.T) {
	entities := testEntities()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, plan, err := NewBuilder(entities["MovieQuote"], entities, nil).
				Select("movie_id", "award_id").
				ToSQL(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if plan.Joins[0].Alias != "rel_0" || plan.Joins[1].Alias != "rel_1" {
				t.Errorf("aliases leaked between queries: %s, %s", plan.Joins[0].Alias, plan.Joins[1].Alias)
			}
		}()
	}
	wg.Wait()
}

func TestBuilder_StructuralErrors(t *testing.T) {
	entities := testEntities()
	ctx := context.Background()

	_, _, _, err := NewBuilder(entities["Movie"], entities, nil).Select("budget").ToSQL(ctx)
	if !ormerr.IsStructural(err) {
		t.Errorf("expected structural error for unknown selected field, got %v", err)
	}

	_, _, _, err = NewBuilder(entities["Movie"], entities, nil).
		WhereCriteria(map[string]interface{}{"budget": 1}).ToSQL(ctx)
	if !ormerr.IsStructural(err) {
		t.Errorf("expected structural error for unknown criteria field, got %v", err)
	}

	_, _, _, err = NewBuilder(entities["MovieQuote"], entities, nil).
		Where(schema.FieldCreatedByName, OpEqual, "x").ToSQL(ctx)
	if !ormerr.IsStructural(err) {
		t.Errorf("expected structural error for non-persisted criteria field, got %v", err)
	}
}

func TestBuilder_CountSQL(t *testing.T) {
	entities := testEntities()
	sql, args, err := NewBuilder(entities["MovieQuote"], entities, nil).
		Where("movie_id", OpEqual, "m-1").
		CountSQL()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "SELECT COUNT(*) FROM movie_quotes WHERE movie_quotes.deleted_at IS NULL AND movie_quotes.movie_id = $1"
	if sql != expected {
		t.Errorf("got %q, want %q", sql, expected)
	}
	if !reflect.DeepEqual(args, []interface{}{"m-1"}) {
		t.Errorf("unexpected args %v", args)
	}
}
