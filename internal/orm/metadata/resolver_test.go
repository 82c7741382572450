package metadata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/cache"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

func movieSource() *MapSource {
	return &MapSource{
		Entities: map[string]map[string]interface{}{
			"Movie": {
				"name":  "Movie",
				"table": "movies",
				"fields": map[string]interface{}{
					"name":    map[string]interface{}{"type": "Text", "required": true},
					"tmdb_id": map[string]interface{}{"type": "Integer", "unique": true},
					"id":      map[string]interface{}{"label": "Movie ID"},
				},
				"relationships": []interface{}{"movies_movie_quotes"},
			},
			"MovieQuote": {
				"fields": map[string]interface{}{
					"quote":  map[string]interface{}{"type": "BigText", "required": true},
					"rating": map[string]interface{}{"type": "Stars"},
				},
				"relationships": []interface{}{"movies_movie_quotes"},
			},
			"Empty": {"name": "Empty"},
		},
		Relationships: map[string]map[string]interface{}{
			"movies_movie_quotes": {
				"type":      "OneToMany",
				"modelOne":  "Movie",
				"modelMany": "MovieQuote",
				"onDelete":  "cascade",
			},
			"movies_ghosts": {
				"type":   "ManyToMany",
				"modelA": "Movie",
				"modelB": "Ghost",
			},
		},
	}
}

type countingSource struct {
	Source
	entityReads atomic.Int32
}

func (s *countingSource) EntityMetadata(ctx context.Context, name string) (map[string]interface{}, error) {
	s.entityReads.Add(1)
	return s.Source.EntityMetadata(ctx, name)
}

func TestResolver_EntityMergesCoreFields(t *testing.T) {
	resolver := NewResolver(movieSource())

	def, err := resolver.Entity(context.Background(), "Movie")
	require.NoError(t, err)

	assert.Equal(t, "movies", def.TableName())
	for _, name := range schema.AuditFields {
		assert.True(t, def.HasField(name), "missing %s", name)
	}

	id, _ := def.Field("id")
	assert.Equal(t, "Movie ID", id.Label)
	assert.Equal(t, schema.TypeID, id.Type)
	assert.True(t, id.ReadOnlyAfterCreate)

	name, _ := def.Field("name")
	assert.True(t, name.Required)
	assert.Equal(t, schema.TypeText, name.Type)

	display, _ := def.Field(schema.FieldCreatedByName)
	assert.False(t, display.IsPersisted())

	createdAt, _ := def.Field(schema.FieldCreatedAt)
	assert.True(t, createdAt.ReadOnly)
	assert.True(t, createdAt.Nullable)
}

func TestResolver_InjectsForeignKeyOnChildSide(t *testing.T) {
	resolver := NewResolver(movieSource())
	ctx := context.Background()

	quote, err := resolver.Entity(ctx, "MovieQuote")
	require.NoError(t, err)

	fk, ok := quote.Field("movie_id")
	require.True(t, ok)
	assert.Equal(t, schema.TypeRelatedRecord, fk.Type)
	assert.Equal(t, "Movie", fk.RelatedEntity)

	movie, err := resolver.Entity(ctx, "Movie")
	require.NoError(t, err)
	assert.False(t, movie.HasField("movie_id"))
}

func TestResolver_UnknownTypeFallsBackToText(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	resolver := NewResolver(movieSource(), WithLogger(zap.New(core)))

	def, err := resolver.Entity(context.Background(), "MovieQuote")
	require.NoError(t, err)

	rating, _ := def.Field("rating")
	assert.Equal(t, schema.TypeText, rating.Type)
	assert.Equal(t, "Text", rating.TypeName)

	entries := logs.FilterMessage("unknown field type, using Text").All()
	require.Len(t, entries, 1)
	ctxMap := entries[0].ContextMap()
	assert.Equal(t, "MovieQuote", ctxMap["entity"])
	assert.Equal(t, "rating", ctxMap["field"])
}

func TestResolver_StructuralErrors(t *testing.T) {
	resolver := NewResolver(movieSource())
	ctx := context.Background()

	_, err := resolver.Entity(ctx, "Empty")
	assert.True(t, ormerr.IsStructural(err), "empty metadata: %v", err)

	_, err = resolver.Entity(ctx, "Ghost")
	assert.True(t, ormerr.IsStructural(err), "unknown entity: %v", err)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = resolver.Relationship(ctx, "movies_ghosts")
	assert.True(t, ormerr.IsStructural(err), "unknown participant: %v", err)
}

func TestResolver_RejectsMixedCaseStorageNames(t *testing.T) {
	src := &MapSource{
		Entities: map[string]map[string]interface{}{
			"Movie": {
				"fields": map[string]interface{}{
					"releaseYear": map[string]interface{}{"type": "Integer"},
					"posterHint":  map[string]interface{}{"type": "Text", "isDBField": false},
				},
			},
			"Genre": {
				"table":  "Genres",
				"fields": map[string]interface{}{"name": map[string]interface{}{"type": "Text"}},
			},
			"Studio": {
				"fields": map[string]interface{}{"name": map[string]interface{}{"type": "Text"}},
			},
		},
		Relationships: map[string]map[string]interface{}{
			"studios_movies": {
				"type":       "OneToMany",
				"modelOne":   "Studio",
				"modelMany":  "Movie",
				"foreignKey": "studioId",
			},
			"movies_genres": {
				"type":      "ManyToMany",
				"modelA":    "Movie",
				"modelB":    "Genre",
				"joinTable": "MovieGenres",
			},
		},
	}
	resolver := NewResolver(src)
	ctx := context.Background()

	_, err := resolver.Entity(ctx, "Movie")
	require.Error(t, err)
	assert.True(t, ormerr.IsStructural(err))
	assert.Contains(t, err.Error(), `"releaseYear"`)
	assert.Contains(t, err.Error(), `"release_year"`)

	_, err = resolver.Entity(ctx, "Genre")
	assert.True(t, ormerr.IsStructural(err), "mixed-case table: %v", err)

	_, err = resolver.Relationship(ctx, "studios_movies")
	assert.True(t, ormerr.IsStructural(err), "mixed-case foreign key: %v", err)

	_, err = resolver.Relationship(ctx, "movies_genres")
	assert.True(t, ormerr.IsStructural(err), "mixed-case join table: %v", err)

	studio, err := resolver.Entity(ctx, "Studio")
	require.NoError(t, err)
	assert.Equal(t, "studios", studio.TableName())
}

func TestResolver_Relationship(t *testing.T) {
	resolver := NewResolver(movieSource())

	rel, err := resolver.Relationship(context.Background(), "movies_movie_quotes")
	require.NoError(t, err)

	assert.Equal(t, "movies_movie_quotes", rel.Name)
	assert.Equal(t, schema.OneToMany, rel.Type)
	assert.Equal(t, "Movie", rel.EntityA)
	assert.Equal(t, "MovieQuote", rel.EntityB)
	assert.Equal(t, schema.CascadeCascade, rel.OnDelete)
}

func TestResolver_CachesUntilInvalidated(t *testing.T) {
	source := &countingSource{Source: movieSource()}
	resolver := NewResolver(source)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := resolver.Entity(ctx, "Movie")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	first, err := resolver.Entity(ctx, "Movie")
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.entityReads.Load())

	require.NoError(t, resolver.Invalidate(ctx, "Movie"))
	second, err := resolver.Entity(ctx, "Movie")
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.entityReads.Load())
	assert.NotSame(t, first, second)
}

func TestResolver_SharedCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	shared := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cache.DefaultConfig())
	ctx := context.Background()

	source := &countingSource{Source: movieSource()}
	_, err = NewResolver(source, WithCache(shared)).Entity(ctx, "Movie")
	require.NoError(t, err)
	assert.True(t, mr.Exists("gravitycar:metadata:entity:Movie"))

	other := NewResolver(source, WithCache(shared))
	def, err := other.Entity(ctx, "Movie")
	require.NoError(t, err)
	assert.Equal(t, int32(1), source.entityReads.Load())
	assert.True(t, def.HasField("tmdb_id"))

	tmdb, _ := def.Field("tmdb_id")
	assert.Equal(t, schema.TypeInteger, tmdb.Type)
	assert.True(t, tmdb.Unique)

	require.NoError(t, other.InvalidateAll(ctx))
	assert.False(t, mr.Exists("gravitycar:metadata:entity:Movie"))
}

func TestResolver_All(t *testing.T) {
	source := movieSource()
	delete(source.Entities, "Empty")
	delete(source.Relationships, "movies_ghosts")

	registry, err := NewResolver(source).All(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Movie", "MovieQuote"}, registry.List())
	order, err := registry.DependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"Movie", "MovieQuote"}, order)
}
