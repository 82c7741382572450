package metadata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "entities/Movie.yaml", `
name: Movie
table: movies
fields:
  name:
    type: Text
    required: true
  tmdb_id:
    type: Integer
    unique: true
relationships:
  - movies_movie_quotes
`)
	writeFile(t, dir, "entities/MovieQuote.yaml", "fields:\n  quote:\n    type: BigText\n")
	writeFile(t, dir, "entities/README.md", "ignored")
	writeFile(t, dir, "relationships/movies_movie_quotes.yaml", `
type: OneToMany
modelOne: Movie
modelMany: MovieQuote
onDelete: CASCADE
`)

	source := NewFileSource(dir)
	ctx := context.Background()

	names, err := source.EntityNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Movie", "MovieQuote"}, names)

	raw, err := source.EntityMetadata(ctx, "Movie")
	require.NoError(t, err)
	assert.Equal(t, "movies", raw["table"])
	fields := raw["fields"].(map[string]interface{})
	assert.Contains(t, fields, "tmdb_id")

	rel, err := source.RelationshipMetadata(ctx, "movies_movie_quotes")
	require.NoError(t, err)
	assert.Equal(t, "CASCADE", rel["onDelete"])

	_, err = source.EntityMetadata(ctx, "Ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSource_MissingDirectories(t *testing.T) {
	source := NewFileSource(t.TempDir())

	names, err := source.RelationshipNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFileSource_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "entities/Broken.yaml", "fields: [unclosed")

	_, err := NewFileSource(dir).EntityMetadata(context.Background(), "Broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMapSource_ReturnsCopies(t *testing.T) {
	source := &MapSource{Entities: map[string]map[string]interface{}{
		"Movie": {"fields": map[string]interface{}{"name": map[string]interface{}{"type": "Text"}}},
	}}

	raw, err := source.EntityMetadata(context.Background(), "Movie")
	require.NoError(t, err)
	raw["fields"].(map[string]interface{})["extra"] = true

	again, err := source.EntityMetadata(context.Background(), "Movie")
	require.NoError(t, err)
	assert.NotContains(t, again["fields"], "extra")

	_, err = source.RelationshipMetadata(context.Background(), "none")
	assert.ErrorIs(t, err, ErrNotFound)
}
