// Package ormtest provides shared metadata fixtures for ORM package tests
package ormtest

import (
	"context"
	"testing"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/metadata"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// Relationship names used by the fixtures
const (
	MovieQuotes  = "movies_movie_quotes"
	MovieGenres  = "movies_genres"
	UserProfiles = "users_profiles"
)

// Source returns a fresh in-memory metadata source describing a small movie catalogue:
//
//	Movie 1-N MovieQuote (cascade), Movie N-N Genre (soft delete, with assigned_at),
//	User 1-1 Profile (restrict), Movie.director_id -> User
func Source() *metadata.MapSource {
	return &metadata.MapSource{
		Entities: map[string]map[string]interface{}{
			"Movie": {
				"table": "movies",
				"fields": map[string]interface{}{
					"name":        map[string]interface{}{"type": "Text", "required": true, "readOnlyAfterCreate": true},
					"tmdb_id":     map[string]interface{}{"type": "Integer", "unique": true},
					"synopsis":    map[string]interface{}{"type": "BigText"},
					"director_id": map[string]interface{}{"type": "RelatedRecord", "relatedModel": "User"},
					"poster_hint": map[string]interface{}{"type": "Text", "isDBField": false},
				},
				"relationships": []interface{}{MovieQuotes, MovieGenres},
			},
			"MovieQuote": {
				"fields": map[string]interface{}{
					"quote": map[string]interface{}{"type": "BigText", "required": true},
				},
				"displayColumns": []interface{}{"quote"},
				"relationships":  []interface{}{MovieQuotes},
			},
			"Genre": {
				"fields": map[string]interface{}{
					"name": map[string]interface{}{"type": "Text", "required": true, "maxLength": 64},
				},
				"relationships": []interface{}{MovieGenres},
			},
			"User": {
				"fields": map[string]interface{}{
					"first_name": map[string]interface{}{"type": "Text"},
					"last_name":  map[string]interface{}{"type": "Text"},
					"email":      map[string]interface{}{"type": "Email", "required": true, "unique": true},
					"password":   map[string]interface{}{"type": "Password"},
					"role":       map[string]interface{}{"type": "Enum", "options": []interface{}{"admin", "user"}, "defaultValue": "user"},
				},
				"displayColumns": []interface{}{"first_name", "last_name"},
				"relationships":  []interface{}{UserProfiles},
			},
			"Profile": {
				"fields": map[string]interface{}{
					"bio": map[string]interface{}{"type": "BigText"},
				},
				"relationships": []interface{}{UserProfiles},
			},
		},
		Relationships: map[string]map[string]interface{}{
			MovieQuotes: {
				"type":      "OneToMany",
				"modelOne":  "Movie",
				"modelMany": "MovieQuote",
				"onDelete":  "cascade",
			},
			MovieGenres: {
				"type":     "ManyToMany",
				"modelA":   "Movie",
				"modelB":   "Genre",
				"onDelete": "soft_delete",
				"additionalFields": map[string]interface{}{
					"assigned_at": map[string]interface{}{"type": "DateTime", "nullable": true},
				},
			},
			UserProfiles: {
				"type":     "OneToOne",
				"modelA":   "User",
				"modelB":   "Profile",
				"onDelete": "restrict",
			},
		},
	}
}

// SetOnDelete changes the cascade action of a relationship in src
func SetOnDelete(src *metadata.MapSource, relationship, action string) *metadata.MapSource {
	src.Relationships[relationship]["onDelete"] = action
	return src
}

// Resolver returns a resolver over src, or over Source() when src is nil
func Resolver(src *metadata.MapSource) *metadata.Resolver {
	if src == nil {
		src = Source()
	}
	return metadata.NewResolver(src)
}

// Entity resolves a fixture entity, failing the test on error
func Entity(t testing.TB, resolver *metadata.Resolver, name string) *schema.EntityDefinition {
	t.Helper()

	def, err := resolver.Entity(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to resolve %s: %v", name, err)
	}
	return def
}

// Relationship resolves a fixture relationship, failing the test on error
func Relationship(t testing.TB, resolver *metadata.Resolver, name string) *schema.RelationshipDefinition {
	t.Helper()

	def, err := resolver.Relationship(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to resolve %s: %v", name, err)
	}
	return def
}
