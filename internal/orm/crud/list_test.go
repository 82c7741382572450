package crud

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormtest"
)

func TestParseListQuery(t *testing.T) {
	movie := ormtest.Entity(t, ormtest.Resolver(nil), "Movie")

	values := url.Values{
		"filter[tmdbId]":      {"603"},
		"filter[director_id]": {"u-1,u-2"},
		"filter[deleted_by]":  {"null"},
		"sort":                {"-created_at, name"},
		"fields":              {"id,name,directorId"},
		"page[number]":        {"3"},
		"page[size]":          {"10"},
		"include_deleted":     {"true"},
		"unrelated":           {"ignored"},
	}

	lq, err := ParseListQuery(movie, values)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"tmdb_id":     "603",
		"director_id": []string{"u-1", "u-2"},
		"deleted_by":  nil,
	}, lq.Criteria)
	assert.Equal(t, []string{"id", "name", "director_id"}, lq.Fields)
	assert.Equal(t, []Order{
		{Field: "created_at", Direction: "DESC"},
		{Field: "name", Direction: "ASC"},
	}, lq.Params.OrderBy)
	assert.Equal(t, 10, lq.Params.Limit)
	assert.Equal(t, 20, lq.Params.Offset)
	assert.True(t, lq.Params.IncludeDeleted)
}

func TestParseListQuery_Empty(t *testing.T) {
	lq, err := ParseListQuery(ormtest.Entity(t, ormtest.Resolver(nil), "Genre"), url.Values{})
	require.NoError(t, err)
	assert.Empty(t, lq.Criteria)
	assert.Empty(t, lq.Fields)
	assert.Equal(t, Params{}, lq.Params)
}

func TestParseListQuery_Paging(t *testing.T) {
	genre := ormtest.Entity(t, ormtest.Resolver(nil), "Genre")

	tests := []struct {
		name       string
		values     url.Values
		wantLimit  int
		wantOffset int
	}{
		{name: "number only", values: url.Values{"page[number]": {"2"}}, wantLimit: DefaultPageSize, wantOffset: DefaultPageSize},
		{name: "size only", values: url.Values{"page[size]": {"5"}}, wantLimit: 5},
		{name: "size capped", values: url.Values{"page[size]": {"1000"}, "page[number]": {"2"}}, wantLimit: MaxPageSize, wantOffset: MaxPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lq, err := ParseListQuery(genre, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, lq.Params.Limit)
			assert.Equal(t, tt.wantOffset, lq.Params.Offset)
		})
	}
}

func TestParseListQuery_Errors(t *testing.T) {
	movie := ormtest.Entity(t, ormtest.Resolver(nil), "Movie")

	tests := []struct {
		name   string
		values url.Values
		want   string
	}{
		{
			name:   "unknown and virtual filters",
			values: url.Values{"filter[rating]": {"5"}, "filter[poster_hint]": {"x"}, "filter[budget]": {"1"}},
			want:   "invalid filter fields: budget, poster_hint, rating",
		},
		{name: "unknown sort", values: url.Values{"sort": {"-rating"}}, want: "invalid sort fields: rating"},
		{name: "unknown projection", values: url.Values{"fields": {"name,rating"}}, want: "invalid fields: rating"},
		{name: "bad page size", values: url.Values{"page[size]": {"zero"}}, want: "page[size] must be a positive integer"},
		{name: "bad page number", values: url.Values{"page[number]": {"0"}}, want: "page[number] must be a positive integer"},
		{name: "bad include_deleted", values: url.Values{"include_deleted": {"maybe"}}, want: "include_deleted must be a boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseListQuery(movie, tt.values)
			require.Error(t, err)
			assert.True(t, ormerr.IsStructural(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
