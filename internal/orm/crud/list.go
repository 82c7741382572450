package crud

import (
	"net/url"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/ormerr"
	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

const (
	// DefaultPageSize applies when page[number] is given without page[size]
	DefaultPageSize = 20
	// MaxPageSize caps page[size]
	MaxPageSize = 100
)

// ListQuery is a find request decoded from query-string parameters
type ListQuery struct {
	Criteria map[string]interface{}
	Fields   []string
	Params   Params
}

// ParseListQuery decodes list parameters against the fields of def:
//
//	filter[status]=published     equality
//	filter[genre_id]=g-1,g-2     IN
//	filter[deleted_by]=null      IS NULL
//	sort=-created_at,name        ORDER BY created_at DESC, name ASC
//	fields=id,name               projection
//	page[number]=2&page[size]=10 LIMIT 10 OFFSET 10
//	include_deleted=true         tombstoned rows included
//
// Field names may be camelCase; they are matched in snake_case. Every unknown or non-persisted
// field is reported in one structural error.
func ParseListQuery(def *schema.EntityDefinition, values url.Values) (*ListQuery, error) {
	lq := &ListQuery{Criteria: map[string]interface{}{}}
	var invalid []string

	for key, vals := range values {
		name, ok := bracketed(key, "filter")
		if !ok || len(vals) == 0 {
			continue
		}
		field := schema.ToSnakeCase(name)
		if !persisted(def, field) {
			invalid = append(invalid, field)
			continue
		}
		lq.Criteria[field] = filterValue(vals[len(vals)-1])
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, ormerr.Structuralf("entity %s: invalid filter fields: %s", def.Name, strings.Join(invalid, ", "))
	}

	for _, term := range splitList(values.Get("sort")) {
		order := Order{Field: term, Direction: "ASC"}
		if strings.HasPrefix(term, "-") {
			order = Order{Field: term[1:], Direction: "DESC"}
		}
		order.Field = schema.ToSnakeCase(order.Field)
		if !persisted(def, order.Field) {
			invalid = append(invalid, order.Field)
			continue
		}
		lq.Params.OrderBy = append(lq.Params.OrderBy, order)
	}
	if len(invalid) > 0 {
		return nil, ormerr.Structuralf("entity %s: invalid sort fields: %s", def.Name, strings.Join(invalid, ", "))
	}

	for _, name := range splitList(values.Get("fields")) {
		field := schema.ToSnakeCase(name)
		if !persisted(def, field) {
			invalid = append(invalid, field)
			continue
		}
		lq.Fields = append(lq.Fields, field)
	}
	if len(invalid) > 0 {
		return nil, ormerr.Structuralf("entity %s: invalid fields: %s", def.Name, strings.Join(invalid, ", "))
	}

	if err := parsePage(values, &lq.Params); err != nil {
		return nil, ormerr.Wrap(err, "entity "+def.Name)
	}

	if raw := values.Get("include_deleted"); raw != "" {
		include, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, ormerr.Structuralf("entity %s: include_deleted must be a boolean, got %q", def.Name, raw)
		}
		lq.Params.IncludeDeleted = include
	}

	return lq, nil
}

func parsePage(values url.Values, params *Params) error {
	rawNumber, rawSize := values.Get("page[number]"), values.Get("page[size]")
	if rawNumber == "" && rawSize == "" {
		return nil
	}

	size := DefaultPageSize
	if rawSize != "" {
		n, err := cast.ToIntE(rawSize)
		if err != nil || n < 1 {
			return ormerr.Structuralf("page[size] must be a positive integer, got %q", rawSize)
		}
		size = n
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	number := 1
	if rawNumber != "" {
		n, err := cast.ToIntE(rawNumber)
		if err != nil || n < 1 {
			return ormerr.Structuralf("page[number] must be a positive integer, got %q", rawNumber)
		}
		number = n
	}

	params.Limit = size
	params.Offset = (number - 1) * size
	return nil
}

// bracketed extracts name from prefix[name]
func bracketed(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix+"[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	name := key[len(prefix)+1 : len(key)-1]
	return name, name != ""
}

func filterValue(raw string) interface{} {
	if strings.EqualFold(raw, "null") {
		return nil
	}
	if strings.Contains(raw, ",") {
		return splitList(raw)
	}
	return raw
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func persisted(def *schema.EntityDefinition, field string) bool {
	f, ok := def.Field(field)
	return ok && f.IsPersisted()
}
