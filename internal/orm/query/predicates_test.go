package query

import (
	"reflect"
	"testing"
)

func TestConditionToSQL(t *testing.T) {
	tests := []struct {
		name     string
		cond     *Condition
		expected string
		args     []interface{}
	}{
		{"equal", &Condition{Column: "movies.name", Operator: OpEqual, Value: "Dune"}, "movies.name = $1", []interface{}{"Dune"}},
		{"greater", &Condition{Column: "movies.tmdb_id", Operator: OpGreaterThan, Value: 5}, "movies.tmdb_id > $1", []interface{}{5}},
		{"in", &Condition{Column: "movies.id", Operator: OpIn, Value: []interface{}{"a", "b"}}, "movies.id IN ($1, $2)", []interface{}{"a", "b"}},
		{"empty in", &Condition{Column: "movies.id", Operator: OpIn, Value: []interface{}{}}, "FALSE", nil},
		{"empty not in", &Condition{Column: "movies.id", Operator: OpNotIn, Value: []interface{}{}}, "TRUE", nil},
		{"is null", &Condition{Column: "movies.deleted_at", Operator: OpIsNull}, "movies.deleted_at IS NULL", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &params{}
			sql, err := conditionToSQL(tt.cond, p)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sql != tt.expected {
				t.Errorf("got %q, want %q", sql, tt.expected)
			}
			if !reflect.DeepEqual(p.args, tt.args) {
				t.Errorf("got args %v, want %v", p.args, tt.args)
			}
		})
	}
}

func TestConditionToSQL_InRequiresList(t *testing.T) {
	_, err := conditionToSQL(&Condition{Column: "movies.id", Operator: OpIn, Value: "a"}, &params{})
	if err == nil {
		t.Error("expected error for non-list IN value")
	}
}

func TestCriteriaCondition(t *testing.T) {
	if c := criteriaCondition("t.a", nil); c.Operator != OpIsNull {
		t.Errorf("nil should map to IS NULL, got %s", c.Operator)
	}
	if c := criteriaCondition("t.a", []string{"x", "y"}); c.Operator != OpIn || len(c.Value.([]interface{})) != 2 {
		t.Errorf("list should map to IN, got %s", c.Operator)
	}
	if c := criteriaCondition("t.a", 603); c.Operator != OpEqual || c.Value != 603 {
		t.Errorf("scalar should map to equality, got %s", c.Operator)
	}
}

func TestValidateIdentifier(t *testing.T) {
	if err := ValidateIdentifier("movie_quotes"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"", "movies;drop", "movies table", "a.b"} {
		if err := ValidateIdentifier(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
