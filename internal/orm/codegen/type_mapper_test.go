package codegen

import (
	"testing"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

func TestTypeMapper_MapType(t *testing.T) {
	mapper := NewTypeMapper()

	tests := []struct {
		name      string
		fieldType schema.FieldType
		maxLength int
		expected  string
	}{
		{"id", schema.TypeID, 0, "CHAR(36)"},
		{"related record", schema.TypeRelatedRecord, 0, "CHAR(36)"},
		{"text default", schema.TypeText, 0, "VARCHAR(255)"},
		{"text with length", schema.TypeText, 64, "VARCHAR(64)"},
		{"enum", schema.TypeEnum, 0, "VARCHAR(255)"},
		{"email", schema.TypeEmail, 0, "VARCHAR(255)"},
		{"password", schema.TypePassword, 0, "VARCHAR(255)"},
		{"image", schema.TypeImage, 1000, "VARCHAR(1000)"},
		{"video", schema.TypeVideo, 0, "VARCHAR(255)"},
		{"big text", schema.TypeBigText, 0, "TEXT"},
		{"multi enum", schema.TypeMultiEnum, 0, "TEXT"},
		{"integer", schema.TypeInteger, 0, "INTEGER"},
		{"float", schema.TypeFloat, 0, "DOUBLE PRECISION"},
		{"boolean", schema.TypeBoolean, 0, "BOOLEAN"},
		{"date", schema.TypeDate, 0, "DATE"},
		{"datetime", schema.TypeDateTime, 0, "TIMESTAMP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := &schema.FieldDefinition{Name: "f", Type: tt.fieldType, MaxLength: tt.maxLength}

			result, err := mapper.MapType(field)
			if err != nil {
				t.Fatalf("MapType() error = %v", err)
			}
			if result != tt.expected {
				t.Errorf("MapType() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestTypeMapper_MapTypeErrors(t *testing.T) {
	mapper := NewTypeMapper()

	if _, err := mapper.MapType(nil); err == nil {
		t.Error("expected error for nil field")
	}
	if _, err := mapper.MapType(&schema.FieldDefinition{Name: "f", Type: schema.FieldType(99)}); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestTypeMapper_MapNullability(t *testing.T) {
	mapper := NewTypeMapper()

	tests := []struct {
		name     string
		field    *schema.FieldDefinition
		nullable bool
	}{
		{"primary key", &schema.FieldDefinition{Name: "id", Type: schema.TypeID, Required: true}, false},
		{"optional", &schema.FieldDefinition{Name: "bio", Type: schema.TypeBigText}, true},
		{"required", &schema.FieldDefinition{Name: "name", Type: schema.TypeText, Required: true}, false},
		{"required but nullable", &schema.FieldDefinition{Name: "name", Type: schema.TypeText, Required: true, Nullable: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapper.MapNullability(tt.field); got != tt.nullable {
				t.Errorf("MapNullability() = %v, want %v", got, tt.nullable)
			}
		})
	}
}

func TestTypeMapper_MapDefault(t *testing.T) {
	mapper := NewTypeMapper()

	tests := []struct {
		name      string
		fieldType schema.FieldType
		value     interface{}
		expected  string
	}{
		{"none", schema.TypeText, nil, ""},
		{"string", schema.TypeEnum, "user", "'user'"},
		{"escaped string", schema.TypeText, "it's", "'it''s'"},
		{"integer", schema.TypeInteger, 42, "42"},
		{"integral float as integer", schema.TypeInteger, float64(7), "7"},
		{"float", schema.TypeFloat, 1.5, "1.5"},
		{"true", schema.TypeBoolean, true, "TRUE"},
		{"false", schema.TypeBoolean, false, "FALSE"},
		{"today", schema.TypeDate, "today()", "CURRENT_DATE"},
		{"fixed date", schema.TypeDate, "2024-01-01", "'2024-01-01'::date"},
		{"now", schema.TypeDateTime, "now()", "CURRENT_TIMESTAMP"},
		{"password has no default", schema.TypePassword, "secret", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field := &schema.FieldDefinition{Name: "f", Type: tt.fieldType, DefaultValue: tt.value}

			result, err := mapper.MapDefault(field)
			if err != nil {
				t.Fatalf("MapDefault() error = %v", err)
			}
			if result != tt.expected {
				t.Errorf("MapDefault() = %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestTypeMapper_MapDefaultMismatch(t *testing.T) {
	mapper := NewTypeMapper()

	cases := []*schema.FieldDefinition{
		{Name: "count", Type: schema.TypeInteger, DefaultValue: "ten"},
		{Name: "count", Type: schema.TypeInteger, DefaultValue: 1.5},
		{Name: "flag", Type: schema.TypeBoolean, DefaultValue: "yes"},
		{Name: "name", Type: schema.TypeText, DefaultValue: 3},
	}
	for _, field := range cases {
		if _, err := mapper.MapDefault(field); err == nil {
			t.Errorf("expected error for %s default %v", field.Type, field.DefaultValue)
		}
	}
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		dataType string
		length   int64
		expected string
	}{
		{"character", 36, "CHAR(36)"},
		{"character varying", 255, "VARCHAR(255)"},
		{"character varying", 0, "VARCHAR"},
		{"text", 0, "TEXT"},
		{"integer", 0, "INTEGER"},
		{"double precision", 0, "DOUBLE PRECISION"},
		{"boolean", 0, "BOOLEAN"},
		{"date", 0, "DATE"},
		{"timestamp without time zone", 0, "TIMESTAMP"},
		{"jsonb", 0, "JSONB"},
	}

	for _, tt := range tests {
		if got := NormalizeType(tt.dataType, tt.length); got != tt.expected {
			t.Errorf("NormalizeType(%q, %d) = %q, want %q", tt.dataType, tt.length, got, tt.expected)
		}
	}
}

func TestQuoting(t *testing.T) {
	if got := QuoteIdentifier(`my"table`); got != `"my""table"` {
		t.Errorf("QuoteIdentifier() = %s", got)
	}
	if got := QuoteLiteral("o'hara"); got != "'o''hara'" {
		t.Errorf("QuoteLiteral() = %s", got)
	}
}
