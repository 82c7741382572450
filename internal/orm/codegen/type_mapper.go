// Package codegen renders PostgreSQL DDL from resolved entity definitions.
// It owns the fixed field type to column type table and the statement text for tables, columns
// and indexes; deciding which statements to run is left to the migrate package.
package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// DefaultStringLength is the VARCHAR length used when a field declares no maxLength
const DefaultStringLength = 255

// Column types produced by the mapper
const (
	TypeGUID      = "CHAR(36)"
	TypeText      = "TEXT"
	TypeInteger   = "INTEGER"
	TypeFloat     = "DOUBLE PRECISION"
	TypeBoolean   = "BOOLEAN"
	TypeDate      = "DATE"
	TypeTimestamp = "TIMESTAMP"
)

// TypeMapper maps field types to PostgreSQL column types
type TypeMapper struct{}

// NewTypeMapper creates a new TypeMapper
func NewTypeMapper() *TypeMapper {
	return &TypeMapper{}
}

// MapType converts a field definition to its column type
func (tm *TypeMapper) MapType(field *schema.FieldDefinition) (string, error) {
	if field == nil {
		return "", fmt.Errorf("field definition cannot be nil")
	}

	switch field.Type {
	case schema.TypeID, schema.TypeRelatedRecord:
		return TypeGUID, nil
	case schema.TypeText, schema.TypeEnum, schema.TypeEmail, schema.TypePassword,
		schema.TypeImage, schema.TypeVideo:
		return varchar(field.MaxLength), nil
	case schema.TypeBigText, schema.TypeMultiEnum:
		return TypeText, nil
	case schema.TypeInteger:
		return TypeInteger, nil
	case schema.TypeFloat:
		return TypeFloat, nil
	case schema.TypeBoolean:
		return TypeBoolean, nil
	case schema.TypeDate:
		return TypeDate, nil
	case schema.TypeDateTime:
		return TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unsupported field type: %s", field.Type)
	}
}

func varchar(length int) string {
	if length <= 0 {
		length = DefaultStringLength
	}
	return fmt.Sprintf("VARCHAR(%d)", length)
}

// MapNullability reports whether the column of field accepts NULL.
// Only the primary key and required, non-nullable fields are NOT NULL.
func (tm *TypeMapper) MapNullability(field *schema.FieldDefinition) bool {
	if field.Name == schema.FieldID {
		return false
	}
	return !field.Required || field.Nullable
}

// MapDefault renders the DEFAULT expression of field, or "" when it declares no default
func (tm *TypeMapper) MapDefault(field *schema.FieldDefinition) (string, error) {
	if field.DefaultValue == nil {
		return "", nil
	}
	return tm.formatDefaultValue(field, field.DefaultValue)
}

func (tm *TypeMapper) formatDefaultValue(field *schema.FieldDefinition, value interface{}) (string, error) {
	switch field.Type {
	case schema.TypeText, schema.TypeBigText, schema.TypeEnum, schema.TypeEmail,
		schema.TypeImage, schema.TypeVideo:
		if str, ok := value.(string); ok {
			return QuoteLiteral(str), nil
		}
		return "", fmt.Errorf("expected string default for %s field %s, got %T", field.Type, field.Name, value)

	case schema.TypeInteger:
		switch v := value.(type) {
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			if v == float64(int64(v)) {
				return strconv.FormatInt(int64(v), 10), nil
			}
		}
		return "", fmt.Errorf("expected integer default for field %s, got %v", field.Name, value)

	case schema.TypeFloat:
		switch v := value.(type) {
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		}
		return "", fmt.Errorf("expected numeric default for field %s, got %T", field.Name, value)

	case schema.TypeBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		return "", fmt.Errorf("expected bool default for field %s, got %T", field.Name, value)

	case schema.TypeDate:
		if str, ok := value.(string); ok {
			if str == "today()" || strings.EqualFold(str, "CURRENT_DATE") {
				return "CURRENT_DATE", nil
			}
			return QuoteLiteral(str) + "::date", nil
		}
		return "", fmt.Errorf("expected string default for date field %s, got %T", field.Name, value)

	case schema.TypeDateTime:
		if str, ok := value.(string); ok {
			if str == "now()" || strings.EqualFold(str, "CURRENT_TIMESTAMP") {
				return "CURRENT_TIMESTAMP", nil
			}
			return QuoteLiteral(str) + "::timestamp", nil
		}
		return "", fmt.Errorf("expected string default for datetime field %s, got %T", field.Name, value)

	default:
		// ids, passwords and option lists are always assigned by the engine
		return "", nil
	}
}

// NormalizeType converts an information_schema data type to the mapper's vocabulary so live
// columns compare equal to generated ones
func NormalizeType(dataType string, length int64) string {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "character", "char", "bpchar":
		return fmt.Sprintf("CHAR(%d)", length)
	case "character varying", "varchar":
		if length <= 0 {
			return "VARCHAR"
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case "text":
		return TypeText
	case "integer", "int", "int4":
		return TypeInteger
	case "double precision", "float8":
		return TypeFloat
	case "boolean", "bool":
		return TypeBoolean
	case "date":
		return TypeDate
	case "timestamp without time zone", "timestamp":
		return TypeTimestamp
	default:
		return strings.ToUpper(dataType)
	}
}

// QuoteIdentifier wraps a SQL identifier in double quotes and escapes internal quotes
func QuoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string in single quotes, doubling internal quotes
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
