package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"golang.org/x/crypto/bcrypt"

	"github.com/gravitycar/gravitycar-no-code-sub015/internal/orm/schema"
)

// DateFormat is the storage format of Date fields
const DateFormat = "2006-01-02"

func coerceString(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	switch v := value.(type) {
	case []byte:
		return string(v), nil
	case uuid.UUID:
		return v.String(), nil
	default:
		return cast.ToStringE(value)
	}
}

// coerceID accepts strings and uuid values; CHAR(36) columns come back padded
func coerceID(def *schema.FieldDefinition, value interface{}, fromStorage bool) (interface{}, error) {
	s, err := coerceString(def, value, fromStorage)
	if err != nil {
		return nil, err
	}
	return strings.TrimSpace(s.(string)), nil
}

func coerceInteger(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return nil, fmt.Errorf("%v is not an integer", v)
		}
	case []byte:
		value = string(v)
	}
	return cast.ToInt64E(value)
}

func coerceFloat(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	return cast.ToFloat64E(value)
}

func coerceBoolean(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	return cast.ToBoolE(value)
}

func toTime(value interface{}) (time.Time, error) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	return cast.ToTimeE(value)
}

func coerceDateTime(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	t, err := toTime(value)
	if err != nil {
		return nil, err
	}
	return t.UTC(), nil
}

// coerceDate keeps the calendar date in the zone of the input
func coerceDate(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	t, err := toTime(value)
	if err != nil {
		return nil, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func storeDate(value interface{}) (interface{}, error) {
	return value.(time.Time).Format(DateFormat), nil
}

// coerceMultiEnum accepts lists, JSON array strings and comma separated strings
func coerceMultiEnum(_ *schema.FieldDefinition, value interface{}, _ bool) (interface{}, error) {
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return []string{}, nil
		}
		if strings.HasPrefix(s, "[") {
			var list []string
			if err := json.Unmarshal([]byte(s), &list); err != nil {
				return nil, err
			}
			return list, nil
		}
		parts := strings.Split(s, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
	return cast.ToStringSliceE(value)
}

func storeMultiEnum(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// coercePassword hashes plain text on assignment. Stored hashes are kept as loaded.
func coercePassword(def *schema.FieldDefinition, value interface{}, fromStorage bool) (interface{}, error) {
	s, err := coerceString(def, value, fromStorage)
	if err != nil {
		return nil, err
	}
	plain := s.(string)
	if fromStorage || plain == "" || isBcryptHash(plain) {
		return plain, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost)
	if err != nil {
		return nil, err
	}
	return string(hash), nil
}

// PasswordCost is the bcrypt cost used for Password fields
var PasswordCost = bcrypt.DefaultCost

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// CheckPassword compares a plain text password against a Password field's hash
func CheckPassword(f *Field, plain string) bool {
	hash, ok := f.Value().(string)
	if !ok || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
