package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrors_Add(t *testing.T) {
	errs := NewErrors()
	assert.False(t, errs.HasErrors())

	errs.Add("email", "is required")
	errs.Add("email", "must be unique")
	errs.Add("name", "is required")

	assert.True(t, errs.HasErrors())
	assert.Equal(t, 3, errs.Count())
	assert.Len(t, errs.Fields["email"], 2)
}

func TestErrors_NilReceiver(t *testing.T) {
	var errs *Errors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, 0, errs.Count())
}

func TestErrors_Error(t *testing.T) {
	errs := NewErrors()
	assert.Equal(t, "validation failed", errs.Error())

	errs.Add("name", "is required")
	assert.Equal(t, "validation failed: name: is required", errs.Error())

	errs.Add("email", "must be unique")
	assert.Equal(t, "validation failed:\n  - email: must be unique\n  - name: is required", errs.Error())
}

func TestErrors_MarshalJSON(t *testing.T) {
	errs := NewErrors()
	errs.Add("tmdb_id", "must be unique")

	data, err := json.Marshal(errs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"validation_failed","fields":{"tmdb_id":["must be unique"]}}`, string(data))
}
