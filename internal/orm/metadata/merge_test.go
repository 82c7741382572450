package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_OverlayWins(t *testing.T) {
	base := map[string]interface{}{
		"fields": map[string]interface{}{
			"id":   map[string]interface{}{"type": "ID", "label": "ID", "required": true},
			"name": map[string]interface{}{"type": "Text"},
		},
		"displayColumns": []interface{}{"id"},
	}
	overlay := map[string]interface{}{
		"fields": map[string]interface{}{
			"id": map[string]interface{}{"label": "Identifier"},
		},
		"displayColumns": []interface{}{"name"},
	}

	merged := Merge(base, overlay)

	id := merged["fields"].(map[string]interface{})["id"].(map[string]interface{})
	assert.Equal(t, "Identifier", id["label"])
	assert.Equal(t, "ID", id["type"])
	assert.Equal(t, true, id["required"])
	assert.Equal(t, []interface{}{"name"}, merged["displayColumns"])

	assert.Equal(t, "ID", base["fields"].(map[string]interface{})["id"].(map[string]interface{})["label"])
}

func TestMerge_Idempotent(t *testing.T) {
	base := map[string]interface{}{"validationRules": []interface{}{"Required"}}
	overlay := map[string]interface{}{"validationRules": []interface{}{"Required", "Unique"}}

	once := Merge(base, overlay)
	twice := Merge(once, overlay)

	assert.Equal(t, once, twice)
	assert.Equal(t, []interface{}{"Required", "Unique"}, twice["validationRules"])
}

func TestMerge_InterfaceKeyedMaps(t *testing.T) {
	base := map[string]interface{}{"ui": map[interface{}]interface{}{"listFields": []interface{}{"name"}, "icon": "film"}}
	overlay := map[string]interface{}{"ui": map[string]interface{}{"icon": "star"}}

	merged := Merge(base, overlay)

	ui := merged["ui"].(map[string]interface{})
	assert.Equal(t, "star", ui["icon"])
	assert.Equal(t, []interface{}{"name"}, ui["listFields"])
}
