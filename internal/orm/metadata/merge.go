package metadata

// Merge overlays one metadata map onto another and returns a new map; neither input is modified.
//
// Nested maps merge per key with the overlay winning on conflicts. Scalars and lists from the
// overlay replace the base value outright, so list-valued metadata is never duplicated or
// reordered and merging the same overlay twice gives the same result.
func Merge(base, overlay map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(overlay))
	for k, v := range base {
		result[k] = clone(v)
	}

	for k, v := range overlay {
		overlayMap, overlayIsMap := asMap(v)
		baseMap, baseIsMap := asMap(result[k])
		if overlayIsMap && baseIsMap {
			result[k] = Merge(baseMap, overlayMap)
			continue
		}
		result[k] = clone(v)
	}
	return result
}

func clone(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		return Merge(nil, m)
	}
	if list, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, item := range list {
			out[i] = clone(item)
		}
		return out
	}
	return v
}

// asMap normalizes the map shapes produced by yaml and msgpack decoding
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}
