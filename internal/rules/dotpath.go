// Package rules implements hook condition evaluation: dot-path field lookup
// over signal payloads and a flat AND-of-conditions matcher.
package rules

import (
	"strings"

	"signalpipe/internal/types"
)

// Lookup traverses a nested payload by dot-path ("address.city"). Missing
// intermediate keys or non-map intermediates yield (nil, false), never an
// error: an absent field is a normal outcome, not a malformed payload.
func Lookup(payload map[string]any, path string) (any, bool) {
	if payload == nil || path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current any = payload
	for _, part := range parts {
		m, ok := asStringMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// asStringMap unwraps the map types a payload value can carry after JSON
// decoding or in-process construction.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case types.Payload:
		return m, true
	default:
		return nil, false
	}
}
