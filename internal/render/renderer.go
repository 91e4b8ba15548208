// Package render turns notification templates and signal payloads into
// channel-ready content. Substitution is deliberately flat: only top-level
// payload keys holding strings or numbers are available as {{key}} tokens.
// Callers that want nested data rendered must flatten their payloads.
package render

import (
	"fmt"
	"strconv"
	"strings"
)

// Render substitutes every {{key}} token in the template with the matching
// top-level payload value. Missing keys leave the token untouched in the
// output: a "{{customerEmail}}" surviving into a sent message is a visible
// configuration bug, which beats silently dropping data.
func Render(template string, payload map[string]any) string {
	if template == "" || len(payload) == 0 {
		return template
	}

	pairs := make([]string, 0, len(payload)*2)
	for key, value := range payload {
		s, ok := stringValue(value)
		if !ok {
			continue
		}
		pairs = append(pairs, "{{"+key+"}}", s)
	}
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// stringValue converts a payload value to its template representation.
// Only strings and numbers participate in substitution; maps, slices, bools,
// and nils are not renderable at this layer.
func stringValue(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, true
	case float64:
		// JSON numbers arrive as float64; -1 precision renders whole
		// numbers as "150", not "150.000000".
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case int:
		return strconv.Itoa(n), true
	case int32, int64:
		return fmt.Sprint(n), true
	default:
		return "", false
	}
}
