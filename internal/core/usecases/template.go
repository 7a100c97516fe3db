package usecases

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-$]+)\s*\}\}`)

// Render replaces {{ name }} placeholders in s with the session variables.
// Unknown names render as the empty string.
func Render(s string, vars map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}

// RenderValue walks a decoded JSON value and renders every string leaf.
// A string made of a single placeholder is replaced by the raw variable so
// numbers stay numbers in the encoded body.
func RenderValue(v any, vars map[string]any) any {
	switch val := v.(type) {
	case string:
		if m := placeholderRe.FindStringSubmatchIndex(val); m != nil && m[0] == 0 && m[1] == len(val) {
			if raw, ok := vars[val[m[2]:m[3]]]; ok {
				return raw
			}
			return ""
		}
		return Render(val, vars)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = RenderValue(item, vars)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = RenderValue(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = RenderValue(item, vars)
		}
		return out
	default:
		return v
	}
}
