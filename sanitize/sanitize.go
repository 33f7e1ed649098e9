// Package sanitize strips NoSQL operator keys from decoded JSON structures
// so client-supplied documents cannot smuggle query operators (e.g. "$gt",
// "a.b" path traversal) into database filters.
package sanitize

import "strings"

// Blocked reports whether a key must be removed: keys starting with '$'
// address operators, keys containing '.' address nested paths.
func Blocked(key string) bool {
	return strings.HasPrefix(key, "$") || strings.Contains(key, ".")
}

// Clean returns a sanitized copy of v. Maps and slices are rebuilt with
// blocked keys dropped at every nesting level; all other values pass
// through unchanged. The input is never mutated.
func Clean(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CleanMap(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clean(elem)
		}
		return out
	default:
		return v
	}
}

// CleanMap returns a sanitized copy of m. See Clean.
func CleanMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, val := range m {
		if Blocked(key) {
			continue
		}
		out[key] = Clean(val)
	}

	return out
}
