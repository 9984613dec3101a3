// Package schema holds the JSON Schema trees produced for config files.
//
// Schemas are kept as plain nested mappings (the shape encoding/json
// produces) so fragments coming from different sources can be merged,
// spliced and written without a lossy round trip through a typed model.
package schema

import (
	"strings"
)

// Schema is a JSON Schema document or fragment.
type Schema = map[string]any

// Well-known schema and config keys.
const (
	KeyType                 = "type"
	KeyProperties           = "properties"
	KeyAdditionalProperties = "additionalProperties"
	KeyRequired             = "required"
	KeyTitle                = "title"
	KeyDescription          = "description"
	KeyDefault              = "default"
	KeyConst                = "const"
	KeyDefs                 = "$defs"
	KeyRef                  = "$ref"

	KeyTarget   = "_target_"
	KeyPartial  = "_partial_"
	KeyDefaults = "defaults"
	KeySelf     = "_self_"
)

// AsMap returns v as a mapping if it is one.
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// Clone returns a deep copy of s.
func Clone(s Schema) Schema {
	if s == nil {
		return nil
	}
	return CloneValue(s).(map[string]any)
}

// CloneValue deep-copies mappings and slices; scalars are returned as-is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	default:
		return val
	}
}

// Properties returns the properties mapping of s, or nil.
func Properties(s Schema) map[string]any {
	props, _ := AsMap(s[KeyProperties])
	return props
}

// EnsureProperties returns the properties mapping of s, creating it if needed.
func EnsureProperties(s Schema) map[string]any {
	if props, ok := AsMap(s[KeyProperties]); ok {
		return props
	}
	props := map[string]any{}
	s[KeyProperties] = props
	return props
}

// HoistDefs moves the $defs of frag into the root-level $defs of root.
// Later definitions replace earlier ones with the same name.
func HoistDefs(root, frag Schema) {
	defs, ok := AsMap(frag[KeyDefs])
	delete(frag, KeyDefs)
	if !ok || len(defs) == 0 {
		return
	}
	rootDefs, ok := AsMap(root[KeyDefs])
	if !ok {
		rootDefs = map[string]any{}
		root[KeyDefs] = rootDefs
	}
	for name, def := range defs {
		rootDefs[name] = def
	}
}

// HasTarget reports whether a config node declares a _target_.
func HasTarget(node map[string]any) bool {
	_, ok := node[KeyTarget]
	return ok
}

// IsTruthy interprets a config value the way YAML configs spell booleans.
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(val) {
		case "true", "yes", "on", "1":
			return true
		}
		return false
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}
