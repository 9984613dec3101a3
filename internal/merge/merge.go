// Package merge deep-merges nested schema trees.
//
// Merge is the primitive every schema operation is built on: composing the
// layers of a defaults list, splicing a target's schema into the document of
// a config file, and composing config trees themselves. Conflicts between
// scalar values are settled by a Policy; a conflict no policy claims is an
// error, never a silent pick.
package merge

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"autoschema/internal/schema"
)

// Resolver settles a conflict between the value already present (a) and the
// incoming value (b).
type Resolver func(a, b any) any

// Overwrite keeps the incoming value.
func Overwrite(_, b any) any { return b }

// KeepPrevious keeps the value already present.
func KeepPrevious(a, _ any) any { return a }

// EitherTrue resolves boolean conflicts to true; used for
// additionalProperties, where an open layer keeps the result open.
func EitherTrue(a, b any) any {
	return schema.IsTruthy(a) || schema.IsTruthy(b)
}

// Policy decides how scalar conflicts are resolved.
type Policy struct {
	// Handlers are keyed either by the full dotted key path
	// ("properties.lr.default") or by a bare key name ("title"). A handler
	// found for a mapping-valued key also settles every conflict nested
	// below it.
	Handlers map[string]Resolver

	// Fallback settles conflicts no handler claims. When nil such a
	// conflict is reported as a *ConflictError.
	Fallback Resolver
}

// OverwritePolicy lets the incoming side win every conflict.
func OverwritePolicy() Policy {
	return Policy{Fallback: Overwrite}
}

// ConflictError reports two values that disagree with no policy to decide
// between them. It signals a broken invariant in the merge tree rather than
// a bad input.
type ConflictError struct {
	Path []string
	A, B any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("merge conflict at %s: %v != %v", strings.Join(e.Path, "."), e.A, e.B)
}

// Merge returns the deep union of a and b. Keys present on one side only are
// copied; mapping values present on both sides are merged recursively; equal
// values are kept; unequal values go through the policy. Neither input is
// modified.
func Merge(a, b map[string]any, p Policy) (map[string]any, error) {
	return mergeAt(a, b, nil, p, nil)
}

// Fold merges layers left to right, so later layers override earlier ones.
// When prepare is non-nil it rewrites the accumulated result before each
// layer is merged into it.
func Fold(layers []map[string]any, p Policy, prepare func(acc, layer map[string]any) map[string]any) (map[string]any, error) {
	out := map[string]any{}
	for _, layer := range layers {
		if prepare != nil {
			out = prepare(out, layer)
		}
		merged, err := Merge(out, layer, p)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	return out, nil
}

func mergeAt(a, b map[string]any, path []string, p Policy, scope Resolver) (map[string]any, error) {
	out := schema.Clone(a)
	if out == nil {
		out = make(map[string]any, len(b))
	}

	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		bv := b[key]
		av, exists := a[key]
		if !exists {
			out[key] = schema.CloneValue(bv)
			continue
		}

		keyPath := append(path[:len(path):len(path)], key)
		handler := p.lookup(keyPath, key, scope)

		am, aIsMap := av.(map[string]any)
		bm, bIsMap := bv.(map[string]any)
		if aIsMap && bIsMap {
			merged, err := mergeAt(am, bm, keyPath, p, handler)
			if err != nil {
				return nil, err
			}
			out[key] = merged
			continue
		}

		if Equal(av, bv) {
			continue
		}

		resolve := handler
		if resolve == nil {
			resolve = p.Fallback
		}
		if resolve == nil {
			return nil, &ConflictError{Path: keyPath, A: av, B: bv}
		}
		out[key] = schema.CloneValue(resolve(av, bv))
	}

	return out, nil
}

func (p Policy) lookup(path []string, key string, scope Resolver) Resolver {
	if h, ok := p.Handlers[strings.Join(path, ".")]; ok {
		return h
	}
	if h, ok := p.Handlers[key]; ok {
		return h
	}
	return scope
}

// Equal compares two decoded values. Numbers compare by value regardless of
// their Go type, so 1 (from YAML) equals 1.0 (from JSON).
func Equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, item := range av {
			other, ok := bv[k]
			if !ok || !Equal(item, other) {
				return false
			}
		}
		return true
	case []any, []string:
		al, bl := toList(a), toList(b)
		if bl == nil || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !Equal(al[i], bl[i]) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

func toList(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
