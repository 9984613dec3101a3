package target

import (
	"fmt"
	"reflect"
	"strings"
)

var (
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	scalarTypes = map[string]reflect.Type{
		"int":     reflect.TypeOf(int(0)),
		"float":   reflect.TypeOf(float64(0)),
		"str":     reflect.TypeOf(""),
		"string":  reflect.TypeOf(""),
		"path":    reflect.TypeOf(""),
		"Path":    reflect.TypeOf(""),
		"bool":    reflect.TypeOf(false),
		"any":     anyType,
		"Any":     anyType,
		"object":  anyType,
		"dict":    reflect.TypeOf(map[string]any{}),
		"mapping": reflect.TypeOf(map[string]any{}),
		"list":    reflect.TypeOf([]any{}),
	}
)

// EnumLookup finds an enum by name.
type EnumLookup func(name string) (*Enum, bool)

// ParseType turns a type expression such as "float", "list[int]",
// "dict[str, float]", "optional[str]" or "int | None" into a Go type. A
// bare enum name yields the enum instead.
func ParseType(expr string, enums EnumLookup) (reflect.Type, *Enum, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil, nil
	}
	if alts := splitTop(expr, '|'); len(alts) > 1 {
		var rest []string
		for _, alt := range alts {
			if alt != "None" && alt != "null" {
				rest = append(rest, alt)
			}
		}
		switch {
		case len(rest) == 0:
			return anyType, nil, nil
		case len(rest) == 1:
			t, e, err := ParseType(rest[0], enums)
			if err != nil || e != nil {
				return t, e, err
			}
			return reflect.PointerTo(t), nil, nil
		default:
			for _, alt := range rest {
				if _, _, err := ParseType(alt, enums); err != nil {
					return nil, nil, err
				}
			}
			return anyType, nil, nil
		}
	}

	head, args, err := splitGeneric(expr)
	if err != nil {
		return nil, nil, err
	}
	if args == nil {
		if t, ok := scalarTypes[head]; ok {
			return t, nil, nil
		}
		if enums != nil {
			if e, ok := enums(head); ok {
				return reflect.TypeOf(""), e, nil
			}
		}
		return nil, nil, fmt.Errorf("unknown type %q", head)
	}

	elem := func(i int) (reflect.Type, error) {
		if i >= len(args) {
			return nil, fmt.Errorf("type %q: missing type argument %d", expr, i+1)
		}
		t, _, err := ParseType(args[i], enums)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return anyType, nil
		}
		return t, nil
	}
	switch strings.ToLower(head) {
	case "optional":
		t, e, err := ParseType(args[0], enums)
		if err != nil || e != nil {
			return t, e, err
		}
		return reflect.PointerTo(t), nil, nil
	case "list", "sequence", "tuple", "set":
		t, err := elem(0)
		if err != nil {
			return nil, nil, err
		}
		return reflect.SliceOf(t), nil, nil
	case "dict", "mapping":
		v, err := elem(len(args) - 1)
		if err != nil {
			return nil, nil, err
		}
		return reflect.MapOf(reflect.TypeOf(""), v), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown generic type %q", head)
	}
}

// splitGeneric splits "name[a, b]" into name and its arguments. args is nil
// for a bare name.
func splitGeneric(expr string) (string, []string, error) {
	open := strings.IndexByte(expr, '[')
	if open < 0 {
		return expr, nil, nil
	}
	if !strings.HasSuffix(expr, "]") {
		return "", nil, fmt.Errorf("malformed type %q", expr)
	}
	head := strings.TrimSpace(expr[:open])
	args := splitTop(expr[open+1:len(expr)-1], ',')
	var out []string
	for _, a := range args {
		if a != "..." && a != "" {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return "", nil, fmt.Errorf("type %q: empty type arguments", expr)
	}
	return head, out, nil
}

// splitTop splits s on sep outside brackets and trims each part.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
