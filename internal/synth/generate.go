package synth

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"autoschema/internal/schema"
	"autoschema/internal/target"
)

// generator turns parameter types into schema fragments for one target.
type generator struct {
	ref      string
	handlers map[string]EnumHandler
}

// generationPanic carries an error out of an invopop Mapper callback.
type generationPanic struct{ err error }

func (g *generator) reflector(expand bool) *jsonschema.Reflector {
	return &jsonschema.Reflector{
		Anonymous:      true,
		ExpandedStruct: expand,
		Mapper:         g.mapEnum,
	}
}

func (g *generator) mapEnum(t reflect.Type) *jsonschema.Schema {
	e, ok := target.EnumFromType(t)
	if !ok {
		return nil
	}
	s, err := g.enumSchema(e)
	if err != nil {
		panic(generationPanic{err})
	}
	return s
}

// reflect runs the reflector and converts invopop panics into errors.
func (g *generator) reflect(t reflect.Type, expand bool) (s schema.Schema, err error) {
	defer func() {
		if r := recover(); r != nil {
			if gp, ok := r.(generationPanic); ok {
				err = gp.err
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	return toMap(g.reflector(expand).ReflectFromType(t))
}

// record generates the schema of a struct target directly from its type.
func (g *generator) record(t reflect.Type) (schema.Schema, error) {
	if err := checkSupported(t); err != nil {
		return nil, &SchemaGenerationError{Target: g.ref, Reason: err.Error()}
	}
	s, err := g.reflect(t, t.Name() != "")
	if err != nil {
		return nil, &SchemaGenerationError{Target: g.ref, Reason: err.Error()}
	}
	if _, ok := s[schema.KeyRequired]; !ok {
		s[schema.KeyRequired] = []any{}
	}
	return s, nil
}

// param generates the schema of a single parameter, without description.
func (g *generator) param(p target.Parameter) (schema.Schema, error) {
	fail := func(reason string) error {
		return &SchemaGenerationError{Target: g.ref, Param: p.Name, Reason: reason}
	}

	var s schema.Schema
	switch {
	case p.Enum != nil:
		js, err := g.enumSchema(p.Enum)
		if err != nil {
			return nil, fail(err.Error())
		}
		if s, err = toMap(js); err != nil {
			return nil, fail(err.Error())
		}
	case p.Type == nil:
		return nil, fail("parameter has no type annotation")
	default:
		t, nullable := p.Type, false
		for t.Kind() == reflect.Ptr {
			t, nullable = t.Elem(), true
		}
		if err := checkSupported(t); err != nil {
			return nil, fail(err.Error())
		}
		var err error
		if s, err = g.reflect(t, false); err != nil {
			return nil, fail(err.Error())
		}
		if nullable {
			s = nullableOf(s)
		}
	}
	if p.HasDefault {
		s[schema.KeyDefault] = p.Default
	}
	return s, nil
}

// enumSchema builds the schema of an enum, letting a registered handler
// rewrite it first. Every resulting value must be a JSON scalar.
func (g *generator) enumSchema(e *target.Enum) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{Title: target.ShortName(e.Name), Description: e.Doc}
	for _, m := range e.Members {
		s.Enum = append(s.Enum, m.Value)
	}
	if h, ok := g.handlers[e.Name]; ok {
		var err error
		if s, err = h(e, s); err != nil {
			return nil, fmt.Errorf("enum handler for %s: %w", e.Name, err)
		}
	}

	kinds := map[string]bool{}
	for _, v := range s.Enum {
		kind, ok := scalarKind(v)
		if !ok {
			return nil, fmt.Errorf("enum %s has a member value of type %T that is not a JSON scalar; register an enum handler for it", e.Name, v)
		}
		kinds[kind] = true
	}
	if kinds["integer"] && kinds["number"] {
		delete(kinds, "integer")
	}
	if s.Type == "" && len(kinds) == 1 {
		for kind := range kinds {
			s.Type = kind
		}
	}
	return s, nil
}

func scalarKind(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "null", true
	case string:
		return "string", true
	case bool:
		return "boolean", true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "integer", true
	case float32:
		return "number", true
	case float64:
		if v == float64(int64(v)) {
			return "integer", true
		}
		return "number", true
	}
	return "", false
}

// checkSupported rejects kinds that have no JSON representation.
func checkSupported(t reflect.Type) error {
	return walkKinds(t, map[reflect.Type]bool{})
}

func walkKinds(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil
	}
	seen[t] = true
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer, reflect.Uintptr:
		return fmt.Errorf("type %s cannot be represented in JSON", t)
	case reflect.Ptr, reflect.Slice, reflect.Array:
		return walkKinds(t.Elem(), seen)
	case reflect.Map:
		if err := walkKinds(t.Key(), seen); err != nil {
			return err
		}
		return walkKinds(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if err := walkKinds(f.Type, seen); err != nil {
				return fmt.Errorf("field %s: %w", f.Name, err)
			}
		}
	}
	return nil
}

// nullableOf allows null alongside s, keeping any $defs at the top.
func nullableOf(s schema.Schema) schema.Schema {
	out := schema.Schema{}
	if defs, ok := s[schema.KeyDefs]; ok {
		out[schema.KeyDefs] = defs
		delete(s, schema.KeyDefs)
	}
	out["anyOf"] = []any{s, map[string]any{schema.KeyType: "null"}}
	return out
}

func toMap(js *jsonschema.Schema) (schema.Schema, error) {
	data, err := json.Marshal(js)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	var s schema.Schema
	switch v := v.(type) {
	case map[string]any:
		s = v
	case bool:
		// invopop marshals the "anything" schema as true.
		if !v {
			return nil, fmt.Errorf("type admits no values")
		}
		s = schema.Schema{}
	default:
		return nil, fmt.Errorf("unexpected schema document %s", data)
	}
	delete(s, "$schema")
	delete(s, "$id")
	return s, nil
}
