package synth

import (
	"reflect"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"

	"autoschema/internal/target"
)

// ParameterHint overlays hand-written details on one inferred parameter.
// Only the fields that are set take effect.
type ParameterHint struct {
	Type        reflect.Type
	Enum        *target.Enum
	Default     any
	HasDefault  bool
	Required    *bool
	Description string
	// Omit drops the parameter from the schema.
	Omit bool
}

// Override replaces parts of the inferred signature of one target.
type Override struct {
	Params       map[string]ParameterHint
	AcceptsExtra *bool
}

// EnumHandler may rewrite the schema generated for an enum before it is
// checked and used.
type EnumHandler func(e *target.Enum, s *jsonschema.Schema) (*jsonschema.Schema, error)

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithOverrides sets per-target signature overrides, keyed by reference.
func WithOverrides(overrides map[string]Override) Option {
	return func(s *Synthesizer) {
		for ref, o := range overrides {
			s.overrides[ref] = o
		}
	}
}

// WithEnumHandlers sets enum schema handlers, keyed by enum name.
func WithEnumHandlers(handlers map[string]EnumHandler) Option {
	return func(s *Synthesizer) {
		for name, h := range handlers {
			s.enumHandlers[name] = h
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Synthesizer) {
		s.log = log
	}
}

func (o Override) apply(params []target.Parameter) []target.Parameter {
	out := make([]target.Parameter, 0, len(params))
	seen := map[string]bool{}
	for _, p := range params {
		seen[p.Name] = true
		h, ok := o.Params[p.Name]
		if !ok {
			out = append(out, p)
			continue
		}
		if h.Omit {
			continue
		}
		out = append(out, h.overlay(p))
	}

	var added []string
	for name, h := range o.Params {
		if !seen[name] && !h.Omit {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	for _, name := range added {
		p := target.Parameter{Name: name, Required: true}
		out = append(out, o.Params[name].overlay(p))
	}
	return out
}

func (h ParameterHint) overlay(p target.Parameter) target.Parameter {
	if h.Type != nil {
		p.Type, p.Enum = h.Type, nil
	}
	if h.Enum != nil {
		p.Enum = h.Enum
	}
	if h.HasDefault {
		p.Default, p.HasDefault = h.Default, true
		p.Required = false
	}
	if h.Required != nil {
		p.Required = *h.Required
	}
	if h.Description != "" {
		p.Description = h.Description
	}
	return p
}
