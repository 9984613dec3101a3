// Package synth derives the JSON schema of a single config node from the
// target it instantiates.
package synth

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"autoschema/internal/schema"
	"autoschema/internal/target"
)

const targetDocsURL = "https://hydra.cc/docs/advanced/instantiate_objects/overview/"

// Synthesizer builds target schemas. It is safe for concurrent use once
// constructed.
type Synthesizer struct {
	resolver     target.Resolver
	overrides    map[string]Override
	enumHandlers map[string]EnumHandler
	log          zerolog.Logger
}

// New creates a Synthesizer resolving targets through r.
func New(r target.Resolver, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		resolver:     r,
		overrides:    map[string]Override{},
		enumHandlers: map[string]EnumHandler{},
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns the schema of a config node carrying a _target_ key.
func (s *Synthesizer) Synthesize(node map[string]any) (schema.Schema, error) {
	ref, ok := node[schema.KeyTarget].(string)
	if !ok || ref == "" {
		return nil, &SchemaGenerationError{Target: fmt.Sprint(node[schema.KeyTarget]), Reason: "_target_ must be a non-empty string"}
	}
	c, err := s.resolver.Resolve(ref)
	if err != nil {
		return nil, err
	}

	out, explicit, err := s.generate(ref, c)
	if err != nil {
		return nil, err
	}
	override, hasOverride := s.overrides[ref]

	describe(out, c, explicit)

	desc := fmt.Sprintf("Based on the signature of %s.\n", ref)
	if summary := firstSummary(c.Docs()); summary != "" {
		desc += summary
	}
	out[schema.KeyDescription] = desc
	if _, ok := out[schema.KeyTitle]; !ok {
		out[schema.KeyTitle] = c.Name()
	}

	props := schema.EnsureProperties(out)
	tp, ok := props[schema.KeyTarget].(map[string]any)
	if !ok {
		tp = map[string]any{}
		props[schema.KeyTarget] = tp
	}
	tp[schema.KeyType] = "string"
	tp[schema.KeyTitle] = "Target"
	tp[schema.KeyConst] = ref
	tp[schema.KeyDescription] = fmt.Sprintf(
		"Target to instantiate, in this case: `%s`\nSee the Hydra docs for '_target_': %s\n", ref, targetDocsURL)

	extra := c.AcceptsExtra()
	if hasOverride && override.AcceptsExtra != nil {
		extra = *override.AcceptsExtra
	}
	out[schema.KeyAdditionalProperties] = extra

	if schema.IsTruthy(node[schema.KeyPartial]) {
		out[schema.KeyRequired] = []any{}
	}

	s.log.Debug().Str("target", ref).Str("kind", c.Kind().String()).Int("properties", len(props)).Msg("synthesized target schema")
	return out, nil
}

// generate produces the object schema of c along with any descriptions
// that were set explicitly on parameters.
func (s *Synthesizer) generate(ref string, c target.Constructible) (schema.Schema, map[string]string, error) {
	g := &generator{ref: ref, handlers: s.enumHandlers}
	explicit := map[string]string{}

	override, hasOverride := s.overrides[ref]
	if rec, ok := c.(*target.Record); ok && !hasOverride {
		out, err := g.record(rec.Type)
		return out, explicit, err
	}

	params, err := c.Parameters()
	if err != nil {
		var sge *SchemaGenerationError
		if errors.As(err, &sge) {
			return nil, nil, err
		}
		return nil, nil, &SchemaGenerationError{Target: ref, Reason: err.Error()}
	}
	if hasOverride {
		params = override.apply(params)
	}

	out := schema.Schema{schema.KeyType: "object"}
	props := schema.EnsureProperties(out)
	required := []any{}
	for _, p := range params {
		ps, err := g.param(p)
		if err != nil {
			return nil, nil, err
		}
		schema.HoistDefs(out, ps)
		props[p.Name] = ps
		if p.Description != "" {
			explicit[p.Name] = p.Description
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	out[schema.KeyRequired] = required
	return out, explicit, nil
}

// describe sets the description of every property: an explicit one first,
// then the first match in the target's docs, then a generic sentence.
func describe(out schema.Schema, c target.Constructible, explicit map[string]string) {
	found := map[string]string{}
	for _, doc := range c.Docs() {
		for name, desc := range doc.Params {
			if _, ok := found[name]; !ok && desc != "" {
				found[name] = desc
			}
		}
	}
	for name, v := range schema.Properties(out) {
		prop, ok := v.(map[string]any)
		if !ok {
			continue
		}
		switch {
		case explicit[name] != "":
			prop[schema.KeyDescription] = explicit[name]
		case found[name] != "":
			prop[schema.KeyDescription] = found[name]
		default:
			prop[schema.KeyDescription] = fmt.Sprintf("The %s parameter of the %s.", name, c.Name())
		}
	}
}

func firstSummary(docs []target.Doc) string {
	for _, d := range docs {
		if d.Summary != "" {
			return d.Summary
		}
	}
	return ""
}
