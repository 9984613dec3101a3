// Package builder assembles the schema of a whole config file: the base
// skeleton, the schemas of its defaults, and the schema of every target
// found in its composed tree.
package builder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"autoschema/internal/compose"
	"autoschema/internal/merge"
	"autoschema/internal/schema"
)

// Synthesizer produces the schema of one node carrying a _target_.
type Synthesizer interface {
	Synthesize(node map[string]any) (schema.Schema, error)
}

// Loader composes a config file into the tree it contributes.
type Loader interface {
	Load(configFile string) (map[string]any, error)
}

// Builder builds config file schemas. It holds no per-build state and is
// safe for concurrent use when its collaborators are.
type Builder struct {
	synth       Synthesizer
	loader      Loader
	configsRoot string
	repoRoot    string
	log         zerolog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Builder) { b.log = log }
}

// New creates a Builder for the configs under configsRoot.
func New(s Synthesizer, l Loader, configsRoot, repoRoot string, opts ...Option) *Builder {
	b := &Builder{
		synth:       s,
		loader:      l,
		configsRoot: configsRoot,
		repoRoot:    repoRoot,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Result is the outcome of building one file. Err is nil for a complete
// schema; otherwise Schema is the permissive fallback.
type Result struct {
	Schema schema.Schema
	Err    error
}

// Partial reports whether the fallback schema was produced.
func (r Result) Partial() bool { return r.Err != nil }

// BuildFile loads and builds the schema of configFile. Failures yield the
// fallback schema together with the error.
func (b *Builder) BuildFile(configFile string) (res Result) {
	pretty := b.PrettyPath(configFile)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("unexpected failure: %v", r)
			res = Result{Schema: schema.Partial(pretty, err), Err: err}
		}
	}()

	tree, err := b.loader.Load(configFile)
	if err != nil {
		return Result{Schema: schema.Partial(pretty, err), Err: err}
	}
	s, err := b.Build(tree, configFile)
	if err != nil {
		return Result{Schema: schema.Partial(pretty, err), Err: err}
	}
	return Result{Schema: s}
}

// Build returns the schema of a loaded config tree read from configFile.
func (b *Builder) Build(tree map[string]any, configFile string) (schema.Schema, error) {
	return b.build(tree, configFile, map[string]bool{})
}

func (b *Builder) build(tree map[string]any, configFile string, visiting map[string]bool) (schema.Schema, error) {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, err
	}
	if visiting[abs] {
		return nil, &compose.CompositionError{File: configFile, Err: errors.New("defaults cycle")}
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	out := schema.Base()
	out[schema.KeyTitle] = "Auto-generated schema for " + b.PrettyPath(configFile)

	if _, err := os.Stat(configFile); err == nil {
		if out, err = b.foldDefaults(out, configFile, visiting); err != nil {
			return nil, err
		}
	}

	out[schema.KeyAdditionalProperties] = !schema.HasTarget(tree)

	for _, entry := range targetEntries(tree) {
		ts, err := b.synth.Synthesize(entry.node)
		if err != nil {
			if len(entry.path) == 0 {
				return nil, err
			}
			return nil, fmt.Errorf("%s: %w", strings.Join(entry.path, "."), err)
		}
		schema.HoistDefs(out, ts)
		if out, err = splice(out, entry.path, ts); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// foldDefaults builds the schema of every default of configFile, places it
// at the package the default lands at, and folds the results in order
// underneath out.
func (b *Builder) foldDefaults(out schema.Schema, configFile string, visiting map[string]bool) (schema.Schema, error) {
	defaults, err := compose.ReadDefaults(configFile)
	if err != nil {
		return nil, err
	}

	var layers []map[string]any
	for _, d := range defaults {
		if d.Self || d.Skip {
			continue
		}
		path, err := compose.ResolvePath(configFile, b.configsRoot, d)
		if err != nil {
			if d.Optional {
				continue
			}
			return nil, &compose.CompositionError{File: configFile, Err: fmt.Errorf("default %s: %w", d, err)}
		}
		tree, err := b.loader.Load(path)
		if err != nil {
			return nil, err
		}
		ds, err := b.build(tree, path, visiting)
		if err != nil {
			return nil, fmt.Errorf("default %s: %w", d, err)
		}
		pkg, err := compose.IncludedPackage(d, path)
		if err != nil {
			return nil, err
		}
		if pkg != "" {
			if ds, err = place(ds, strings.Split(pkg, ".")); err != nil {
				return nil, fmt.Errorf("default %s: %w", d, err)
			}
		}
		b.log.Debug().
			Str("config", b.PrettyPath(configFile)).
			Str("default", d.String()).
			Str("package", pkg).
			Msg("folded default schema")
		layers = append(layers, ds)
	}
	if len(layers) == 0 {
		return out, nil
	}

	acc, err := merge.Fold(append(layers, out), DefaultsPolicy(), pruneReplacedTargets)
	if err != nil {
		return nil, err
	}
	if open, ok := acc[schema.KeyAdditionalProperties].(bool); ok && !open {
		delete(acc, schema.KeyAdditionalProperties)
	}
	return acc, nil
}

// place returns an open object schema holding ds at the properties location
// of path. The definitions of ds stay at the root.
func place(ds schema.Schema, path []string) (schema.Schema, error) {
	layer := schema.Schema{
		schema.KeyType:                 "object",
		schema.KeyAdditionalProperties: true,
	}
	schema.HoistDefs(layer, ds)
	return splice(layer, path, ds)
}

// DefaultsPolicy resolves conflicts between the schema of a default and the
// schema of the config that includes it: the including side wins on the
// target, defaults, titles, descriptions and required lists, and a closed
// object stays open if either side is open.
func DefaultsPolicy() merge.Policy {
	return merge.Policy{Handlers: map[string]merge.Resolver{
		schema.KeyTarget:               merge.Overwrite,
		schema.KeyDefault:              merge.Overwrite,
		schema.KeyTitle:                merge.Overwrite,
		schema.KeyDescription:          merge.Overwrite,
		schema.KeyRequired:             merge.Overwrite,
		schema.KeyAdditionalProperties: merge.EitherTrue,
	}}
}

// pruneReplacedTargets returns parent without the object schemas that child
// replaces with a schema for a different target.
func pruneReplacedTargets(parent, child map[string]any) map[string]any {
	out, _ := prune(parent, child)
	return out
}

func prune(parent, child map[string]any) (map[string]any, bool) {
	if pc, cc := targetConst(parent), targetConst(child); pc != "" && cc != "" && pc != cc {
		return map[string]any{}, true
	}
	pp := schema.Properties(parent)
	cp := schema.Properties(child)
	if pp == nil || cp == nil {
		return parent, false
	}
	var out map[string]any
	for key, cv := range cp {
		pv, ok := schema.AsMap(pp[key])
		if !ok {
			continue
		}
		cm, ok := schema.AsMap(cv)
		if !ok {
			continue
		}
		pruned, changed := prune(pv, cm)
		if !changed {
			continue
		}
		if out == nil {
			out = schema.Clone(parent)
		}
		schema.EnsureProperties(out)[key] = pruned
	}
	if out == nil {
		return parent, false
	}
	return out, true
}

func targetConst(s map[string]any) string {
	tp, ok := schema.AsMap(schema.Properties(s)[schema.KeyTarget])
	if !ok {
		return ""
	}
	c, _ := tp[schema.KeyConst].(string)
	return c
}

// splice merges a target schema into out at the properties location of
// path, creating open object stand-ins along the way.
func splice(out schema.Schema, path []string, ts schema.Schema) (schema.Schema, error) {
	if len(path) == 0 {
		merged, err := merge.Merge(out, ts, merge.OverwritePolicy())
		if err != nil {
			return nil, err
		}
		// The file keeps its own title; the target's name is only useful on
		// nested properties.
		merged[schema.KeyTitle] = out[schema.KeyTitle]
		return merged, nil
	}
	where := map[string]any(out)
	for _, key := range path[:len(path)-1] {
		props := schema.EnsureProperties(where)
		next, ok := schema.AsMap(props[key])
		if !ok {
			next = map[string]any{
				schema.KeyType:                 "object",
				schema.KeyAdditionalProperties: true,
			}
			props[key] = next
		}
		where = next
	}
	props := schema.EnsureProperties(where)
	last := path[len(path)-1]
	existing, ok := schema.AsMap(props[last])
	if !ok {
		props[last] = ts
		return out, nil
	}
	merged, err := merge.Merge(existing, ts, merge.OverwritePolicy())
	if err != nil {
		return nil, err
	}
	props[last] = merged
	return out, nil
}

type targetEntry struct {
	path []string
	node map[string]any
}

// targetEntries finds every mapping in tree carrying a _target_, parents
// before children.
func targetEntries(tree map[string]any) []targetEntry {
	var out []targetEntry
	var walk func(node map[string]any, path []string)
	walk = func(node map[string]any, path []string) {
		if schema.HasTarget(node) {
			out = append(out, targetEntry{path: append([]string(nil), path...), node: node})
		}
		keys := make([]string, 0, len(node))
		for k := range node {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if child, ok := schema.AsMap(node[k]); ok {
				walk(child, append(path, k))
			}
		}
	}
	walk(tree, nil)
	return out
}

// PrettyPath renders configFile relative to the configs root, or the repo
// root when it lies outside.
func (b *Builder) PrettyPath(configFile string) string {
	for _, root := range []string{b.configsRoot, b.repoRoot} {
		if root == "" {
			continue
		}
		if rel, err := filepath.Rel(root, configFile); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(configFile)
}
