package builder

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoschema/internal/compose"
	"autoschema/internal/merge"
	"autoschema/internal/schema"
	"autoschema/internal/synth"
	"autoschema/internal/target"
)

type window struct {
	Size int `json:"size"`
}

func newBuilder(t *testing.T, root string) *Builder {
	t.Helper()
	reg := target.NewRegistry().MustRegister(
		&target.Class{
			Ref: "pkg.MyClass",
			Params: []target.Parameter{
				{Name: "lr", Type: reflect.TypeOf(float64(0)), Default: 0.001, HasDefault: true},
			},
		},
		&target.Function{
			Ref:        "pkg.make",
			Params:     []target.Parameter{{Name: "size", Type: reflect.TypeOf(0), Required: true}},
			VarKeyword: true,
		},
		&target.Function{
			Ref:    "pkg.windowed",
			Params: []target.Parameter{{Name: "window", Type: reflect.TypeOf(window{}), Required: true}},
		},
	)
	return New(synth.New(reg), compose.New(root), root, filepath.Dir(root))
}

func writeConfigs(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func prop(t *testing.T, s map[string]any, path ...string) map[string]any {
	t.Helper()
	cur := s
	for _, key := range path {
		next, ok := schema.Properties(cur)[key].(map[string]any)
		require.True(t, ok, "no property %s in %v", key, schema.Properties(cur))
		cur = next
	}
	return cur
}

func TestBuildFile_TargetAtRoot(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{"config.yaml": "_target_: pkg.MyClass\nlr: 0.01\n"})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "config.yaml"))
	require.NoError(t, res.Err)
	assert.False(t, res.Partial())

	s := res.Schema
	assert.Equal(t, "pkg.MyClass", prop(t, s, "_target_")["const"])
	assert.Equal(t, "number", prop(t, s, "lr")["type"])
	assert.Equal(t, []any{}, s["required"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, "Auto-generated schema for config.yaml", s["title"])
	// Skeleton properties survive the merge.
	assert.Contains(t, schema.Properties(s), "defaults")
}

func TestBuildFile_NestedTargets(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{
		"train.yaml": `model:
  _target_: pkg.MyClass
optim:
  inner:
    _target_: pkg.make
    size: 3
windowed:
  _target_: pkg.windowed
  window: {size: 2}
plain: 1
`,
	})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "train.yaml"))
	require.NoError(t, res.Err)
	s := res.Schema

	assert.Equal(t, true, s["additionalProperties"])
	assert.Equal(t, false, prop(t, s, "model")["additionalProperties"])

	optim := prop(t, s, "optim")
	assert.Equal(t, "object", optim["type"])
	assert.Equal(t, true, optim["additionalProperties"])
	inner := prop(t, s, "optim", "inner")
	assert.Equal(t, "pkg.make", prop(t, inner, "_target_")["const"])
	assert.Equal(t, true, inner["additionalProperties"])

	defs, ok := s["$defs"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, defs, "window")
	assert.NotContains(t, prop(t, s, "windowed"), "$defs")
	assert.NotContains(t, schema.Properties(s), "plain")
}

func TestBuildFile_DefaultsChain(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{
		"a.yaml":      "_target_: pkg.MyClass\n",
		"config.yaml": "defaults:\n  - a\n  - _self_\nname: x\n",
		"b.yaml":      "x: 1\n",
		"open.yaml":   "defaults:\n  - b\n  - _self_\ny: 2\n",
	})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "config.yaml"))
	require.NoError(t, res.Err)
	s := res.Schema
	assert.Equal(t, "number", prop(t, s, "lr")["type"])
	assert.Equal(t, "pkg.MyClass", prop(t, s, "_target_")["const"])
	assert.Equal(t, false, s["additionalProperties"])
	assert.Equal(t, "Auto-generated schema for config.yaml", s["title"])

	res = b.BuildFile(filepath.Join(root, "open.yaml"))
	require.NoError(t, res.Err)
	assert.Equal(t, true, res.Schema["additionalProperties"])
}

func TestBuildFile_LaterDefaultReplacesTarget(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{
		"a.yaml":      "model:\n  _target_: pkg.MyClass\n",
		"c.yaml":      "model:\n  _target_: pkg.make\n  size: 1\n",
		"config.yaml": "defaults:\n  - a\n  - c\n  - _self_\n",
	})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "config.yaml"))
	require.NoError(t, res.Err)
	model := prop(t, res.Schema, "model")
	assert.Equal(t, "pkg.make", prop(t, model, "_target_")["const"])
	assert.NotContains(t, schema.Properties(model), "lr")
	assert.Contains(t, schema.Properties(model), "size")
}

func TestBuildFile_GroupDefaultStaysUnderItsPackage(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{
		"model/small.yaml": "_target_: pkg.make\nsize: 3\n",
		"config.yaml":      "defaults:\n  - model: small\n  - _self_\nname: x\n",
	})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "config.yaml"))
	require.NoError(t, res.Err)
	s := res.Schema

	assert.NotContains(t, s, "required")
	assert.Equal(t, true, s["additionalProperties"])
	assert.NotContains(t, schema.Properties(s), "size")
	assert.NotContains(t, prop(t, s, "_target_"), "const")
	assert.Equal(t, "Auto-generated schema for config.yaml", s["title"])

	model := prop(t, s, "model")
	assert.Equal(t, "pkg.make", prop(t, model, "_target_")["const"])
	assert.Contains(t, schema.Properties(model), "size")
}

func TestBuildFile_DefaultPackages(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{
		"data/set.yaml": "_target_: pkg.make\nsize: 3\n",
		"db/mysql.yaml": "# @package _global_\n_target_: pkg.MyClass\n",
		"train.yaml":    "defaults:\n  - data@train.data: set\n  - db: mysql\n  - _self_\n",
	})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "train.yaml"))
	require.NoError(t, res.Err)
	s := res.Schema

	// A _global_ header folds the default at the root of the includer.
	assert.Equal(t, "pkg.MyClass", prop(t, s, "_target_")["const"])
	assert.Contains(t, schema.Properties(s), "lr")
	assert.NotContains(t, schema.Properties(s), "db")

	// An explicit package wins over the group name.
	assert.NotContains(t, schema.Properties(s), "data")
	assert.NotContains(t, schema.Properties(s), "size")
	data := prop(t, s, "train", "data")
	assert.Equal(t, "pkg.make", prop(t, data, "_target_")["const"])
}

func TestBuildFile_UnresolvableTargetFallsBack(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{"bad.yaml": "_target_: nonexistent.Thing\n"})
	b := newBuilder(t, root)

	res := b.BuildFile(filepath.Join(root, "bad.yaml"))
	require.True(t, res.Partial())
	var unresolvable *target.UnresolvableTargetError
	assert.True(t, errors.As(res.Err, &unresolvable))

	assert.Equal(t, true, res.Schema["additionalProperties"])
	assert.Equal(t, "Partial schema for bad.yaml", res.Schema["title"])
	assert.Contains(t, res.Schema["description"], "nonexistent.Thing")
}

func TestBuildFile_CompositionErrors(t *testing.T) {
	root := t.TempDir()
	writeConfigs(t, root, map[string]string{
		"loop_a.yaml":  "defaults:\n  - loop_b\n",
		"loop_b.yaml":  "defaults:\n  - loop_a\n",
		"missing.yaml": "defaults:\n  - nowhere\n",
		"nested.yaml":  "model:\n  _target_: nonexistent.Thing\n",
	})
	b := newBuilder(t, root)

	for _, name := range []string{"loop_a.yaml", "missing.yaml"} {
		res := b.BuildFile(filepath.Join(root, name))
		var ce *compose.CompositionError
		assert.True(t, errors.As(res.Err, &ce), "%s: got %v", name, res.Err)
		assert.Equal(t, true, res.Schema["additionalProperties"])
	}

	res := b.BuildFile(filepath.Join(root, "nested.yaml"))
	assert.ErrorContains(t, res.Err, "model: ")
}

func TestPruneReplacedTargets(t *testing.T) {
	withTarget := func(ref string, extra string) map[string]any {
		return map[string]any{
			"properties": map[string]any{
				"_target_": map[string]any{"const": ref},
				extra:      map[string]any{"type": "integer"},
			},
		}
	}
	parent := map[string]any{"properties": map[string]any{
		"model": withTarget("pkg.A", "depth"),
		"keep":  withTarget("pkg.K", "k"),
	}}
	child := map[string]any{"properties": map[string]any{
		"model": withTarget("pkg.B", "patch"),
		"keep":  withTarget("pkg.K", "k2"),
	}}

	pruned := pruneReplacedTargets(parent, child)
	merged, err := merge.Merge(pruned, child, DefaultsPolicy())
	require.NoError(t, err)

	want := map[string]any{"properties": map[string]any{
		"model": withTarget("pkg.B", "patch"),
		"keep": map[string]any{"properties": map[string]any{
			"_target_": map[string]any{"const": "pkg.K"},
			"k":        map[string]any{"type": "integer"},
			"k2":       map[string]any{"type": "integer"},
		}},
	}}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("merged schema mismatch (-want +got):\n%s", diff)
	}
	// The parent itself is left alone.
	assert.Contains(t, prop(t, parent, "model")["properties"], "depth")
}

func TestPrettyPath(t *testing.T) {
	b := New(nil, nil, "/repo/conf", "/repo")
	assert.Equal(t, "model/a.yaml", b.PrettyPath("/repo/conf/model/a.yaml"))
	assert.Equal(t, "other/b.yaml", b.PrettyPath("/repo/other/b.yaml"))
	assert.Equal(t, "/elsewhere/c.yaml", b.PrettyPath("/elsewhere/c.yaml"))
}
