package target

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
enums:
  - name: Weights
    members:
      - name: DEFAULT
        value: {url: "https://example.com/w.pt", size: 12}
      - name: NONE
  - name: Mode
    members:
      - {name: FAST, value: fast}
      - {name: SLOW, value: slow}
targets:
  - ref: project.MyClass
    kind: class
    doc: |
      A class.

      Args:
          lr: The learning rate.
    bases: [project.Base]
    params:
      - {name: lr, type: float}
      - {name: mode, type: Mode, default: fast}
      - {name: tags, type: "list[str]", default: []}
      - {name: hint, type: "str | None", default: null}
  - ref: project.Base
    doc: "Base class."
    init_doc: |
      Args:
          mode: How to run.
  - ref: project.build
    kind: function
    var_kwargs: true
    params:
      - {name: broken, type: "matrix[int]"}
`

func TestLoadManifest(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, LoadManifest(r, []byte(sampleManifest)))
	assert.Equal(t, 3, r.Len())

	c, err := r.Resolve("project.MyClass")
	require.NoError(t, err)
	assert.Equal(t, KindClass, c.Kind())

	params, err := c.Parameters()
	require.NoError(t, err)
	require.Len(t, params, 4)

	lr := params[0]
	assert.Equal(t, reflect.TypeOf(float64(0)), lr.Type)
	assert.True(t, lr.Required)
	assert.False(t, lr.HasDefault)

	mode := params[1]
	require.NotNil(t, mode.Enum)
	assert.Equal(t, "Mode", mode.Enum.Name)
	assert.Equal(t, "fast", mode.Default)
	assert.False(t, mode.Required)

	assert.Equal(t, []any{}, params[2].Default)
	assert.True(t, params[3].HasDefault)
	assert.Nil(t, params[3].Default)
	assert.Equal(t, reflect.PointerTo(reflect.TypeOf("")), params[3].Type)

	docs := c.Docs()
	require.Len(t, docs, 4)
	desc, ok := docs[0].ParamDoc("lr")
	require.True(t, ok)
	assert.Equal(t, "The learning rate.", desc)
	desc, _ = docs[3].ParamDoc("mode")
	assert.Equal(t, "How to run.", desc)

	weights, ok := r.Enum("Weights")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"url": "https://example.com/w.pt", "size": 12}, weights.Members[0].Value)
	assert.Equal(t, "NONE", weights.Members[1].Value)
}

func TestLoadManifest_TypeErrorsAreDeferred(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, LoadManifest(r, []byte(sampleManifest)))

	fn, err := r.Resolve("project.build")
	require.NoError(t, err)
	assert.True(t, fn.AcceptsExtra())
	_, err = fn.Parameters()
	assert.ErrorContains(t, err, "matrix")
}

func TestLoadManifest_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown base": "targets:\n  - ref: a.B\n    bases: [a.Missing]\n",
		"bad kind":     "targets:\n  - ref: a.B\n    kind: module\n",
		"missing ref":  "targets:\n  - kind: class\n",
		"not yaml":     "targets: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			err := LoadManifest(NewRegistry(), []byte(data))
			assert.True(t, errors.Is(err, ErrManifestInvalid), "got %v", err)
		})
	}
}

func TestLoadManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	r := NewRegistry()
	require.NoError(t, LoadManifestFile(r, path))
	_, err := r.Resolve("project.Base")
	assert.NoError(t, err)

	err = LoadManifestFile(NewRegistry(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
