package target

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ResolveAndDuplicate(t *testing.T) {
	r := NewRegistry()
	fn := &Function{Ref: "pkg.make_thing"}
	require.NoError(t, r.Register(fn))

	got, err := r.Resolve("pkg.make_thing")
	require.NoError(t, err)
	assert.Same(t, fn, got)
	assert.Equal(t, "make_thing", got.Name())

	err = r.Register(&Function{Ref: "pkg.make_thing"})
	assert.Error(t, err)
	assert.Equal(t, []string{"pkg.make_thing"}, r.References())
}

func TestRegistry_UnresolvableTarget(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("nowhere.Nothing")

	var unresolvable *UnresolvableTargetError
	require.True(t, errors.As(err, &unresolvable))
	assert.Equal(t, "nowhere.Nothing", unresolvable.Reference)
	assert.Contains(t, err.Error(), "nowhere.Nothing")
}

func TestClass_DocsFollowBases(t *testing.T) {
	root := &Class{Ref: "m.Root", Doc: Doc{Summary: "root"}}
	left := &Class{Ref: "m.Left", Doc: Doc{Summary: "left"}, Bases: []Constructible{root}}
	right := &Class{Ref: "m.Right", Doc: Doc{Summary: "right"}, Bases: []Constructible{root}}
	leaf := &Class{Ref: "m.Leaf", Doc: Doc{Summary: "leaf"}, InitDoc: Doc{Summary: "init"}, Bases: []Constructible{left, right}}

	var refs []string
	for _, k := range Linearize(leaf) {
		refs = append(refs, k.Reference())
	}
	assert.Equal(t, []string{"m.Leaf", "m.Left", "m.Root", "m.Right"}, refs)

	docs := leaf.Docs()
	require.Len(t, docs, 8)
	assert.Equal(t, "leaf", docs[0].Summary)
	assert.Equal(t, "init", docs[1].Summary)
	assert.Equal(t, "left", docs[2].Summary)
}

type color string

func (color) EnumMembers() []EnumMember {
	return []EnumMember{{Name: "RED", Value: "red"}, {Name: "BLUE", Value: "blue"}}
}

type embedded struct {
	Seed int `json:"seed"`
}

type trainerConfig struct {
	embedded
	Epochs  int     `json:"epochs"`
	Rate    float64 `json:"rate,omitempty"`
	Color   color   `json:"color"`
	Ignored string  `json:"-"`
	hidden  bool
}

func TestRecord_Parameters(t *testing.T) {
	rec := NewRecord("train.Config", &trainerConfig{}, Doc{Params: map[string]string{"epochs": "How long."}})
	assert.Equal(t, KindRecord, rec.Kind())
	assert.False(t, rec.AcceptsExtra())

	params, err := rec.Parameters()
	require.NoError(t, err)

	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"seed", "epochs", "rate", "color"}, names)

	assert.True(t, params[1].Required)
	assert.Equal(t, "How long.", params[1].Description)
	assert.False(t, params[2].Required)
	assert.Equal(t, reflect.TypeOf(float64(0)), params[2].Type)
	require.NotNil(t, params[3].Enum)
	assert.Len(t, params[3].Enum.Members, 2)
}

func TestEnumFromType(t *testing.T) {
	e, ok := EnumFromType(reflect.TypeOf(color("")))
	require.True(t, ok)
	assert.Equal(t, "autoschema/internal/target.color", e.Name)

	_, ok = EnumFromType(reflect.TypeOf(0))
	assert.False(t, ok)
}
