package target

import (
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	str := reflect.TypeOf("")
	cases := []struct {
		expr string
		want reflect.Type
	}{
		{"float", reflect.TypeOf(float64(0))},
		{"int", reflect.TypeOf(0)},
		{"bool", reflect.TypeOf(false)},
		{"Any", anyType},
		{"list[int]", reflect.TypeOf([]int{})},
		{"tuple[float, ...]", reflect.TypeOf([]float64{})},
		{"dict[str, float]", reflect.TypeOf(map[string]float64{})},
		{"optional[str]", reflect.PointerTo(str)},
		{"int | None", reflect.PointerTo(reflect.TypeOf(0))},
		{"int | str", anyType},
		{"list[dict[str, list[int]]]", reflect.TypeOf([]map[string][]int{})},
		{"", nil},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, e, err := ParseType(tc.expr, nil)
			require.NoError(t, err)
			assert.Nil(t, e)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseType_Enum(t *testing.T) {
	mode := &Enum{Name: "Mode"}
	lookup := func(name string) (*Enum, bool) {
		if name == "Mode" {
			return mode, true
		}
		return nil, false
	}
	_, e, err := ParseType("Mode | None", lookup)
	require.NoError(t, err)
	assert.Same(t, mode, e)
}

func TestParseType_Errors(t *testing.T) {
	for _, expr := range []string{"matrix", "list[", "frozen[int]", "list[]", "int | nope"} {
		_, _, err := ParseType(expr, nil)
		assert.Error(t, err, expr)
	}
}

// Property: wrapping a scalar in list[...] yields a slice of that scalar.
func TestParseType_ListProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("list[T] is a slice of T", prop.ForAll(
		func(name string, depth int) bool {
			expr := name
			for i := 0; i < depth; i++ {
				expr = "list[" + expr + "]"
			}
			got, _, err := ParseType(expr, nil)
			if err != nil {
				return false
			}
			want := scalarTypes[name]
			for i := 0; i < depth; i++ {
				want = reflect.SliceOf(want)
			}
			return got == want
		},
		gen.OneConstOf("int", "float", "str", "bool", "Any"),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}
