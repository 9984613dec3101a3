// Package target describes the constructible objects a config can name in
// its _target_ key.
//
// A Constructible is anything that can describe its own parameters: a plain
// function, a class with a constructor (and base classes whose docs can be
// searched), or a record type whose fields are the parameters. Targets are
// looked up through a Resolver, normally a Registry filled from Go code or
// from a targets manifest.
package target

import (
	"fmt"
	"reflect"
	"strings"
)

// Kind tells the constructible variants apart.
type Kind int

const (
	KindFunction Kind = iota
	KindClass
	KindRecord
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Constructible is a target a config node can instantiate.
type Constructible interface {
	// Reference is the exact identity the registry knows it by.
	Reference() string
	// Name is the short, human-facing name.
	Name() string
	Kind() Kind
	// Parameters describes the accepted parameters in declaration order.
	Parameters() ([]Parameter, error)
	// AcceptsExtra reports whether arbitrary extra keyword arguments are
	// accepted.
	AcceptsExtra() bool
	// Docs lists the documentation to search for parameter descriptions,
	// most specific first.
	Docs() []Doc
}

// Parameter describes one accepted parameter.
type Parameter struct {
	Name string
	// Type is nil for an unannotated parameter.
	Type reflect.Type
	// Enum is set for enum-typed parameters; Type is then ignored.
	Enum        *Enum
	Default     any
	HasDefault  bool
	Required    bool
	Description string
}

// Doc is a parsed docstring.
type Doc struct {
	Summary string
	Params  map[string]string
}

// ParamDoc returns the description of a parameter, if documented.
func (d Doc) ParamDoc(name string) (string, bool) {
	desc, ok := d.Params[name]
	return desc, ok && desc != ""
}

// EnumMember is one named member of an enum.
type EnumMember struct {
	Name  string
	Value any
}

// Enum is an enumeration parameter type.
type Enum struct {
	Name    string
	Doc     string
	Members []EnumMember
}

// EnumType is implemented by Go types that behave as enums.
type EnumType interface {
	EnumMembers() []EnumMember
}

var enumTypeIface = reflect.TypeOf((*EnumType)(nil)).Elem()

// EnumFromType returns the enum described by t, if t implements EnumType.
func EnumFromType(t reflect.Type) (*Enum, bool) {
	if t == nil || !t.Implements(enumTypeIface) {
		return nil, false
	}
	members := reflect.Zero(t).Interface().(EnumType).EnumMembers()
	return &Enum{Name: TypeName(t), Members: members}, true
}

// TypeName returns the package-qualified name of a named Go type.
func TypeName(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// ShortName returns the last dotted component of a reference.
func ShortName(ref string) string {
	if i := strings.LastIndex(ref, "."); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// UnresolvableTargetError reports a _target_ reference nothing is
// registered under.
type UnresolvableTargetError struct {
	Reference string
}

func (e *UnresolvableTargetError) Error() string {
	return fmt.Sprintf("unable to resolve target %q: no constructible is registered under that reference", e.Reference)
}
