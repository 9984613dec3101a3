package target

import (
	"reflect"
	"strings"
)

// Function is a plain callable target.
type Function struct {
	Ref        string
	Params     []Parameter
	Doc        Doc
	VarKeyword bool
	// Err is returned by Parameters; manifests use it to defer type errors
	// to the target that has them.
	Err error
}

func (f *Function) Reference() string { return f.Ref }
func (f *Function) Name() string      { return ShortName(f.Ref) }
func (f *Function) Kind() Kind        { return KindFunction }
func (f *Function) AcceptsExtra() bool {
	return f.VarKeyword
}

func (f *Function) Parameters() ([]Parameter, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Params, nil
}

func (f *Function) Docs() []Doc {
	return []Doc{f.Doc}
}

// Class is a target with a constructor and optional base classes.
type Class struct {
	Ref        string
	Params     []Parameter
	Doc        Doc
	InitDoc    Doc
	Bases      []Constructible
	VarKeyword bool
	Err        error
}

func (c *Class) Reference() string { return c.Ref }
func (c *Class) Name() string      { return ShortName(c.Ref) }
func (c *Class) Kind() Kind        { return KindClass }
func (c *Class) AcceptsExtra() bool {
	return c.VarKeyword
}

func (c *Class) Parameters() ([]Parameter, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Params, nil
}

// Docs returns the class and constructor docs of the class and of every
// base in linearised order.
func (c *Class) Docs() []Doc {
	var docs []Doc
	for _, k := range Linearize(c) {
		if cls, ok := k.(*Class); ok {
			docs = append(docs, cls.Doc, cls.InitDoc)
			continue
		}
		docs = append(docs, k.Docs()...)
	}
	return docs
}

// Linearize returns c followed by its bases, depth first, left to right,
// each visited once.
func Linearize(c Constructible) []Constructible {
	seen := map[string]bool{}
	var out []Constructible
	var visit func(Constructible)
	visit = func(k Constructible) {
		if seen[k.Reference()] {
			return
		}
		seen[k.Reference()] = true
		out = append(out, k)
		if cls, ok := k.(*Class); ok {
			for _, base := range cls.Bases {
				visit(base)
			}
		}
	}
	visit(c)
	return out
}

// Record is a Go struct type used as a target directly; its exported fields
// are the parameters.
type Record struct {
	Ref  string
	Type reflect.Type
	Doc  Doc
}

// NewRecord builds a record target from a struct value or pointer.
func NewRecord(ref string, v any, doc Doc) *Record {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return &Record{Ref: ref, Type: t, Doc: doc}
}

func (r *Record) Reference() string  { return r.Ref }
func (r *Record) Name() string       { return ShortName(r.Ref) }
func (r *Record) Kind() Kind         { return KindRecord }
func (r *Record) AcceptsExtra() bool { return false }
func (r *Record) Docs() []Doc        { return []Doc{r.Doc} }

// Parameters lists the serialised fields of the record. Fields tagged
// omitempty are optional.
func (r *Record) Parameters() ([]Parameter, error) {
	var params []Parameter
	collectFields(r.Type, r.Doc, &params)
	return params, nil
}

func collectFields(t reflect.Type, doc Doc, params *[]Parameter) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, doc, params)
			continue
		}
		if !field.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}
		p := Parameter{
			Name:     name,
			Type:     field.Type,
			Required: !strings.Contains(opts, "omitempty"),
		}
		if e, ok := EnumFromType(field.Type); ok {
			p.Enum = e
		}
		p.Description, _ = doc.ParamDoc(name)
		*params = append(*params, p)
	}
}
