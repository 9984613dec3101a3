package target

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrManifestInvalid wraps every structural problem found in a manifest.
var ErrManifestInvalid = errors.New("invalid targets manifest")

type manifestFile struct {
	Enums   []manifestEnum   `yaml:"enums"`
	Targets []manifestTarget `yaml:"targets"`
}

type manifestEnum struct {
	Name    string           `yaml:"name"`
	Doc     string           `yaml:"doc"`
	Members []manifestMember `yaml:"members"`
}

type manifestMember struct {
	Name  string    `yaml:"name"`
	Value yaml.Node `yaml:"value"`
}

type manifestTarget struct {
	Ref       string          `yaml:"ref"`
	Kind      string          `yaml:"kind"`
	Doc       string          `yaml:"doc"`
	InitDoc   string          `yaml:"init_doc"`
	Bases     []string        `yaml:"bases"`
	VarKwargs bool            `yaml:"var_kwargs"`
	Params    []manifestParam `yaml:"params"`
}

type manifestParam struct {
	Name     string    `yaml:"name"`
	Type     string    `yaml:"type"`
	Default  yaml.Node `yaml:"default"`
	Required *bool     `yaml:"required"`
	Doc      string    `yaml:"doc"`
}

// LoadManifestFile reads a manifest from disk into the registry.
func LoadManifestFile(r *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read targets manifest: %w", err)
	}
	if err := LoadManifest(r, data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// LoadManifest registers the enums and targets described by a YAML
// manifest. Unknown parameter types do not fail the load; the affected
// target reports them when its parameters are requested.
func LoadManifest(r *Registry, data []byte) error {
	var m manifestFile
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}

	for _, me := range m.Enums {
		if me.Name == "" {
			return fmt.Errorf("%w: enum without a name", ErrManifestInvalid)
		}
		e := &Enum{Name: me.Name, Doc: me.Doc}
		for _, mm := range me.Members {
			var v any
			if mm.Value.Kind == 0 {
				v = mm.Name
			} else if err := mm.Value.Decode(&v); err != nil {
				return fmt.Errorf("%w: enum %s member %s: %v", ErrManifestInvalid, me.Name, mm.Name, err)
			}
			e.Members = append(e.Members, EnumMember{Name: mm.Name, Value: v})
		}
		if err := r.RegisterEnum(e); err != nil {
			return fmt.Errorf("%w: %v", ErrManifestInvalid, err)
		}
	}

	classes := map[string]*Class{}
	for _, mt := range m.Targets {
		if mt.Ref == "" {
			return fmt.Errorf("%w: target without a ref", ErrManifestInvalid)
		}
		params, perr := manifestParams(r, mt)
		var c Constructible
		switch mt.Kind {
		case "", "class":
			cls := &Class{
				Ref:        mt.Ref,
				Params:     params,
				Doc:        ParseDocstring(mt.Doc),
				InitDoc:    ParseDocstring(mt.InitDoc),
				VarKeyword: mt.VarKwargs,
				Err:        perr,
			}
			classes[mt.Ref] = cls
			c = cls
		case "function":
			if len(mt.Bases) > 0 {
				return fmt.Errorf("%w: function %s cannot have bases", ErrManifestInvalid, mt.Ref)
			}
			c = &Function{
				Ref:        mt.Ref,
				Params:     params,
				Doc:        ParseDocstring(mt.Doc),
				VarKeyword: mt.VarKwargs,
				Err:        perr,
			}
		default:
			return fmt.Errorf("%w: target %s has unknown kind %q", ErrManifestInvalid, mt.Ref, mt.Kind)
		}
		if err := r.Register(c); err != nil {
			return fmt.Errorf("%w: %v", ErrManifestInvalid, err)
		}
	}

	// Bases may name targets declared later in the file or registered in
	// code, so they are linked once everything is in.
	for _, mt := range m.Targets {
		cls, ok := classes[mt.Ref]
		if !ok {
			continue
		}
		for _, ref := range mt.Bases {
			base, err := r.Resolve(ref)
			if err != nil {
				return fmt.Errorf("%w: base of %s: %v", ErrManifestInvalid, mt.Ref, err)
			}
			cls.Bases = append(cls.Bases, base)
		}
	}
	return nil
}

func manifestParams(r *Registry, mt manifestTarget) ([]Parameter, error) {
	params := make([]Parameter, 0, len(mt.Params))
	var firstErr error
	for _, mp := range mt.Params {
		p := Parameter{Name: mp.Name, Description: mp.Doc}
		t, e, err := ParseType(mp.Type, r.Enum)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("parameter %s of %s: %w", mp.Name, mt.Ref, err)
		}
		p.Type, p.Enum = t, e
		if mp.Default.Kind != 0 {
			if err := mp.Default.Decode(&p.Default); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("default of parameter %s of %s: %w", mp.Name, mt.Ref, err)
			}
			p.HasDefault = true
		}
		p.Required = !p.HasDefault
		if mp.Required != nil {
			p.Required = *mp.Required
		}
		params = append(params, p)
	}
	return params, firstErr
}
