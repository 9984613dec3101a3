package compose

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"autoschema/internal/schema"
)

// Default is one entry of a defaults list.
type Default struct {
	// Group is empty for _self_ and for plain config paths.
	Group string
	// Name is the config name within the group, or the config path for a
	// plain entry.
	Name     string
	Self     bool
	Optional bool
	Override bool
	// Package is set by the group@package form.
	Package string
	// Skip marks a {group: null} entry.
	Skip bool
}

// Absolute reports whether the group is rooted at the search root.
func (d Default) Absolute() bool {
	return strings.HasPrefix(d.Group, "/") || strings.HasPrefix(d.Name, "/")
}

// String renders the entry the way it would be written in a defaults list.
func (d Default) String() string {
	switch {
	case d.Self:
		return schema.KeySelf
	case d.Group == "":
		return d.Name
	default:
		return d.Group + ": " + d.Name
	}
}

var errDefaultsNotList = errors.New("defaults must be a list")

// ParseDefaults interprets the decoded value of a defaults key.
func ParseDefaults(v any) ([]Default, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, errDefaultsNotList
	}
	var out []Default
	for i, item := range items {
		switch item := item.(type) {
		case string:
			if item == schema.KeySelf {
				out = append(out, Default{Self: true})
				continue
			}
			out = append(out, Default{Name: item})
		case map[string]any:
			if len(item) != 1 {
				return nil, fmt.Errorf("defaults entry %d must have exactly one key, got %d", i, len(item))
			}
			for key, val := range item {
				ds, err := parseGroupEntry(key, val)
				if err != nil {
					return nil, fmt.Errorf("defaults entry %d: %w", i, err)
				}
				out = append(out, ds...)
			}
		default:
			return nil, fmt.Errorf("defaults entry %d has unsupported type %T", i, item)
		}
	}
	return out, nil
}

func parseGroupEntry(key string, val any) ([]Default, error) {
	base := Default{}
	for {
		switch {
		case strings.HasPrefix(key, "optional "):
			base.Optional = true
			key = strings.TrimSpace(strings.TrimPrefix(key, "optional "))
			continue
		case strings.HasPrefix(key, "override "):
			base.Override = true
			key = strings.TrimSpace(strings.TrimPrefix(key, "override "))
			continue
		}
		break
	}
	base.Group, base.Package, _ = strings.Cut(key, "@")
	if base.Group == "" {
		return nil, fmt.Errorf("empty group in %q", key)
	}

	switch val := val.(type) {
	case nil:
		base.Skip = true
		return []Default{base}, nil
	case string:
		base.Name = val
		return []Default{base}, nil
	case []any:
		var out []Default
		for _, item := range val {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("group %s: list items must be config names", base.Group)
			}
			d := base
			d.Name = name
			out = append(out, d)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("group %s: unsupported value %T", base.Group, val)
	}
}

// ReadDefaults reads only the raw defaults list of a config file. The
// composed tree no longer has it, since composition consumes the list.
func ReadDefaults(configFile string) ([]Default, error) {
	node, err := readFile(configFile)
	if err != nil {
		return nil, err
	}
	ds, err := ParseDefaults(node[schema.KeyDefaults])
	if err != nil {
		return nil, &CompositionError{File: configFile, Err: err}
	}
	return ds, nil
}

// ResolvePath finds the file a defaults entry of configFile refers to. A
// plain entry is relative to the file's directory, a group entry names
// <dir>/<group>/<name>, and a group starting with / is relative to root.
// Without an extension, .yml then .yaml are tried.
func ResolvePath(configFile, root string, d Default) (string, error) {
	if d.Self || d.Skip {
		return "", fmt.Errorf("defaults entry %s does not name a file", d)
	}
	dir := filepath.Dir(configFile)
	var rel string
	if d.Group == "" {
		rel = d.Name
	} else {
		rel = filepath.Join(d.Group, d.Name)
	}
	if strings.HasPrefix(rel, "/") {
		dir = root
		rel = strings.TrimPrefix(rel, "/")
	}
	return findConfig(filepath.Join(dir, filepath.FromSlash(rel)))
}

var errNotFound = errors.New("config not found")

func findConfig(path string) (string, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if fileExists(path) {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", errNotFound, path)
	}
	for _, ext := range []string{".yml", ".yaml"} {
		if fileExists(path + ext) {
			return path + ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s(.yml|.yaml)", errNotFound, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// readFile parses a config file into a mapping. An empty document is an
// empty mapping.
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CompositionError{File: path, Err: err}
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, &CompositionError{File: path, Err: err}
	}
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := normalize(v).(map[string]any)
	if !ok {
		return nil, &CompositionError{File: path, Err: fmt.Errorf("top level must be a mapping, got %T", v)}
	}
	return m, nil
}

// normalize turns any non-string-keyed mappings into string-keyed ones.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	default:
		return val
	}
}
