package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// override is one command-line style override: group=name picks a config
// for a defaults group, key.path=value sets a value, ~key.path removes one.
// A leading "+" appends a group that the defaults list does not name yet.
type override struct {
	key    string
	value  any
	append bool
	delete bool
}

func parseOverrides(raw []string) ([]override, error) {
	var out []override
	for _, o := range raw {
		if key, ok := strings.CutPrefix(o, "~"); ok {
			key, _, _ = strings.Cut(key, "=")
			out = append(out, override{key: key, delete: true})
			continue
		}
		key, val, ok := strings.Cut(o, "=")
		if !ok || key == "" || key == "+" {
			return nil, fmt.Errorf("override %q must have the form key=value", o)
		}
		ov := override{}
		ov.key, ov.append = strings.CutPrefix(key, "+")
		if err := yaml.Unmarshal([]byte(val), &ov.value); err != nil {
			return nil, fmt.Errorf("override %q: %w", o, err)
		}
		out = append(out, ov)
	}
	return out, nil
}

func (o override) name() (string, bool) {
	name, ok := o.value.(string)
	return name, ok && !o.delete
}

// applyGroupOverrides rewrites the defaults list of the primary config and
// returns the overrides it consumed.
func applyGroupOverrides(ds []Default, overrides []override, root string) ([]Default, map[int]bool, error) {
	consumed := map[int]bool{}
	out := append([]Default(nil), ds...)
	// Appended groups come after the primary's own content.
	if selfIndex(out) < 0 {
		out = append(out, Default{Self: true})
	}
	for i, o := range overrides {
		name, ok := o.name()
		if !ok {
			continue
		}
		matched := false
		for j := range out {
			if out[j].Group != "" && strings.TrimPrefix(out[j].Group, "/") == o.key {
				out[j].Name, out[j].Skip = name, false
				matched = true
			}
		}
		switch {
		case matched:
			consumed[i] = true
		case o.append && isGroupDir(root, o.key):
			out = append(out, Default{Group: o.key, Name: name})
			consumed[i] = true
		case strings.Contains(o.key, "/"):
			return nil, nil, fmt.Errorf("could not override %q: no match in the defaults list", o.key)
		}
	}
	return out, consumed, nil
}

func isGroupDir(root, group string) bool {
	info, err := os.Stat(filepath.Join(root, filepath.FromSlash(group)))
	return err == nil && info.IsDir()
}

func selfIndex(ds []Default) int {
	for i, d := range ds {
		if d.Self {
			return i
		}
	}
	return -1
}

// apply sets or deletes the dotted key of a value override in tree.
func (o override) apply(tree map[string]any) {
	parts := strings.Split(o.key, ".")
	cur := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			if o.delete {
				return
			}
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	last := parts[len(parts)-1]
	if o.delete {
		delete(cur, last)
		return
	}
	cur[last] = o.value
}
