// Package compose loads YAML config files and composes them through their
// defaults lists into a single config tree.
package compose

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autoschema/internal/merge"
	"autoschema/internal/schema"
)

const (
	packageGlobal = "_global_"
	packageHere   = "_here_"
	packageGroup  = "_group_"
)

// PrimaryName is the config a _global_ package file is composed through
// when it exists at the search root.
const PrimaryName = "config"

// Composer resolves config ids against its search roots.
type Composer struct {
	SearchRoots []string
}

// New creates a Composer over the given roots.
func New(roots ...string) *Composer {
	return &Composer{SearchRoots: roots}
}

// Compose composes the config with the given id (a path relative to a
// search root, without extension) at the root package and applies the
// overrides.
func (c *Composer) Compose(id string, overrides []string) (map[string]any, error) {
	file, root, err := c.find(id)
	if err != nil {
		return nil, err
	}
	parsed, err := parseOverrides(overrides)
	if err != nil {
		return nil, &CompositionError{File: file, Err: err}
	}
	st := &state{root: root, overrides: parsed, stack: map[string]bool{}}
	tree, _, err := st.composeFile(file, "", true)
	if err != nil {
		return nil, err
	}
	for i, o := range parsed {
		if !st.consumed[i] {
			o.apply(tree)
		}
	}
	return tree, nil
}

// Load composes a config file the way it is seen from the config that
// includes it: placed at its group's package, and returned as the subtree
// it contributes.
func (c *Composer) Load(configFile string) (map[string]any, error) {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, &CompositionError{File: configFile, Err: err}
	}
	root := c.rootOf(abs)
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return nil, &CompositionError{File: configFile, Err: err}
	}
	id := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
	group := pathDir(id)

	header, err := readHeaderPackage(abs)
	if err != nil {
		return nil, &CompositionError{File: configFile, Err: err}
	}
	if header == packageGlobal && group != "" {
		if _, err := findConfig(filepath.Join(root, PrimaryName)); err == nil {
			return c.Compose(PrimaryName, []string{"+" + group + "=" + pathBase(id)})
		}
	}

	st := &state{root: root, stack: map[string]bool{}}
	tree, pkg, err := st.composeFile(abs, groupPackage(group), false)
	if err != nil {
		return nil, err
	}
	sub, ok := lookupPath(tree, pkg)
	if !ok {
		return map[string]any{}, nil
	}
	return sub, nil
}

func (c *Composer) find(id string) (string, string, error) {
	for _, root := range c.SearchRoots {
		if file, err := findConfig(filepath.Join(root, filepath.FromSlash(id))); err == nil {
			return file, root, nil
		}
	}
	return "", "", &CompositionError{File: id, Err: fmt.Errorf("%w in search roots %v", errNotFound, c.SearchRoots)}
}

// rootOf returns the search root containing file, or its directory.
func (c *Composer) rootOf(file string) string {
	for _, root := range c.SearchRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(abs, file); err == nil && !strings.HasPrefix(rel, "..") {
			return abs
		}
	}
	return filepath.Dir(file)
}

type state struct {
	root      string
	overrides []override
	consumed  map[int]bool
	// stack holds the files being composed, for cycle detection.
	stack map[string]bool
}

// composeFile composes one file at the given default package and returns
// the tree along with the package its own content landed at.
func (st *state) composeFile(file, pkg string, primary bool) (map[string]any, string, error) {
	if st.stack[file] {
		return nil, "", &CompositionError{File: file, Err: fmt.Errorf("defaults cycle through %s", file)}
	}
	st.stack[file] = true
	defer delete(st.stack, file)

	node, err := readFile(file)
	if err != nil {
		return nil, "", err
	}
	header, err := readHeaderPackage(file)
	if err != nil {
		return nil, "", &CompositionError{File: file, Err: err}
	}
	if !primary {
		pkg = resolvePackage(header, pkg, pkg)
	}

	defaults, err := ParseDefaults(node[schema.KeyDefaults])
	if err != nil {
		return nil, "", &CompositionError{File: file, Err: err}
	}
	delete(node, schema.KeyDefaults)

	if primary && len(st.overrides) > 0 {
		defaults, st.consumed, err = applyGroupOverrides(defaults, st.overrides, st.root)
		if err != nil {
			return nil, "", &CompositionError{File: file, Err: err}
		}
	}
	if !hasSelf(defaults) {
		defaults = append(defaults, Default{Self: true})
	}

	tree := map[string]any{}
	for _, d := range defaults {
		var layer map[string]any
		switch {
		case d.Skip:
			continue
		case d.Self:
			layer = placeAt(pkg, node)
		default:
			path, err := ResolvePath(file, st.root, d)
			if err != nil {
				if d.Optional {
					continue
				}
				return nil, "", &CompositionError{File: file, Err: fmt.Errorf("default %s: %w", d, err)}
			}
			layer, _, err = st.composeFile(path, childPackage(pkg, d), false)
			if err != nil {
				return nil, "", err
			}
		}
		if tree, err = merge.Merge(tree, layer, merge.OverwritePolicy()); err != nil {
			return nil, "", &CompositionError{File: file, Err: err}
		}
	}
	return tree, pkg, nil
}

// childPackage returns the default package of an entry included from a
// config at pkg.
func childPackage(pkg string, d Default) string {
	group := d.Group
	if group == "" {
		group = pathDir(d.Name)
	}
	var derived string
	if strings.HasPrefix(group, "/") {
		derived = groupPackage(strings.TrimPrefix(group, "/"))
	} else {
		derived = joinPackage(pkg, groupPackage(group))
	}
	switch {
	case d.Package == "":
		return derived
	case strings.HasPrefix(d.Package, "_"):
		return resolvePackage(d.Package, pkg, derived)
	default:
		// A package in a defaults list is relative to the including config.
		return joinPackage(pkg, d.Package)
	}
}

// IncludedPackage returns the package the content of file lands at when it
// is included through the default d, relative to the package of the
// including config. The empty string is the includer's own root.
func IncludedPackage(d Default, file string) (string, error) {
	header, err := readHeaderPackage(file)
	if err != nil {
		return "", &CompositionError{File: file, Err: err}
	}
	pkg := childPackage("", d)
	return resolvePackage(header, "", pkg), nil
}

// resolvePackage interprets a package directive given the package of the
// including config and the package derived from the group.
func resolvePackage(directive, here, derived string) string {
	switch {
	case directive == "":
		return derived
	case directive == packageGlobal:
		return ""
	case strings.HasPrefix(directive, packageGlobal+"."):
		return strings.TrimPrefix(directive, packageGlobal+".")
	case directive == packageHere:
		return here
	case directive == packageGroup:
		return derived
	case strings.HasPrefix(directive, packageGroup+"."):
		return joinPackage(derived, strings.TrimPrefix(directive, packageGroup+"."))
	default:
		return directive
	}
}

// readHeaderPackage returns the value of a "# @package" directive in the
// leading comment block of a file.
func readHeaderPackage(file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return HeaderPackage(data), nil
}

// HeaderPackage returns the value of the last "# @package" directive in the
// leading comment block of a config document.
func HeaderPackage(data []byte) string {
	var pkg string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		if rest, ok := strings.CutPrefix(body, "@package"); ok {
			pkg = strings.TrimSpace(rest)
		}
	}
	return pkg
}

func hasSelf(ds []Default) bool {
	for _, d := range ds {
		if d.Self {
			return true
		}
	}
	return false
}

func placeAt(pkg string, node map[string]any) map[string]any {
	if pkg == "" {
		return node
	}
	parts := strings.Split(pkg, ".")
	out := node
	for i := len(parts) - 1; i >= 0; i-- {
		out = map[string]any{parts[i]: out}
	}
	return out
}

func lookupPath(tree map[string]any, pkg string) (map[string]any, bool) {
	if pkg == "" {
		return tree, true
	}
	cur := tree
	for _, part := range strings.Split(pkg, ".") {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func groupPackage(group string) string {
	return strings.ReplaceAll(strings.Trim(group, "/"), "/", ".")
}

func joinPackage(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "." + b
	}
}

func pathDir(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[:i]
	}
	return ""
}

func pathBase(id string) string {
	return id[strings.LastIndex(id, "/")+1:]
}
