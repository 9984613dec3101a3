package association

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

const (
	// SchemasSetting maps schema files to the files they apply to.
	SchemasSetting = "yaml.schemas"
	// TelemetrySetting is defaulted to false to spare users the prompt.
	TelemetrySetting = "redhat.telemetry.enabled"
)

// SettingsPath returns the editor settings file of a repository.
func SettingsPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".vscode", "settings.json")
}

// UpdateSettings merges the pairs into the yaml.schemas setting of the
// editor settings file under repoRoot. Schema keys are relative to the
// repository root; several configs sharing a schema become a sorted list.
func UpdateSettings(repoRoot string, pairs []Pair) error {
	path := SettingsPath(repoRoot)
	if err := os.Mkdir(filepath.Dir(path), 0755); err != nil && !os.IsExist(err) {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	doc, err := MergeSettings(data, repoRoot, pairs)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeAtomic(path, doc)
}

// MergeSettings returns the settings document data with the pairs added.
// Comments and trailing commas are accepted on input but not preserved.
func MergeSettings(data []byte, repoRoot string, pairs []Pair) ([]byte, error) {
	doc := string(jsonc.ToJSON(data))
	if strings.TrimSpace(doc) == "" {
		doc = "{}"
	}
	if !gjson.Valid(doc) || !gjson.Parse(doc).IsObject() {
		return nil, fmt.Errorf("settings are not a JSON object")
	}

	var err error
	if !gjson.Get(doc, escapeKey(TelemetrySetting)).Exists() {
		if doc, err = sjson.Set(doc, escapeKey(TelemetrySetting), false); err != nil {
			return nil, err
		}
	}

	schemas := gjson.Get(doc, escapeKey(SchemasSetting))
	if schemas.Exists() && !schemas.IsObject() {
		return nil, fmt.Errorf("%s is not an object", SchemasSetting)
	}

	files := map[string][]string{}
	for _, p := range pairs {
		key, err := filepath.Rel(repoRoot, p.SchemaFile)
		if err != nil {
			return nil, err
		}
		key = filepath.ToSlash(key)
		abs, err := filepath.Abs(p.ConfigFile)
		if err != nil {
			return nil, err
		}
		if _, seen := files[key]; !seen {
			files[key] = existingFiles(schemas.Get(escapeKey(key)))
		}
		files[key] = append(files[key], abs)
	}

	keys := make([]string, 0, len(files))
	for key := range files {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		var value any
		switch list := dedupe(files[key]); len(list) {
		case 1:
			value = list[0]
		default:
			value = list
		}
		if doc, err = sjson.Set(doc, escapeKey(SchemasSetting)+"."+escapeKey(key), value); err != nil {
			return nil, err
		}
	}
	return pretty.PrettyOptions([]byte(doc), &pretty.Options{Width: 80, Indent: "  "}), nil
}

func existingFiles(v gjson.Result) []string {
	switch {
	case !v.Exists():
		return nil
	case v.IsArray():
		var out []string
		for _, item := range v.Array() {
			out = append(out, item.String())
		}
		return out
	default:
		return []string{v.String()}
	}
}

func dedupe(list []string) []string {
	sort.Strings(list)
	out := list[:0]
	for _, s := range list {
		if len(out) == 0 || s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

// escapeKey escapes the characters gjson and sjson treat as path syntax.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// writeAtomic replaces path through a temporary file in the same directory
// so concurrent readers never see a partial document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), filePerm(path)); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
