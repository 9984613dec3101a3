// Package schemafile persists generated schemas next to each other in a
// schemas directory and decides when they need to be regenerated.
package schemafile

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autoschema/internal/schema"
)

// ErrSchemaNotFound is returned when a config has no schema file yet.
var ErrSchemaNotFound = errors.New("schema file not found")

// Reason explains why a schema is regenerated.
type Reason string

const (
	ReasonFresh      Reason = ""
	ReasonMissing    Reason = "schema file missing"
	ReasonModified   Reason = "config file modified"
	ReasonForced     Reason = "regeneration forced"
	ReasonIncomplete Reason = "previous attempt incomplete"
)

// Store manages schema files under Dir.
type Store struct {
	Dir string
}

// NewStore creates a store writing to dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the schema file of a config file:
// <Dir>/<parent dir name>_<stem>_schema.json.
func (s *Store) Path(configFile string) string {
	group := filepath.Base(filepath.Dir(configFile))
	stem := strings.TrimSuffix(filepath.Base(configFile), filepath.Ext(configFile))
	return filepath.Join(s.Dir, group+"_"+stem+"_schema.json")
}

// Write stores the schema of configFile and records whether it is
// incomplete. It returns the schema file path.
func (s *Store) Write(configFile string, sc schema.Schema, incomplete bool) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", err
	}
	path := s.Path(configFile)

	data, err := Encode(sc)
	if err != nil {
		return "", err
	}
	if !incomplete {
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	if err := setIncomplete(path, incomplete); err != nil {
		return "", err
	}
	return path, nil
}

// Encode renders a schema as 2-space indented JSON ending in a newline.
func Encode(sc schema.Schema) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads the schema of configFile.
func (s *Store) Load(configFile string) (schema.Schema, error) {
	data, err := os.ReadFile(s.Path(configFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSchemaNotFound
		}
		return nil, err
	}
	var sc schema.Schema
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// IsIncomplete reports whether the schema of configFile was written as a
// fallback.
func (s *Store) IsIncomplete(configFile string) bool {
	return isIncomplete(s.Path(configFile))
}

// NeedsRegen decides whether the schema of configFile must be rebuilt. A
// config modified less than grace after its schema was written counts as
// unchanged, since association may rewrite the config right after.
func (s *Store) NeedsRegen(configFile string, grace time.Duration, force bool) (bool, Reason) {
	schemaInfo, err := os.Stat(s.Path(configFile))
	if err != nil {
		return true, ReasonMissing
	}
	configInfo, err := os.Stat(configFile)
	if err != nil {
		return true, ReasonModified
	}
	switch {
	case configInfo.ModTime().Sub(schemaInfo.ModTime()) > grace:
		return true, ReasonModified
	case force:
		return true, ReasonForced
	case s.IsIncomplete(configFile):
		return true, ReasonIncomplete
	}
	return false, ReasonFresh
}

// EnsureIgnored adds the schemas directory to the .gitignore governing
// repoRoot, creating the file if there is none.
func (s *Store) EnsureIgnored(repoRoot string) error {
	gitignore := findGitignore(repoRoot)
	rel, err := filepath.Rel(filepath.Dir(gitignore), s.Dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	rel = filepath.ToSlash(rel)

	data, err := os.ReadFile(gitignore)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), rel) {
			return nil
		}
	}
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		data = append(data, '\n')
	}
	data = append(data, rel+"\n"...)
	return os.WriteFile(gitignore, data, 0644)
}

func findGitignore(repoRoot string) string {
	for dir := repoRoot; ; {
		candidate := filepath.Join(dir, ".gitignore")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(repoRoot, ".gitignore")
}
