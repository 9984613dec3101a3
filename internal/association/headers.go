package association

import (
	"os"
	"path/filepath"
	"strings"
)

// DirectivePrefix starts the comment line yaml-language-server reads the
// schema location from.
const DirectivePrefix = "# yaml-language-server: $schema="

// AddHeader points configFile at schemaFile with a directive comment. The
// directive goes after the last "# @package" line of the leading comment
// block, since config loaders only honour a package directive there. Existing
// directives are replaced. The file is only rewritten when it changes.
func AddHeader(configFile, schemaFile string) (bool, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return false, err
	}
	rel, err := relativeSchemaPath(configFile, schemaFile)
	if err != nil {
		return false, err
	}
	out := WithHeader(string(data), rel)
	if out == string(data) {
		return false, nil
	}
	return true, os.WriteFile(configFile, []byte(out), filePerm(configFile))
}

// WithHeader returns content with exactly one directive naming schemaRef.
func WithHeader(content, schemaRef string) string {
	lines := withoutDirectives(splitLines(content))
	directive := DirectivePrefix + schemaRef

	at := 0
	for i, line := range lines {
		if !isCommentOrBlank(line) {
			break
		}
		if isPackageLine(line) {
			at = i + 1
		}
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:at]...)
	out = append(out, directive)
	out = append(out, lines[at:]...)
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}

// StripHeader removes any directive lines from configFile.
func StripHeader(configFile string) (bool, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return false, err
	}
	out := WithoutHeader(string(data))
	if out == string(data) {
		return false, nil
	}
	return true, os.WriteFile(configFile, []byte(out), filePerm(configFile))
}

// WithoutHeader returns content without directive lines.
func WithoutHeader(content string) string {
	lines := withoutDirectives(splitLines(content))
	out := strings.TrimRight(strings.Join(lines, "\n"), " \t\n")
	if len(lines) == 0 || out == "" {
		return out
	}
	return out + "\n"
}

func withoutDirectives(lines []string) []string {
	out := lines[:0:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), DirectivePrefix) {
			out = append(out, line)
		}
	}
	return out
}

func isPackageLine(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "#") {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(strings.TrimPrefix(line, "#")), "@package")
}

func isCommentOrBlank(line string) bool {
	line = strings.TrimSpace(line)
	return line == "" || strings.HasPrefix(line, "#")
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func relativeSchemaPath(configFile, schemaFile string) (string, error) {
	rel, err := filepath.Rel(filepath.Dir(configFile), schemaFile)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel, nil
}

func filePerm(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0644
}
