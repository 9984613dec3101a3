package target

import (
	"regexp"
	"strings"
)

var (
	googleSection = regexp.MustCompile(`^(Args|Arguments|Parameters|Params|Keyword Args|Keyword Arguments|Attributes|Other Parameters):\s*$`)
	otherSection  = regexp.MustCompile(`^(Returns|Return|Raises|Yields|Yield|Examples|Example|Notes|Note|See Also|Warnings|Warning|References):\s*$`)
	googleEntry   = regexp.MustCompile(`^\*{0,2}([A-Za-z_][A-Za-z0-9_]*)\s*(\([^)]*\))?\s*:\s*(.*)$`)
	restParam     = regexp.MustCompile(`^:param\s+(?:[^:]*\s)?([A-Za-z_][A-Za-z0-9_]*)\s*:\s*(.*)$`)
	restField     = regexp.MustCompile(`^:[a-zA-Z]+[^:]*:`)
	numpyEntry    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(:.*)?$`)
	numpyRule     = regexp.MustCompile(`^-{3,}\s*$`)
)

// ParseDocstring extracts the summary and per-parameter descriptions from a
// Google, reST or numpy style docstring.
func ParseDocstring(text string) Doc {
	lines := trimLines(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
	doc := Doc{Params: map[string]string{}}

	var summary []string
	inSummary := true
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case googleSection.MatchString(trimmed):
			inSummary = false
			i = parseGoogleSection(lines, i, doc.Params)
		case otherSection.MatchString(trimmed):
			inSummary = false
			i = skipGoogleSection(lines, i)
		case i+1 < len(lines) && numpyRule.MatchString(strings.TrimSpace(lines[i+1])):
			inSummary = false
			if isNumpyParamHeader(trimmed) {
				i = parseNumpySection(lines, i+1, doc.Params)
			} else {
				i = skipNumpySection(lines, i+1)
			}
		case restParam.MatchString(trimmed):
			inSummary = false
			i = parseRestParam(lines, i, doc.Params)
		case restField.MatchString(trimmed):
			inSummary = false
		case trimmed == "":
			if len(summary) > 0 {
				inSummary = false
			}
		default:
			if inSummary {
				summary = append(summary, trimmed)
			}
		}
	}
	doc.Summary = strings.Join(summary, " ")
	return doc
}

func isNumpyParamHeader(s string) bool {
	switch s {
	case "Parameters", "Other Parameters", "Attributes":
		return true
	}
	return false
}

// parseGoogleSection reads entries below the header at lines[start] and
// returns the index of the last consumed line.
func parseGoogleSection(lines []string, start int, params map[string]string) int {
	base := indentOf(lines[start])
	entryIndent := -1
	var name string
	i := start + 1
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		ind := indentOf(line)
		if ind <= base {
			break
		}
		if entryIndent < 0 {
			entryIndent = ind
		}
		if ind == entryIndent {
			if m := googleEntry.FindStringSubmatch(trimmed); m != nil {
				name = m[1]
				params[name] = strings.TrimSpace(m[3])
				continue
			}
		}
		if name != "" {
			params[name] = joinDesc(params[name], trimmed)
		}
	}
	return i - 1
}

func skipGoogleSection(lines []string, start int) int {
	base := indentOf(lines[start])
	i := start + 1
	for ; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" && indentOf(lines[i]) <= base {
			break
		}
	}
	return i - 1
}

// parseNumpySection reads "name : type" entries after the rule line at
// lines[rule].
func parseNumpySection(lines []string, rule int, params map[string]string) int {
	base := indentOf(lines[rule])
	var name string
	i := rule + 1
	for ; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if i+1 < len(lines) && numpyRule.MatchString(strings.TrimSpace(lines[i+1])) {
			break
		}
		if indentOf(line) <= base {
			m := numpyEntry.FindStringSubmatch(trimmed)
			if m == nil {
				break
			}
			name = m[1]
			params[name] = ""
			continue
		}
		if name != "" {
			params[name] = joinDesc(params[name], trimmed)
		}
	}
	return i - 1
}

func skipNumpySection(lines []string, rule int) int {
	i := rule + 1
	for ; i < len(lines); i++ {
		if i+1 < len(lines) && numpyRule.MatchString(strings.TrimSpace(lines[i+1])) {
			break
		}
	}
	return i - 1
}

func parseRestParam(lines []string, start int, params map[string]string) int {
	m := restParam.FindStringSubmatch(strings.TrimSpace(lines[start]))
	name := m[1]
	params[name] = strings.TrimSpace(m[2])
	base := indentOf(lines[start])
	i := start + 1
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || indentOf(lines[i]) <= base {
			break
		}
		params[name] = joinDesc(params[name], trimmed)
	}
	return i - 1
}

func joinDesc(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}

// trimLines drops trailing blanks. Indentation is kept since sections are
// parsed relative to their header.
func trimLines(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = strings.TrimRight(line, " \t")
	}
	return out
}
