package patchgen

import (
	"fmt"
	"regexp"
	"strings"
)

var pythonImportLine = regexp.MustCompile(`^(\s*)import\s+(.+)$`)
var pythonFromImportLine = regexp.MustCompile(`^(\s*)from\s+(\S+)\s+import\s+(.+)$`)

// removeUnusedImport deletes a single named import from a source file while
// preserving every other token on the line and every other line in the
// file. Supports Python "import a, b" / "from x import a, b" forms; other
// lines fall through to single-name import line removal for Java
// ("import <name>;") and Go (import "<name>") statements.
func removeUnusedImport(content, name string) (string, error) {
	lines := strings.Split(content, "\n")
	changed := false
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if m := pythonFromImportLine.FindStringSubmatch(line); m != nil {
			names := splitImportNames(m[3])
			if containsName(names, name) {
				remaining := removeName(names, name)
				changed = true
				if len(remaining) == 0 {
					continue
				}
				out = append(out, m[1]+"from "+m[2]+" import "+strings.Join(remaining, ", "))
				continue
			}
			out = append(out, line)
			continue
		}

		if m := pythonImportLine.FindStringSubmatch(line); m != nil {
			names := splitImportNames(m[2])
			if containsName(names, name) {
				remaining := removeName(names, name)
				changed = true
				if len(remaining) == 0 {
					continue
				}
				out = append(out, m[1]+"import "+strings.Join(remaining, ", "))
				continue
			}
		}

		if isSingleNameImportLine(line, name) {
			changed = true
			continue
		}

		out = append(out, line)
	}

	if !changed {
		return "", fmt.Errorf("removeUnusedImport: import %q not found", name)
	}

	return strings.Join(out, "\n"), nil
}

func splitImportNames(clause string) []string {
	parts := strings.Split(clause, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

func containsName(names []string, target string) bool {
	for _, n := range names {
		if importNameBase(n) == target {
			return true
		}
	}
	return false
}

func removeName(names []string, target string) []string {
	var out []string
	for _, n := range names {
		if importNameBase(n) != target {
			out = append(out, n)
		}
	}
	return out
}

// importNameBase strips an "as alias" suffix so "os as o" matches "os".
func importNameBase(n string) string {
	if idx := strings.Index(n, " as "); idx >= 0 {
		return strings.TrimSpace(n[:idx])
	}
	return n
}

var javaImportLine = func(name string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*import\s+(static\s+)?` + regexp.QuoteMeta(name) + `\s*;\s*$`)
}
var goSingleImportLine = func(name string) *regexp.Regexp {
	return regexp.MustCompile(`^\s*import\s+"` + regexp.QuoteMeta(name) + `"\s*$`)
}

func isSingleNameImportLine(line, name string) bool {
	return javaImportLine(name).MatchString(line) || goSingleImportLine(name).MatchString(line)
}
