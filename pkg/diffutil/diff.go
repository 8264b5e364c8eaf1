// Package diffutil parses unified-diff text into per-file line-change
// statistics, per spec §4.3. It is grounded on original_source's
// safety/diff_parser.py and is used by both the Safety Policy Engine
// (pkg/policy) and the Patch Generator (pkg/patchgen).
package diffutil

import (
	"strings"
)

// FileStat holds per-file line-change counts from a parsed diff.
type FileStat struct {
	Path         string
	LinesAdded   int
	LinesRemoved int
}

// Parsed is the structured result of parsing a unified diff.
type Parsed struct {
	Files              []FileStat
	TotalFiles         int
	TotalLinesAdded    int
	TotalLinesRemoved  int
	DiffBytes          int
}

// NormalizePath converts backslashes to slashes and strips a leading "./",
// per the plan/operations coherence invariant in spec §3.
func NormalizePath(path string) string {
	normalized := strings.ReplaceAll(path, "\\", "/")
	return strings.TrimPrefix(normalized, "./")
}

// AnyPathMatches reports whether any parsed file path matches the glob.
func (p Parsed) AnyPathMatches(match func(path string) bool) bool {
	for _, f := range p.Files {
		if match(f.Path) {
			return true
		}
	}
	return false
}

// Parse parses standard unified-diff text: "diff --git a/X b/Y", "+++ b/X",
// "--- a/X", "@@" hunks. Per-file "+"/"-" content lines are tallied
// (excluding the "+++"/"---" header lines). Lines starting with
// "\ No newline at end of file" are ignored. Output file order is
// lexicographic by normalized path, matching the original implementation.
func Parse(diffText string) Parsed {
	diffBytes := len(diffText)

	added := map[string]int{}
	removed := map[string]int{}
	order := []string{}
	seen := map[string]bool{}

	track := func(path string) {
		if !seen[path] {
			seen[path] = true
			order = append(order, path)
		}
	}

	var current string
	haveCurrent := false

	lines := strings.Split(diffText, "\n")
	for _, raw := range lines {
		line := strings.TrimSuffix(raw, "\r")

		switch {
		case strings.HasPrefix(line, "diff --git "):
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				bPath := strings.TrimPrefix(parts[3], "b/")
				current = NormalizePath(bPath)
				haveCurrent = true
				track(current)
			}
			continue

		case strings.HasPrefix(line, "+++ "):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				pathPart := strings.TrimPrefix(parts[1], "b/")
				if pathPart != "/dev/null" {
					current = NormalizePath(pathPart)
					haveCurrent = true
					track(current)
				}
			}
			continue

		case strings.HasPrefix(line, "--- "),
			strings.HasPrefix(line, "@@"),
			strings.HasPrefix(line, `\ No newline at end of file`):
			continue
		}

		if !haveCurrent {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			added[current]++
		case strings.HasPrefix(line, "-"):
			removed[current]++
		}
	}

	sortedOrder := append([]string(nil), order...)
	sortStrings(sortedOrder)

	files := make([]FileStat, 0, len(sortedOrder))
	var totalAdded, totalRemoved int
	for _, path := range sortedOrder {
		a, rm := added[path], removed[path]
		files = append(files, FileStat{Path: path, LinesAdded: a, LinesRemoved: rm})
		totalAdded += a
		totalRemoved += rm
	}

	return Parsed{
		Files:             files,
		TotalFiles:        len(files),
		TotalLinesAdded:   totalAdded,
		TotalLinesRemoved: totalRemoved,
		DiffBytes:         diffBytes,
	}
}

func sortStrings(s []string) {
	// small insertion sort; diffs touch few files so this avoids an
	// extra import for a hot path that's never more than a handful of entries
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
