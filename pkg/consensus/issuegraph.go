package consensus

import (
	"strconv"
	"strings"

	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/logparser"
)

func normalizePath(p string) string {
	normalized := strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(normalized, "./")
}

// fileFromFrame extracts the source file from a stack frame location. Most
// locations are already "file:line"; Java frames wrap it in
// "pkg.Class.method(File.java:line)", so a trailing parenthesized segment is
// unwrapped first.
func fileFromFrame(location string) string {
	inner := location
	if open := strings.LastIndex(location, "("); open != -1 {
		if closeIdx := strings.LastIndex(location, ")"); closeIdx > open {
			inner = location[open+1 : closeIdx]
		}
	}
	file := strings.SplitN(inner, ":", 2)[0]
	file = strings.TrimSpace(file)
	if file == "" {
		return ""
	}
	return normalizePath(file)
}

func severityKey(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	switch v {
	case "error", "warning", "info":
		return v
	default:
		return "error"
	}
}

type graphBuilder struct {
	issues         []IssueNode
	severityLevels map[string]int
	affectedFiles  []string
	seenFiles      map[string]bool
}

func (b *graphBuilder) trackFiles(paths []string) {
	for _, p := range paths {
		norm := normalizePath(p)
		if norm == "" || b.seenFiles[norm] {
			continue
		}
		b.seenFiles[norm] = true
		b.affectedFiles = append(b.affectedFiles, norm)
	}
}

func (b *graphBuilder) addIssue(issueID, message, severity string, filePaths, evidenceRefs []string) {
	if message = strings.TrimSpace(message); message == "" {
		message = "unknown_issue"
	}
	key := severityKey(severity)
	b.severityLevels[key]++
	b.issues = append(b.issues, IssueNode{
		IssueID:      issueID,
		Message:      message,
		Severity:     key,
		FilePaths:    nonNil(filePaths),
		EvidenceRefs: nonNil(evidenceRefs),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func firstNStrings(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// BuildIssueGraph constructs a deterministic issue graph from a parsed log
// bundle and an RCA result, in the same section order as the original
// implementation: recognized log errors, build diagnostics, test failures,
// stack traces, then RCA-affected files, with a single fallback issue if
// nothing else produced one. Consecutive issues are linked pairwise with a
// "correlates_with" relation.
func BuildIssueGraph(bundle logparser.FailureContextBundle, rca intelligence.RCAResult) IssueGraph {
	b := &graphBuilder{severityLevels: map[string]int{"error": 0, "warning": 0, "info": 0}, seenFiles: map[string]bool{}}

	for idx, e := range bundle.Errors {
		b.addIssue("error_"+strconv.Itoa(idx), e.Message, "error", nil, []string{e.Message})
	}

	for idx, be := range bundle.BuildErrors {
		b.addIssue(
			"build_"+strconv.Itoa(idx), be.Message, be.Level,
			[]string{be.File},
			[]string{be.File + ":" + strconv.Itoa(be.Line) + ":" + strconv.Itoa(be.Column)},
		)
		b.trackFiles([]string{be.File})
	}

	for idx, tf := range bundle.TestFailures {
		b.addIssue("test_"+strconv.Itoa(idx), tf.Message, "error", nil, []string{tf.TestName})
	}

	for idx, st := range bundle.StackTraces {
		var files []string
		for _, f := range firstNFrames(st.Frames, 2) {
			if file := fileFromFrame(f.Location); file != "" {
				files = append(files, file)
			}
		}
		b.addIssue("stack_"+strconv.Itoa(idx), st.Header, "error", files, []string{st.Kind})
		b.trackFiles(files)
	}

	for idx, af := range rca.AffectedFiles {
		b.trackFiles([]string{af.Filename})
		b.addIssue("rca_"+strconv.Itoa(idx), af.Reason, "info", []string{af.Filename}, []string{"rca_affected_file"})
	}

	if len(b.issues) == 0 {
		message := bundle.LogSummary
		if message == "" {
			message = rca.PrimaryHypothesis.Description
		}
		if message == "" {
			message = "unknown_issue"
		}
		var files []string
		for _, af := range firstNAffectedFiles(rca.AffectedFiles, 3) {
			files = append(files, af.Filename)
		}
		b.addIssue("fallback_0", message, "error", files, []string{bundle.EventID})
		b.trackFiles(files)
	}

	var links []IssueDependencyLink
	if len(b.issues) >= 2 {
		for i := 1; i < len(b.issues); i++ {
			links = append(links, IssueDependencyLink{
				Source: b.issues[i-1].IssueID, Target: b.issues[i].IssueID, Relation: "correlates_with",
			})
		}
	}

	sortedFiles := append([]string(nil), b.affectedFiles...)
	sortStrings(sortedFiles)

	severity := map[string]int{}
	for k, v := range b.severityLevels {
		if v > 0 {
			severity[k] = v
		}
	}

	return IssueGraph{
		Issues:          b.issues,
		AffectedFiles:   sortedFiles,
		SeverityLevels:  severity,
		DependencyLinks: links,
	}
}

func firstNFrames(frames []logparser.StackFrame, n int) []logparser.StackFrame {
	if len(frames) <= n {
		return frames
	}
	return frames[:n]
}

func firstNAffectedFiles(files []intelligence.AffectedFile, n int) []intelligence.AffectedFile {
	if len(files) <= n {
		return files
	}
	return files[:n]
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
