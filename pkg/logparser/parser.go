package logparser

import (
	"regexp"
	"strconv"
	"strings"
)

// summaryLineCount is N in "first N significant lines" (spec §4.5).
const summaryLineCount = 20

var (
	pythonTracebackHeader = regexp.MustCompile(`^Traceback \(most recent call last\):`)
	pythonFrameLine       = regexp.MustCompile(`^\s*File "([^"]+)", line (\d+), in (.+)$`)
	pythonErrorLine       = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception|Warning)):\s*(.*)$`)

	jsErrorLine = regexp.MustCompile(`^(?:Uncaught\s+)?([A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception)):\s*(.*)$`)
	jsFrameLine = regexp.MustCompile(`^\s*at\s+(.+?)\s+\(([^)]+)\)\s*$`)

	javaExceptionLine = regexp.MustCompile(`^(?:Exception in thread "[^"]+"\s+)?([A-Za-z_][A-Za-z0-9_.$]*(?:Exception|Error)):\s*(.*)$`)
	javaFrameLine     = regexp.MustCompile(`^\s*at\s+([A-Za-z0-9_.$]+)\(([^)]+)\)\s*$`)
	javaCausedBy      = regexp.MustCompile(`^Caused by:\s*([A-Za-z_][A-Za-z0-9_.$]*(?:Exception|Error)):\s*(.*)$`)

	goPanicLine = regexp.MustCompile(`^panic:\s*(.*)$`)
	goFrameLine = regexp.MustCompile(`^\s*(\S+\.go):(\d+)(?:\s+\+0x[0-9a-f]+)?\s*$`)

	pytestFailedLine = regexp.MustCompile(`^FAILED\s+(\S+)(?:\s+-\s+(.*))?$`)

	gccDiagLine = regexp.MustCompile(`^([^\s:][^:]*):(\d+):(?:(\d+):)?\s*(error|warning):\s*(.*)$`)
)

// Build parses logText into a FailureContextBundle. If logText exceeds
// maxBytes, it is truncated to the trailing maxBytes (tail-preserved, per
// the original implementation's log-ingestion truncation strategy), since
// the most recent output is almost always the one carrying the actual
// failure.
func Build(logText string, maxBytes int, meta Metadata) FailureContextBundle {
	truncated := false
	if maxBytes > 0 && len(logText) > maxBytes {
		logText = logText[len(logText)-maxBytes:]
		truncated = true
	}

	lines := strings.Split(logText, "\n")

	bundle := FailureContextBundle{
		EventID:    meta.EventID,
		Repo:       meta.Repo,
		CommitSHA:  meta.CommitSHA,
		Branch:     meta.Branch,
		PipelineID: meta.PipelineID,
		JobName:    meta.JobName,
		Truncated:  truncated,
	}

	var significant []string

	i := 0
	for i < len(lines) {
		line := lines[i]

		switch {
		case pythonTracebackHeader.MatchString(line):
			trace, consumed := parsePythonTraceback(lines, i)
			bundle.StackTraces = append(bundle.StackTraces, trace)
			bundle.Errors = append(bundle.Errors, LogError{Kind: "python_exception", Message: trace.Header, Line: i + 1})
			significant = append(significant, trace.Header)
			i += consumed
			continue

		case javaCausedBy.MatchString(line):
			m := javaCausedBy.FindStringSubmatch(line)
			trace, consumed := parseJavaFrames(lines, i+1, "Caused by: "+m[1]+": "+m[2])
			bundle.StackTraces = append(bundle.StackTraces, trace)
			bundle.Errors = append(bundle.Errors, LogError{Kind: "java_exception", Message: trace.Header, Line: i + 1})
			significant = append(significant, trace.Header)
			i += 1 + consumed
			continue

		case javaExceptionLine.MatchString(line) && javaFrameFollows(lines, i):
			m := javaExceptionLine.FindStringSubmatch(line)
			header := m[1] + ": " + m[2]
			trace, consumed := parseJavaFrames(lines, i+1, header)
			bundle.StackTraces = append(bundle.StackTraces, trace)
			bundle.Errors = append(bundle.Errors, LogError{Kind: "java_exception", Message: header, Line: i + 1})
			significant = append(significant, header)
			i += 1 + consumed
			continue

		case goPanicLine.MatchString(line):
			m := goPanicLine.FindStringSubmatch(line)
			header := "panic: " + m[1]
			trace, consumed := parseGoPanic(lines, i+1, header)
			bundle.StackTraces = append(bundle.StackTraces, trace)
			bundle.Errors = append(bundle.Errors, LogError{Kind: "go_panic", Message: header, Line: i + 1})
			significant = append(significant, header)
			i += 1 + consumed
			continue

		case pytestFailedLine.MatchString(line):
			m := pytestFailedLine.FindStringSubmatch(line)
			bundle.TestFailures = append(bundle.TestFailures, TestFailure{TestName: m[1], Message: m[2]})
			significant = append(significant, line)

		case gccDiagLine.MatchString(line):
			m := gccDiagLine.FindStringSubmatch(line)
			lineNo, _ := strconv.Atoi(m[2])
			col, _ := strconv.Atoi(m[3])
			bundle.BuildErrors = append(bundle.BuildErrors, BuildError{
				File: m[1], Line: lineNo, Column: col, Level: m[4], Message: m[5],
			})
			significant = append(significant, line)

		case jsErrorLine.MatchString(line) && !pythonErrorLine.MatchString(line):
			m := jsErrorLine.FindStringSubmatch(line)
			header := m[1] + ": " + m[2]
			trace, consumed := parseJSFrames(lines, i+1, header)
			if len(trace.Frames) > 0 {
				bundle.StackTraces = append(bundle.StackTraces, trace)
			}
			bundle.Errors = append(bundle.Errors, LogError{Kind: "javascript_error", Message: header, Line: i + 1})
			significant = append(significant, header)
			i += 1 + consumed
			continue
		}

		i++
	}

	bundle.LogSummary = strings.Join(firstN(significant, summaryLineCount), "\n")
	return bundle
}

func javaFrameFollows(lines []string, idx int) bool {
	return idx+1 < len(lines) && javaFrameLine.MatchString(lines[idx+1])
}

func parsePythonTraceback(lines []string, start int) (StackTrace, int) {
	trace := StackTrace{Kind: "python"}
	i := start + 1
	for i < len(lines) {
		if m := pythonFrameLine.FindStringSubmatch(lines[i]); m != nil {
			trace.Frames = append(trace.Frames, StackFrame{Location: m[1] + ":" + m[2], Raw: strings.TrimSpace(lines[i])})
			i++
			continue
		}
		if m := pythonErrorLine.FindStringSubmatch(lines[i]); m != nil {
			trace.Header = m[1] + ": " + m[2]
			i++
			break
		}
		if strings.TrimSpace(lines[i]) == "" {
			break
		}
		i++
	}
	if trace.Header == "" {
		trace.Header = "Traceback (most recent call last)"
	}
	return trace, i - start
}

func parseJavaFrames(lines []string, start int, header string) (StackTrace, int) {
	trace := StackTrace{Kind: "java", Header: header}
	i := start
	for i < len(lines) {
		m := javaFrameLine.FindStringSubmatch(lines[i])
		if m == nil {
			break
		}
		trace.Frames = append(trace.Frames, StackFrame{Location: m[1] + "(" + m[2] + ")", Raw: strings.TrimSpace(lines[i])})
		i++
	}
	return trace, i - start
}

func parseGoPanic(lines []string, start int, header string) (StackTrace, int) {
	trace := StackTrace{Kind: "go", Header: header}
	i := start
	for i < len(lines) {
		line := lines[i]
		if m := goFrameLine.FindStringSubmatch(line); m != nil {
			trace.Frames = append(trace.Frames, StackFrame{Location: m[1] + ":" + m[2], Raw: strings.TrimSpace(line)})
			i++
			continue
		}
		if strings.HasPrefix(line, "goroutine ") || strings.TrimSpace(line) == "" || strings.Contains(line, "(") {
			i++
			continue
		}
		break
	}
	return trace, i - start
}

func parseJSFrames(lines []string, start int, header string) (StackTrace, int) {
	trace := StackTrace{Kind: "javascript", Header: header}
	i := start
	for i < len(lines) {
		m := jsFrameLine.FindStringSubmatch(lines[i])
		if m == nil {
			break
		}
		trace.Frames = append(trace.Frames, StackFrame{Location: m[2], Raw: strings.TrimSpace(lines[i])})
		i++
	}
	return trace, i - start
}

func firstN(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}
