package policy

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/selfheal/pipeline/pkg/diffutil"
)

// Engine evaluates PlanIntent and diff-shaped changes against a SafetyPolicy.
// It holds no mutable state beyond its configuration and is safe for
// concurrent use once constructed.
type Engine struct {
	policy        SafetyPolicy
	secretRegexes []*regexp.Regexp
}

// New compiles the given policy's secret patterns once and returns a
// ready-to-use Engine. An error is returned only if a configured pattern
// fails to compile as a regex, since a policy with a broken pattern cannot
// safely be evaluated at all (spec §4.2: policy evaluation never panics,
// but a misconfigured policy is a fatal startup error, not a per-request one).
func New(p SafetyPolicy) (*Engine, error) {
	e := &Engine{policy: p}
	for _, pattern := range p.Secrets.ForbiddenPatterns {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("policy: compile secret pattern %q: %w", pattern, err)
		}
		e.secretRegexes = append(e.secretRegexes, compiled)
	}
	return e, nil
}

// EvaluateIntent pre-screens a FixPlan before any diff exists: path
// allow/forbid rules against the plan's declared target files, plus a
// coarse operation-type-weighted danger score. This lets the pipeline reject
// an obviously unsafe plan (spec §4.3 "plan/operations coherence") before
// spending an LLM call generating its patch.
func (e *Engine) EvaluateIntent(ctx context.Context, intent PlanIntent) (Decision, error) {
	files := normalizeAll(intent.TargetFiles)

	glob, err := evaluateGlobs(ctx, files, e.policy.Paths.Allowed, e.policy.Paths.Forbidden, e.policy.Danger.RiskyPaths)
	if err != nil {
		return Decision{}, err
	}

	var violations []Violation
	forbiddenSet := toSet(glob.Forbidden)
	allowedSet := toSet(glob.Allowed)
	for _, f := range files {
		if forbiddenSet[f] {
			violations = append(violations, Violation{
				Code: "forbidden_path", Severity: SeverityBlock,
				Message: fmt.Sprintf("path %q matches a forbidden pattern", f), File: f,
			})
			continue
		}
		if len(e.policy.Paths.Allowed) > 0 && !allowedSet[f] {
			violations = append(violations, Violation{
				Code: "path_not_allowed", Severity: SeverityBlock,
				Message: fmt.Sprintf("path %q does not match any allowed pattern", f), File: f,
			})
		}
	}

	var reasons []DangerReason
	score := 0
	for _, op := range intent.OperationTypes {
		if w, ok := operationWeights[op]; ok {
			score += w
			reasons = append(reasons, DangerReason{Code: "operation:" + op, Weight: w, Message: fmt.Sprintf("plan includes a %s operation", op)})
		}
	}
	for _, hit := range glob.Risky {
		rule := e.policy.Danger.RiskyPaths[hit.RuleIndex]
		score += rule.Weight
		reasons = append(reasons, DangerReason{Code: "risky_path", Weight: rule.Weight, Message: rule.Message})
	}
	score = clamp(score, 0, 100)
	sortViolations(violations)
	allowed := len(blockers(violations)) == 0

	return Decision{
		Allowed:       allowed,
		Violations:    violations,
		DangerScore:   score,
		DangerReasons: reasons,
		PRLabel:       prLabel(allowed, score, e.policy.Danger.SafeMax),
	}, nil
}

// EvaluateDiff runs the full policy pass against a concrete unified diff:
// path policy, patch-size limits, secret-pattern scanning of added lines,
// and the file/line/size-weighted danger score. This is the gate the
// pipeline must pass before a patch can reach the sandbox validator (spec
// §4.2, invariant "no patch reaches a PR without a clean safety decision").
func (e *Engine) EvaluateDiff(ctx context.Context, diffText string) (Decision, error) {
	parsed := diffutil.Parse(diffText)
	files := make([]string, len(parsed.Files))
	for i, f := range parsed.Files {
		files[i] = f.Path
	}

	glob, err := evaluateGlobs(ctx, files, e.policy.Paths.Allowed, e.policy.Paths.Forbidden, e.policy.Danger.RiskyPaths)
	if err != nil {
		return Decision{}, err
	}

	var violations []Violation
	forbiddenSet := toSet(glob.Forbidden)
	allowedSet := toSet(glob.Allowed)
	for _, f := range files {
		if forbiddenSet[f] {
			violations = append(violations, Violation{
				Code: "forbidden_path", Severity: SeverityBlock,
				Message: fmt.Sprintf("path %q matches a forbidden pattern", f), File: f,
			})
			continue
		}
		if len(e.policy.Paths.Allowed) > 0 && !allowedSet[f] {
			violations = append(violations, Violation{
				Code: "path_not_allowed", Severity: SeverityBlock,
				Message: fmt.Sprintf("path %q does not match any allowed pattern", f), File: f,
			})
		}
	}

	limits := e.policy.PatchLimits
	if limits.MaxFiles > 0 && parsed.TotalFiles > limits.MaxFiles {
		violations = append(violations, Violation{
			Code: "too_many_files", Severity: SeverityBlock,
			Message: fmt.Sprintf("diff touches %d files, limit is %d", parsed.TotalFiles, limits.MaxFiles),
		})
	}
	if limits.MaxLinesAdded > 0 && parsed.TotalLinesAdded > limits.MaxLinesAdded {
		violations = append(violations, Violation{
			Code: "too_many_lines_added", Severity: SeverityBlock,
			Message: fmt.Sprintf("diff adds %d lines, limit is %d", parsed.TotalLinesAdded, limits.MaxLinesAdded),
		})
	}
	if limits.MaxLinesRemoved > 0 && parsed.TotalLinesRemoved > limits.MaxLinesRemoved {
		violations = append(violations, Violation{
			Code: "too_many_lines_removed", Severity: SeverityBlock,
			Message: fmt.Sprintf("diff removes %d lines, limit is %d", parsed.TotalLinesRemoved, limits.MaxLinesRemoved),
		})
	}
	if limits.MaxDiffBytes > 0 && parsed.DiffBytes > limits.MaxDiffBytes {
		violations = append(violations, Violation{
			Code: "diff_too_large", Severity: SeverityBlock,
			Message: fmt.Sprintf("diff is %d bytes, limit is %d", parsed.DiffBytes, limits.MaxDiffBytes),
		})
	}

	for _, line := range addedLines(diffText) {
		for _, re := range e.secretRegexes {
			if re.MatchString(line) {
				violations = append(violations, Violation{
					Code: "secret_detected", Severity: SeverityBlock,
					Message: "added line matches a forbidden secret pattern",
				})
				break
			}
		}
	}

	weights := e.policy.Danger.Weights
	score := 0
	var reasons []DangerReason
	if w := weights["per_file"]; w > 0 && parsed.TotalFiles > 0 {
		contribution := w * parsed.TotalFiles
		score += contribution
		reasons = append(reasons, DangerReason{Code: "files_touched", Weight: contribution, Message: fmt.Sprintf("%d files touched", parsed.TotalFiles)})
	}
	if w := weights["per_50_lines_changed"]; w > 0 {
		changed := parsed.TotalLinesAdded + parsed.TotalLinesRemoved
		buckets := changed / 50
		if buckets > 0 {
			contribution := w * buckets
			score += contribution
			reasons = append(reasons, DangerReason{Code: "lines_changed", Weight: contribution, Message: fmt.Sprintf("%d lines changed", changed)})
		}
	}
	if w := weights["per_10kb_diff"]; w > 0 {
		buckets := parsed.DiffBytes / 10_000
		if buckets > 0 {
			contribution := w * buckets
			score += contribution
			reasons = append(reasons, DangerReason{Code: "diff_size", Weight: contribution, Message: fmt.Sprintf("%d byte diff", parsed.DiffBytes)})
		}
	}
	for _, hit := range glob.Risky {
		rule := e.policy.Danger.RiskyPaths[hit.RuleIndex]
		score += rule.Weight
		reasons = append(reasons, DangerReason{Code: "risky_path", Weight: rule.Weight, Message: rule.Message})
	}
	score = clamp(score, 0, 100)
	sortViolations(violations)
	allowed := len(blockers(violations)) == 0

	return Decision{
		Allowed:       allowed,
		Violations:    violations,
		DangerScore:   score,
		DangerReasons: reasons,
		PRLabel:       prLabel(allowed, score, e.policy.Danger.SafeMax),
	}, nil
}

// addedLines returns the content (without the leading "+") of every added
// line in a unified diff, excluding the "+++" file header lines.
func addedLines(diffText string) []string {
	var out []string
	for _, raw := range strings.Split(diffText, "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if strings.HasPrefix(line, "+++") {
			continue
		}
		if strings.HasPrefix(line, "+") {
			out = append(out, line[1:])
		}
	}
	return out
}

func normalizeAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = normalizePath(p)
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}

func blockers(violations []Violation) []Violation {
	var out []Violation
	for _, v := range violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// prLabel is "safe" iff the decision is allowed and the danger score does
// not exceed safeMax; otherwise "needs-review".
func prLabel(allowed bool, score, safeMax int) string {
	if allowed && score <= safeMax {
		return "safe"
	}
	return "needs-review"
}

// severityRank orders violations block > warn > info for the tie-break sort.
func severityRank(s Severity) int {
	switch s {
	case SeverityBlock:
		return 0
	case SeverityWarn:
		return 1
	default:
		return 2
	}
}

// sortViolations orders violations by (severity desc, code asc, file asc),
// matching the policy engine's documented tie-breaking rule.
func sortViolations(violations []Violation) {
	sort.SliceStable(violations, func(i, j int) bool {
		a, b := violations[i], violations[j]
		if severityRank(a.Severity) != severityRank(b.Severity) {
			return severityRank(a.Severity) < severityRank(b.Severity)
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.File < b.File
	})
}
