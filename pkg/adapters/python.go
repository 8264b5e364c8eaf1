package adapters

import (
	"regexp"
	"strings"
)

var pythonMissingModulePatterns = []*regexp.Regexp{
	regexp.MustCompile(`ModuleNotFoundError: No module named ['"]([^'"]+)['"]`),
	regexp.MustCompile(`No module named ['"]([^'"]+)['"]`),
}

// PythonAdapter recognizes pytest/pip/poetry-driven Python projects.
type PythonAdapter struct{}

func (PythonAdapter) Name() string                   { return "python" }
func (PythonAdapter) SupportedLanguages() []string    { return []string{"python"} }
func (PythonAdapter) AllowedFixTypes() map[string]bool {
	return toSet("add_dependency", "pin_dependency", "remove_unused")
}
func (PythonAdapter) AllowedCategories() map[string]bool {
	return toSet("python_missing_dependency", "lint_format")
}
func (PythonAdapter) BuildValidationSteps(repoRoot string) []ValidationStep { return nil }

func (PythonAdapter) Detect(logText string, repoFiles []string) (DetectionResult, bool) {
	hasPyproject := hasSuffixAny(repoFiles, "pyproject.toml")
	hasRequirements := hasSuffixAny(repoFiles, "requirements.txt")
	looksLikePython := strings.Contains(logText, "Traceback (most recent call last)") ||
		strings.Contains(logText, "ModuleNotFoundError")

	if !hasPyproject && !hasRequirements && !looksLikePython {
		return DetectionResult{}, false
	}

	var evidence []string
	category := "unknown"
	confidence := 0.35
	if hasPyproject || hasRequirements {
		confidence = 0.55
	}

	lines := strings.Split(logText, "\n")
outer:
	for _, line := range lines {
		for _, pat := range pythonMissingModulePatterns {
			if pat.MatchString(line) {
				evidence = append(evidence, strings.TrimSpace(line))
				category = "python_missing_dependency"
				confidence = 0.9
				break outer
			}
		}
	}

	if category == "unknown" {
		for _, line := range lines {
			if strings.Contains(line, "F401:") && strings.Contains(line, "imported but unused") {
				evidence = append(evidence, strings.TrimSpace(line))
				category = "lint_format"
				confidence = 0.7
				break
			}
		}
	}

	return DetectionResult{
		RepoLanguage:  "python",
		Category:      category,
		EvidenceLines: firstN(evidence, 5),
		Confidence:    confidence,
	}, true
}

// DeterministicPatch always defers to the LLM-generated patch path; the
// original implementation's Python adapter does not override this either,
// since pyproject.toml/requirements.txt edits have too many dialects (PEP
// 621, Poetry, pip-tools) to handle mechanically with confidence.
func (PythonAdapter) DeterministicPatch(plan PlanIntent, repoRoot string) (string, bool) {
	return "", false
}

func toSet(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}
