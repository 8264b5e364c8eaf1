package adapters

import (
	"regexp"
	"strings"
)

var goMissingModulePattern = regexp.MustCompile(`no required module provides package\s+([^\s;]+)`)

// GoAdapter recognizes `go build`/`go test`-driven Go modules.
type GoAdapter struct{}

func (GoAdapter) Name() string                { return "go" }
func (GoAdapter) SupportedLanguages() []string { return []string{"go"} }
func (GoAdapter) AllowedFixTypes() map[string]bool {
	return toSet("update_config", "pin_dependency")
}
func (GoAdapter) AllowedCategories() map[string]bool {
	return toSet("go_mod_tidy", "go_add_missing_module")
}

func (GoAdapter) Detect(logText string, repoFiles []string) (DetectionResult, bool) {
	hasGoMod := hasSuffixAny(repoFiles, "go.mod")
	looksLikeGo := strings.Contains(logText, "go test") ||
		strings.Contains(logText, "go: ") ||
		strings.Contains(logText, "go.mod")

	if !hasGoMod && !looksLikeGo {
		return DetectionResult{}, false
	}

	var evidence []string
	category := "go_unknown"
	confidence := 0.35
	if hasGoMod {
		confidence = 0.6
	}

	for _, line := range strings.Split(logText, "\n") {
		s := strings.TrimSpace(line)
		if strings.Contains(s, "missing go.sum entry") {
			evidence = append(evidence, s)
			category = "go_mod_tidy"
			confidence = 0.85
			break
		}
	}

	if category == "go_unknown" {
		if m := goMissingModulePattern.FindString(logText); m != "" {
			evidence = append(evidence, m)
			category = "go_add_missing_module"
			confidence = 0.8
		}
	}

	if category == "go_unknown" {
		for _, line := range strings.Split(logText, "\n") {
			s := strings.TrimSpace(line)
			if strings.HasPrefix(s, "go: ") && strings.Contains(s, "module") && strings.Contains(s, "found") {
				evidence = append(evidence, s)
				confidence = maxFloat(confidence, 0.6)
				break
			}
		}
	}

	return DetectionResult{
		RepoLanguage:  "go",
		Category:      category,
		EvidenceLines: firstN(evidence, 8),
		Confidence:    confidence,
	}, true
}

func (GoAdapter) BuildValidationSteps(repoRoot string) []ValidationStep {
	return []ValidationStep{
		{Name: "go mod tidy", Command: "go mod tidy"},
		{Name: "go test", Command: "go test ./..."},
	}
}

func (GoAdapter) DeterministicPatch(plan PlanIntent, repoRoot string) (string, bool) {
	return "", false
}
