package adapters

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// NodeAdapter recognizes npm/pnpm/yarn-driven JavaScript/TypeScript projects.
type NodeAdapter struct{}

func (NodeAdapter) Name() string                { return "node" }
func (NodeAdapter) SupportedLanguages() []string { return []string{"javascript", "typescript"} }
func (NodeAdapter) AllowedFixTypes() map[string]bool {
	return toSet("add_dependency", "pin_dependency", "update_config")
}
func (NodeAdapter) AllowedCategories() map[string]bool {
	return toSet("node_missing_dependency", "node_lockfile_mismatch")
}

func (NodeAdapter) Detect(logText string, repoFiles []string) (DetectionResult, bool) {
	hasPackageJSON := hasSuffixAny(repoFiles, "package.json")
	looksLikeNode := strings.Contains(logText, "npm ERR!") ||
		strings.Contains(logText, "Cannot find module") ||
		strings.Contains(logText, "ERR_PNPM")

	if !hasPackageJSON && !looksLikeNode {
		return DetectionResult{}, false
	}

	var evidence []string
	category := "node_unknown"
	confidence := 0.35
	if hasPackageJSON {
		confidence = 0.55
	}

	for _, line := range strings.Split(logText, "\n") {
		s := strings.TrimSpace(line)
		if strings.Contains(s, "npm ERR!") || strings.Contains(s, "ERR_PNPM") {
			evidence = append(evidence, s)
			confidence = maxFloat(confidence, 0.6)
		}
		if strings.Contains(s, "Cannot find module") || strings.Contains(s, "ERR_MODULE_NOT_FOUND") {
			evidence = append(evidence, s)
			category = "node_missing_dependency"
			confidence = 0.9
			break
		}
	}

	if category == "node_unknown" {
		for _, line := range strings.Split(logText, "\n") {
			s := strings.TrimSpace(line)
			if strings.Contains(s, "package-lock.json") && (strings.Contains(s, "out of date") || strings.Contains(s, "npm ci")) {
				evidence = append(evidence, s)
				category = "node_lockfile_mismatch"
				confidence = 0.75
				break
			}
		}
	}

	return DetectionResult{
		RepoLanguage:  "node",
		Category:      category,
		EvidenceLines: firstN(evidence, 8),
		Confidence:    confidence,
	}, true
}

func (NodeAdapter) BuildValidationSteps(repoRoot string) []ValidationStep {
	steps := []ValidationStep{
		{Name: "npm ci", Command: "npm ci"},
		{Name: "npm test", Command: "npm test"},
	}

	raw, err := os.ReadFile(filepath.Join(repoRoot, "package.json"))
	if err != nil {
		return steps
	}
	var manifest struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return steps
	}
	if manifest.Scripts["lint"] != "" {
		steps = append(steps, ValidationStep{Name: "npm run lint", Command: "npm run lint"})
	}
	return steps
}

func (NodeAdapter) DeterministicPatch(plan PlanIntent, repoRoot string) (string, bool) {
	return "", false
}
