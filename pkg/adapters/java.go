package adapters

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	javaMissingVersionPattern = regexp.MustCompile(`dependencies\.dependency\.version.*?for\s+([A-Za-z0-9_.-]+):([A-Za-z0-9_.-]+)\s+is missing`)
	javaPluginMissingPattern  = regexp.MustCompile(`Plugin\s+([A-Za-z0-9_.-]+):([A-Za-z0-9_.-]+):([A-Za-z0-9_.-]+)\s+or one of its dependencies could not be resolved`)
)

// JavaAdapter recognizes Maven/Gradle-driven Java projects.
type JavaAdapter struct{}

func (JavaAdapter) Name() string                { return "java" }
func (JavaAdapter) SupportedLanguages() []string { return []string{"java"} }
func (JavaAdapter) AllowedFixTypes() map[string]bool {
	return toSet("pin_dependency", "update_config")
}
func (JavaAdapter) AllowedCategories() map[string]bool {
	return toSet("java_dependency_version_missing", "java_plugin_version_missing")
}

func (JavaAdapter) Detect(logText string, repoFiles []string) (DetectionResult, bool) {
	hasMaven := hasSuffixAny(repoFiles, "pom.xml")
	hasGradle := hasSuffixAny(repoFiles, "build.gradle") || hasSuffixAny(repoFiles, "build.gradle.kts")
	looksLikeJava := strings.Contains(logText, "mvn") ||
		strings.Contains(logText, "gradle") ||
		strings.Contains(logText, "Could not resolve dependencies")

	if !hasMaven && !hasGradle && !looksLikeJava {
		return DetectionResult{}, false
	}

	var evidence []string
	category := "java_unknown"
	confidence := 0.35
	if hasMaven || hasGradle {
		confidence = 0.6
	}

	if m := javaMissingVersionPattern.FindString(logText); m != "" {
		evidence = append(evidence, m)
		category = "java_dependency_version_missing"
		confidence = 0.85
	} else if m := javaPluginMissingPattern.FindString(logText); m != "" {
		evidence = append(evidence, m)
		category = "java_plugin_version_missing"
		confidence = 0.75
	}

	for _, line := range strings.Split(logText, "\n") {
		s := strings.TrimSpace(line)
		if (strings.Contains(s, "[ERROR]") && strings.Contains(s, "Could not resolve dependencies")) ||
			strings.Contains(s, "Could not find artifact") {
			evidence = append(evidence, s)
			confidence = maxFloat(confidence, 0.6)
			break
		}
	}

	return DetectionResult{
		RepoLanguage:  "java",
		Category:      category,
		EvidenceLines: firstN(evidence, 8),
		Confidence:    confidence,
	}, true
}

func (JavaAdapter) BuildValidationSteps(repoRoot string) []ValidationStep {
	if _, err := os.Stat(filepath.Join(repoRoot, "pom.xml")); err == nil {
		return []ValidationStep{{Name: "mvn test", Command: "mvn -q test"}}
	}
	if _, err := os.Stat(filepath.Join(repoRoot, "gradlew")); err == nil {
		return []ValidationStep{{Name: "gradle test", Command: "./gradlew test"}}
	}
	return []ValidationStep{{Name: "gradle test", Command: "gradle test"}}
}

func (JavaAdapter) DeterministicPatch(plan PlanIntent, repoRoot string) (string, bool) {
	return "", false
}
