package adapters

import (
	"regexp"
	"strings"
)

var dockerManifestPattern = regexp.MustCompile(`pull access denied|manifest for .* not found|not found: manifest`)

// DockerAdapter recognizes `docker build`-driven image builds.
type DockerAdapter struct{}

func (DockerAdapter) Name() string                { return "docker" }
func (DockerAdapter) SupportedLanguages() []string { return []string{"docker"} }
func (DockerAdapter) AllowedFixTypes() map[string]bool {
	return toSet("update_config")
}
func (DockerAdapter) AllowedCategories() map[string]bool {
	return toSet("docker_pin_base_image", "docker_apt_get_cleanup")
}

func (DockerAdapter) Detect(logText string, repoFiles []string) (DetectionResult, bool) {
	hasDockerfile := hasSuffixAny(repoFiles, "Dockerfile")
	looksLikeDocker := strings.Contains(logText, "failed to solve") || strings.Contains(logText, "docker build")

	if !hasDockerfile && !looksLikeDocker {
		return DetectionResult{}, false
	}

	var evidence []string
	category := "docker_unknown"
	confidence := 0.35
	if hasDockerfile {
		confidence = 0.65
	}

	for _, line := range strings.Split(logText, "\n") {
		s := strings.TrimSpace(line)
		if strings.Contains(s, "failed to solve") || strings.Contains(s, "Dockerfile") {
			evidence = append(evidence, s)
			confidence = maxFloat(confidence, 0.65)
		}
		if strings.Contains(s, "apt-get") && (strings.Contains(s, "failed") || strings.Contains(s, "Unable to locate package")) {
			evidence = append(evidence, s)
			category = "docker_apt_get_cleanup"
			confidence = 0.75
			break
		}
		if dockerManifestPattern.MatchString(s) {
			evidence = append(evidence, s)
			category = "docker_pin_base_image"
			confidence = 0.75
			break
		}
	}

	return DetectionResult{
		RepoLanguage:  "docker",
		Category:      category,
		EvidenceLines: firstN(evidence, 8),
		Confidence:    confidence,
	}, true
}

func (DockerAdapter) BuildValidationSteps(repoRoot string) []ValidationStep {
	return []ValidationStep{{Name: "docker build", Command: "docker build -t selfheal-validate ."}}
}

func (DockerAdapter) DeterministicPatch(plan PlanIntent, repoRoot string) (string, bool) {
	return "", false
}
