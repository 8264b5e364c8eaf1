package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPicksPythonOnMissingModule(t *testing.T) {
	reg := NewRegistry()
	log := "Traceback (most recent call last):\nModuleNotFoundError: No module named 'requests'\n"
	selected, ok := reg.Select(log, []string{"pyproject.toml", "app/main.py"})
	require.True(t, ok)
	assert.Equal(t, "python", selected.Adapter.Name())
	assert.Equal(t, "python_missing_dependency", selected.Detection.Category)
	assert.InDelta(t, 0.9, selected.Detection.Confidence, 0.001)
}

func TestSelectPicksNodeOnMissingModule(t *testing.T) {
	reg := NewRegistry()
	log := "npm ERR! Cannot find module 'left-pad'\n"
	selected, ok := reg.Select(log, []string{"package.json"})
	require.True(t, ok)
	assert.Equal(t, "node", selected.Adapter.Name())
	assert.Equal(t, "node_missing_dependency", selected.Detection.Category)
}

func TestSelectReturnsFalseWhenNoAdapterMatches(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Select("completely unrelated failure output", nil)
	assert.False(t, ok)
}

func TestSelectTieBreaksByRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register([]Adapter{stubAdapter{name: "first", confidence: 0.5}, stubAdapter{name: "second", confidence: 0.5}})
	selected, ok := reg.Select("anything", nil)
	require.True(t, ok)
	assert.Equal(t, "first", selected.Adapter.Name())
}

type stubAdapter struct {
	name       string
	confidence float64
}

func (s stubAdapter) Name() string                { return s.name }
func (s stubAdapter) SupportedLanguages() []string { return nil }
func (s stubAdapter) Detect(logText string, repoFiles []string) (DetectionResult, bool) {
	return DetectionResult{RepoLanguage: s.name, Confidence: s.confidence}, true
}
func (s stubAdapter) BuildValidationSteps(repoRoot string) []ValidationStep { return nil }
func (s stubAdapter) AllowedFixTypes() map[string]bool                     { return nil }
func (s stubAdapter) AllowedCategories() map[string]bool                   { return nil }
func (s stubAdapter) DeterministicPatch(plan PlanIntent, repoRoot string) (string, bool) {
	return "", false
}

func TestAdapterDetectionForGoAndJavaAndDocker(t *testing.T) {
	goResult, ok := GoAdapter{}.Detect("missing go.sum entry for module foo", []string{"go.mod"})
	require.True(t, ok)
	assert.Equal(t, "go_mod_tidy", goResult.Category)

	javaResult, ok := JavaAdapter{}.Detect("[ERROR] Could not resolve dependencies for project", []string{"pom.xml"})
	require.True(t, ok)
	assert.Equal(t, "java_unknown", javaResult.Category)

	dockerResult, ok := DockerAdapter{}.Detect("failed to solve: process did not complete", []string{"Dockerfile"})
	require.True(t, ok)
	assert.Equal(t, "docker_unknown", dockerResult.Category)
}
