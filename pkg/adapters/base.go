// Package adapters implements the per-ecosystem Language Adapters (spec
// §4.4): detection of which language/build ecosystem produced a CI failure,
// the validation commands that ecosystem's sandbox step should run, which
// fix types and failure categories the adapter is willing to act on, and an
// optional deterministic (non-LLM) patch for mechanical fixes. Grounded on
// original_source's sre_agent/adapters package, with the registry shape
// generalized from the teacher's registry-of-registries config pattern
// (pkg/config's AgentRegistry/ChainRegistry).
package adapters

// DetectionResult is returned by Adapter.Detect when an adapter recognizes
// the failure as belonging to its ecosystem.
type DetectionResult struct {
	RepoLanguage  string
	Category      string
	EvidenceLines []string
	Confidence    float64 // 0.0-1.0
}

// ValidationStep is one command the sandbox validator should run to confirm
// a candidate patch actually fixes the build (spec §4.11).
type ValidationStep struct {
	Name           string
	Command        string
	TimeoutSeconds int // 0 means adapter/sandbox default
	Workdir        string
}

// PlanIntent is the minimal view of a FixPlan an adapter needs to attempt a
// deterministic patch: the fix type, the failure category, the target
// files, and free-form key/value data extracted during RCA/planning (e.g.
// {"package": "requests", "version": "2.31.0"}).
type PlanIntent struct {
	FixType     string
	Category    string
	TargetFiles []string
	Data        map[string]string
}

// Adapter is implemented once per supported ecosystem.
type Adapter interface {
	Name() string
	SupportedLanguages() []string

	// Detect inspects the CI log text and the list of repository file paths
	// and returns a non-nil result (ok=true) if this adapter recognizes the
	// failure as belonging to its ecosystem.
	Detect(logText string, repoFiles []string) (result DetectionResult, ok bool)

	// BuildValidationSteps returns the commands the sandbox should run to
	// confirm a patch against this ecosystem's build/test tooling.
	BuildValidationSteps(repoRoot string) []ValidationStep

	// AllowedFixTypes lists the fix types this adapter is willing to
	// generate or accept a patch for.
	AllowedFixTypes() map[string]bool

	// AllowedCategories lists the failure categories this adapter claims
	// ownership of for consensus/ranking purposes.
	AllowedCategories() map[string]bool

	// DeterministicPatch attempts to produce a unified diff mechanically,
	// without invoking an LLM, for plan intents this adapter recognizes
	// (e.g. bumping a pinned dependency version). Returns ok=false when no
	// deterministic rule applies and the caller should fall back to an
	// LLM-generated patch.
	DeterministicPatch(plan PlanIntent, repoRoot string) (diff string, ok bool)
}

func hasSuffixAny(paths []string, suffix string) bool {
	for _, p := range paths {
		if len(p) >= len(suffix) && p[len(p)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

func firstN(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
