// Package policy implements the Safety Policy Engine (spec §4.2): a pure,
// deterministic evaluator over a PlanIntent or a parsed UnifiedDiff against a
// SafetyPolicy, producing a PolicyDecision with classified violations and a
// danger score. Grounded in original_source's safety/policy_models.py and
// safety/danger_score.py; the glob-matching sub-decisions (path policy,
// risky-path scoring) are expressed as an embedded Rego module evaluated
// in-process via github.com/open-policy-agent/opa/rego, composed with native
// Go for the deterministic numeric scoring and violation assembly.
package policy

import "github.com/selfheal/pipeline/pkg/diffutil"

// Severity classifies a policy violation.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityInfo  Severity = "info"
)

// Violation is a single classified policy finding.
type Violation struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
}

// DangerReason explains one contribution to the danger score.
type DangerReason struct {
	Code    string `json:"code"`
	Weight  int    `json:"weight"`
	Message string `json:"message"`
}

// PatchLimits bounds the shape of an acceptable diff.
type PatchLimits struct {
	MaxFiles        int `yaml:"max_files" json:"max_files"`
	MaxLinesAdded   int `yaml:"max_lines_added" json:"max_lines_added"`
	MaxLinesRemoved int `yaml:"max_lines_removed" json:"max_lines_removed"`
	MaxDiffBytes    int `yaml:"max_diff_bytes" json:"max_diff_bytes"`
}

// PathPolicy lists allowed/forbidden path globs. A path must match at least
// one allowed glob and no forbidden glob to pass.
type PathPolicy struct {
	Allowed   []string `yaml:"allowed" json:"allowed"`
	Forbidden []string `yaml:"forbidden" json:"forbidden"`
}

// SecretPolicy lists regexes that, if found in added diff lines, block the
// change outright.
type SecretPolicy struct {
	ForbiddenPatterns []string `yaml:"forbidden_patterns" json:"forbidden_patterns"`
}

// RiskyPathRule adds danger-score weight when any touched path matches Glob.
type RiskyPathRule struct {
	Glob    string `yaml:"glob" json:"glob"`
	Weight  int    `yaml:"weight" json:"weight"`
	Message string `yaml:"message" json:"message"`
}

// DangerPolicy configures the heuristic 0-100 danger score.
type DangerPolicy struct {
	SafeMax    int            `yaml:"safe_max" json:"safe_max"`
	Weights    map[string]int `yaml:"weights" json:"weights"` // per_file, per_50_lines_changed, per_10kb_diff
	RiskyPaths []RiskyPathRule `yaml:"risky_paths" json:"risky_paths"`
}

// SafetyPolicy is the full configuration for the policy engine, normally
// loaded from SAFETY_POLICY_PATH (YAML or JSON, spec §6).
type SafetyPolicy struct {
	Version     int          `yaml:"version" json:"version"`
	Paths       PathPolicy   `yaml:"paths" json:"paths"`
	Secrets     SecretPolicy `yaml:"secrets" json:"secrets"`
	PatchLimits PatchLimits  `yaml:"patch_limits" json:"patch_limits"`
	Danger      DangerPolicy `yaml:"danger" json:"danger"`
}

// DefaultSafetyPolicy mirrors the original implementation's built-in
// defaults, used when no SAFETY_POLICY_PATH is configured or a repository
// override doesn't fully specify a section.
func DefaultSafetyPolicy() SafetyPolicy {
	return SafetyPolicy{
		Version: 1,
		Paths: PathPolicy{
			Allowed: []string{"**"},
			Forbidden: []string{
				".git/**",
				".github/workflows/**",
				".github/actions/**",
				".env",
				".env.*",
				"**/*.pem",
				"**/*.key",
			},
		},
		Secrets: SecretPolicy{
			ForbiddenPatterns: []string{
				`(?i)password\s*[=:]\s*['"][^'"]+['"]`,
				`(?i)api[_-]?key\s*[=:]\s*['"][^'"]+['"]`,
				`(?i)secret\s*[=:]\s*['"][^'"]+['"]`,
				`(?i)token\s*[=:]\s*['"][^'"]+['"]`,
				`(?i)aws_access_key_id\s*[=:]`,
				`(?i)aws_secret_access_key\s*[=:]`,
				`ghp_[a-zA-Z0-9]{36}`,
				`sk-[a-zA-Z0-9]{20,}`,
				`-----BEGIN\s+(RSA\s+)?PRIVATE\s+KEY-----`,
			},
		},
		PatchLimits: PatchLimits{
			MaxFiles:        5,
			MaxLinesAdded:   200,
			MaxLinesRemoved: 200,
			MaxDiffBytes:    200_000,
		},
		Danger: DangerPolicy{
			SafeMax: 20,
			Weights: map[string]int{
				"per_file":             5,
				"per_50_lines_changed": 5,
				"per_10kb_diff":        3,
			},
			RiskyPaths: []RiskyPathRule{
				{Glob: "Dockerfile", Weight: 25, Message: "Touches Dockerfile"},
				{Glob: "docker-compose.yml", Weight: 25, Message: "Touches docker-compose.yml"},
				{Glob: ".github/**", Weight: 30, Message: "Touches GitHub configuration"},
				{Glob: "**/infra/**", Weight: 30, Message: "Touches infra directory"},
			},
		},
	}
}

// PlanIntent is the pre-patch view of a FixPlan used to pre-screen a plan
// before any diff is generated.
type PlanIntent struct {
	TargetFiles    []string `json:"target_files"`
	Category       string   `json:"category,omitempty"`
	OperationTypes []string `json:"operation_types"`
}

// operationWeights mirrors original_source's danger_score.py per-operation
// danger contribution, used only for PlanIntent scoring (a diff's danger
// comes from file/line/size buckets instead, since the concrete edit shape
// is already known by then).
var operationWeights = map[string]int{
	"modify_code":     15,
	"update_config":   8,
	"remove_unused":   5,
	"add_dependency":  5,
	"pin_dependency":  5,
}

// Decision is the engine's output: PolicyDecision in spec terms.
type Decision struct {
	Allowed       bool           `json:"allowed"`
	Violations    []Violation    `json:"violations"`
	DangerScore   int            `json:"danger_score"`
	DangerReasons []DangerReason `json:"danger_reasons"`
	PRLabel       string         `json:"pr_label"` // "safe" or "needs-review"
}

// BlockingViolations returns only the block-severity violations.
func (d Decision) BlockingViolations() []Violation {
	var out []Violation
	for _, v := range d.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

func normalizePath(p string) string {
	return diffutil.NormalizePath(p)
}
