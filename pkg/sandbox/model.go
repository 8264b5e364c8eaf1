// Package sandbox implements the Sandbox Validator (spec §4.11): it
// materializes an ephemeral container, clones the repository at a commit,
// applies a unified diff, runs the adapter-chosen validation steps, runs
// the gitleaks/trivy/syft scan suite, and produces a ValidationResult.
// Grounded on original_source's sre_agent/sandbox/scanners package for the
// scan result shapes and command/parsing contracts, and on the teacher's
// testcontainers-go usage (test/util/database.go) for container lifecycle
// idiom, generalized from a Postgres-only helper into a generic container
// runner since the teacher never runs arbitrary untrusted code.
package sandbox

import "time"

// Status is the lifecycle of a single validation run (spec §4.11.4).
type Status string

const (
	StatusPending   Status = "pending"
	StatusCloning   Status = "cloning"
	StatusPatching  Status = "patching"
	StatusInstalling Status = "installing"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Framework is the detected test runner, used to parse TestResult rows out
// of step output.
type Framework string

const (
	FrameworkPytest  Framework = "pytest"
	FrameworkJest    Framework = "jest"
	FrameworkMocha   Framework = "mocha"
	FrameworkGoTest  Framework = "go_test"
	FrameworkMaven   Framework = "maven"
	FrameworkGradle  Framework = "gradle"
	FrameworkCargo   Framework = "cargo"
	FrameworkRSpec   Framework = "rspec"
	FrameworkUnknown Framework = "unknown"
)

// ScanStatus is the outcome of one supply-chain scanner invocation.
type ScanStatus string

const (
	ScanPass      ScanStatus = "pass"
	ScanFail      ScanStatus = "fail"
	ScanError     ScanStatus = "error"
	ScanSkipped   ScanStatus = "skipped"
	ScanGenerated ScanStatus = "generated"
)

// Request describes one sandbox validation request (spec §4.11.1).
type Request struct {
	FixID           string
	EventID         string
	RepoURL         string
	Branch          string
	CommitSHA       string
	Diff            string
	AdapterName     string
	ValidationSteps []Step
	Config          Config
}

// Step is the sandbox-local view of adapters.ValidationStep; kept as its
// own type so this package has no import-time dependency on pkg/adapters,
// mirroring the teacher's convention of narrow per-package interfaces.
type Step struct {
	Name           string
	Command        string
	TimeoutSeconds int
	Workdir        string
}

// Config mirrors original_source's SandboxConfig.
type Config struct {
	DockerImage      string
	TimeoutSeconds   int
	MemoryLimitBytes int64
	CPULimit         float64
	NetworkEnabled   bool
	EnvVars          map[string]string
	WorkingDir       string
}

// DefaultConfig matches the original's field defaults.
func DefaultConfig() Config {
	return Config{
		DockerImage:      "ghcr.io/selfheal/sandbox:scanners-latest",
		TimeoutSeconds:   300,
		MemoryLimitBytes: 512 * 1024 * 1024,
		CPULimit:         1.0,
		NetworkEnabled:   false,
		WorkingDir:       "/workspace",
	}
}

// CommandResult is the outcome of one in-container command execution.
type CommandResult struct {
	Command         string
	ExitCode        int
	Stdout          string
	Stderr          string
	DurationSeconds float64
	TimedOut        bool
}

// Failed reports whether a scanner invocation should be treated as a tool
// failure rather than a clean pass/fail scan result — mirrors the
// original's command_failed: a non-{0,1} exit code or a timeout.
func (r CommandResult) Failed() bool {
	return r.TimedOut || (r.ExitCode != 0 && r.ExitCode != 1)
}

// TestResult is one parsed test outcome.
type TestResult struct {
	Name            string
	Status          string // passed/failed/skipped/error
	DurationSeconds float64
	ErrorMessage    string
}

// GitleaksFinding is a single redacted secret-scan hit: the raw file path
// is never retained, only its hash, matching original_source's
// sha256_path redaction.
type GitleaksFinding struct {
	RuleID       string
	FilePathHash string
}

type GitleaksScanResult struct {
	Status         ScanStatus
	Version        string
	DurationSeconds float64
	FindingsCount  int
	Findings       []GitleaksFinding
	ErrorMessage   string
}

type TrivyPackageSummary struct {
	Name  string
	Count int
}

type TrivyScanResult struct {
	Status              ScanStatus
	Version             string
	DurationSeconds     float64
	TotalVulnerabilities int
	SeverityCounts      map[string]int
	TopPackages         []TrivyPackageSummary
	Threshold           string
	ErrorMessage        string
}

type SbomResult struct {
	Status          ScanStatus
	Version         string
	DurationSeconds float64
	Path            string
	SHA256          string
	SizeBytes       int64
	Format          string
	ErrorMessage    string
}

type ScanSummary struct {
	Gitleaks GitleaksScanResult
	Trivy    TrivyScanResult
	SBOM     SbomResult
}

// Result is the sandbox's full report for one validation run (spec
// §4.11.4).
type Result struct {
	FixID           string
	EventID         string
	ValidationID    string
	Status          Status
	TestsPassed     int
	TestsFailed     int
	TestsSkipped    int
	TestsTotal      int
	TestResults     []TestResult
	ExecutionTime   time.Duration
	StepsCompleted  []string
	Logs            string
	ErrorMessage    string
	FrameworkFound  Framework
	DockerImage     string
	CreatedAt       time.Time
	CompletedAt     time.Time
	Scans           *ScanSummary
}

// IsSuccessful mirrors the original's is_successful property.
func (r Result) IsSuccessful() bool { return r.Status == StatusPassed }

// AllTestsPassed mirrors the original's all_tests_passed property.
func (r Result) AllTestsPassed() bool { return r.TestsFailed == 0 && r.TestsPassed > 0 }
