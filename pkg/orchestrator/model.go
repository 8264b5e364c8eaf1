// Package orchestrator implements the Fix Pipeline Orchestrator (spec
// §4.10): the state machine that advances one FixPipelineRun by exactly one
// stage per worker call, the per-repo concurrency lease and cooldown guard
// around it, and the worker pool that drives it. Grounded on the teacher's
// pkg/queue package: Worker/WorkerPool here mirror its poll-claim-execute-
// terminal-status loop, without its heartbeat (pkg/queue/worker.go, pkg/queue/pool.go),
// generalized from "chat session" to "fix pipeline run".
package orchestrator

import (
	"context"
	"time"

	"github.com/selfheal/pipeline/pkg/policy"
)

// PRRequest describes a pull request the orchestrator asks the VCS client
// to open once a patch has passed safety and sandbox validation.
type PRRequest struct {
	Repo        string
	Branch      string
	BaseBranch  string
	Title       string
	Body        string
	Diff        string
	NeedsReview bool
}

// PRResult is the outcome of opening a pull request.
type PRResult struct {
	URL    string
	Number int
}

// VCS is the out-of-scope collaborator abstraction named by spec §1,
// narrowed to exactly what the orchestrator calls: opening the terminal
// pull request and resolving a branch's current HEAD commit (used when a
// run carries no commit_sha, e.g. an approve-pr replay). Clone/checkout for
// patch generation is this package's own concern, see checkout.go; concrete
// VCS implementations live in pkg/vcs, outside this package's domain
// boundary.
type VCS interface {
	OpenPullRequest(ctx context.Context, req PRRequest) (PRResult, error)
	FetchCommitSHA(ctx context.Context, repo, branch string) (string, error)
}

// Config bundles the tunables spec §6's environment keys name.
type Config struct {
	MaxPipelineAttempts  int
	RepoConcurrencyLimit int
	LeaseTTL             time.Duration
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
	CooldownSeconds      int
	FailOnVulnSeverity   string
	ConsensusThresholds  consensusThresholds
	SafetyPolicy         policy.SafetyPolicy
	VetoDangerThreshold  int
}

type consensusThresholds struct {
	MinAgreement  float64
	MinConfidence float64
}

// DefaultConfig mirrors pkg/store.DefaultRepositoryConfig's numeric
// defaults, plus the policy engine's own DefaultSafetyPolicy.
func DefaultConfig() Config {
	return Config{
		MaxPipelineAttempts:  3,
		RepoConcurrencyLimit: 2,
		LeaseTTL:             5 * time.Minute,
		BaseBackoff:          5 * time.Second,
		MaxBackoff:           5 * time.Minute,
		CooldownSeconds:      3600,
		FailOnVulnSeverity:   "HIGH",
		ConsensusThresholds:  consensusThresholds{MinAgreement: 0.75, MinConfidence: 0.6},
		SafetyPolicy:         policy.DefaultSafetyPolicy(),
		VetoDangerThreshold:  80,
	}
}
