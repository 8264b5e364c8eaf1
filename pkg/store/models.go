// Package store persists the pipeline's core entities (spec §3) on
// PostgreSQL via database/sql, without a code-generation step — see
// DESIGN.md's "Dropped teacher dependencies" note on entgo.io/ent.
package store

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus is PipelineEvent.status.
type EventStatus string

const (
	EventPending    EventStatus = "pending"
	EventDispatched EventStatus = "dispatched"
	EventProcessing EventStatus = "processing"
	EventCompleted  EventStatus = "completed"
	EventFailed     EventStatus = "failed"
)

// PipelineEvent is a single ingested CI failure notification.
type PipelineEvent struct {
	ID             uuid.UUID
	IdempotencyKey string
	Provider       string
	Repo           string
	CommitSHA      string
	Branch         string
	Stage          string
	FailureType    string
	RawPayload     []byte
	Status         EventStatus
	CorrelationID  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WebhookDelivery records every inbound webhook for at-least-once dedup.
type WebhookDelivery struct {
	ID           uuid.UUID
	DeliveryID   string
	EventType    string
	Repository   string
	Status       string
	Details      []byte
	ReceivedAt   time.Time
}

// AutomationMode is GitHubAppInstallation.automation_mode.
type AutomationMode string

const (
	AutomationSuggest  AutomationMode = "suggest"
	AutomationAutoPR   AutomationMode = "auto_pr"
	AutomationAutoMerge AutomationMode = "auto_merge"
)

// RunStatus is FixPipelineRun.status — the state machine of spec §4.10.
type RunStatus string

const (
	RunCreated            RunStatus = "created"
	RunContextBuilt       RunStatus = "context_built"
	RunRCAReady           RunStatus = "rca_ready"
	RunPlanBlocked        RunStatus = "plan_blocked"
	RunPlanReady          RunStatus = "plan_ready"
	RunCriticReady        RunStatus = "critic_ready"
	RunConsensusReady     RunStatus = "consensus_ready"
	RunPatchBlocked       RunStatus = "patch_blocked"
	RunPatchReady         RunStatus = "patch_ready"
	RunValidationFailed   RunStatus = "validation_failed"
	RunValidationPassed   RunStatus = "validation_passed"
	RunPRFailed           RunStatus = "pr_failed"
	RunPRCreated          RunStatus = "pr_created"
	RunAwaitingApproval   RunStatus = "awaiting_approval"
	RunMonitoring         RunStatus = "monitoring"
	RunMerged             RunStatus = "merged"
	RunEscalated          RunStatus = "escalated"
	RunBlocked            RunStatus = "blocked"
)

// runStatusOrder gives each status a monotonic rank along the spec §4.10
// state graph, used to reject backwards transitions (spec §3 invariant
// "stage monotonicity"). Terminal failure/side branches (*_blocked,
// *_failed, escalated, awaiting_approval) share the rank of the success
// status they stand in for (plan_blocked with plan_ready, validation_failed
// with validation_passed, pr_failed and awaiting_approval with pr_created),
// since the invariant only constrains forward progress
// through the success path, not which terminal branch is taken.
var runStatusOrder = map[RunStatus]int{
	RunCreated:          0,
	RunContextBuilt:      1,
	RunRCAReady:          2,
	RunPlanBlocked:       3,
	RunPlanReady:         3,
	RunCriticReady:       4,
	RunConsensusReady:    5,
	RunPatchBlocked:      6,
	RunPatchReady:        6,
	RunValidationFailed:  7,
	RunValidationPassed:  7,
	RunPRFailed:          8,
	RunPRCreated:         8,
	RunAwaitingApproval:  8,
	RunMonitoring:        9,
	RunMerged:            10,
	RunEscalated:         10,
	RunBlocked:           99,
}

// IsForwardTransition reports whether moving from 'from' to 'to' respects
// stage monotonicity. RunBlocked (the loop detector's terminal state) is
// always a legal destination.
func IsForwardTransition(from, to RunStatus) bool {
	if to == RunBlocked {
		return true
	}
	fromRank, fromOK := runStatusOrder[from]
	toRank, toOK := runStatusOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank >= fromRank
}

// FixPipelineRun is one run of the self-healing pipeline for one event.
type FixPipelineRun struct {
	ID                   uuid.UUID
	EventID              uuid.UUID
	RunKey               string
	Status               RunStatus
	ContextJSON          []byte
	RCAJSON              []byte
	PlanJSON             []byte
	PlanPolicyJSON       []byte
	PatchDiffJSON        []byte
	PatchStatsJSON       []byte
	PatchPolicyJSON      []byte
	ValidationJSON       []byte
	PRJSON               []byte
	CriticJSON           []byte
	MergeJSON            []byte
	PostMergeJSON        []byte
	IssueGraphJSON       []byte
	ConsensusJSON        []byte
	DetectionJSON        []byte
	AdapterName          string
	SBOMRefs             []byte
	AttemptCount         int
	BlockedReason        string
	LastPRURL            string
	AutomationMode       AutomationMode
	ManualReviewRequired bool
	RetryLimitSnapshot   int
	ErrorMessage         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// GitHubAppInstallation is an installed repo binding with its automation
// policy.
type GitHubAppInstallation struct {
	ID             uuid.UUID
	UserID         string
	RepoID         string
	InstallationID int64
	RepoFullName   string
	AutomationMode AutomationMode
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RepositoryConfig supplements the spec's core entity set with per-repo
// tunables referenced elsewhere (danger-score thresholds, retry limits,
// cooldown windows) that the original implementation stores alongside the
// installation but the distilled spec left implicit.
type RepositoryConfig struct {
	ID                 uuid.UUID
	RepoFullName       string
	RetryLimit         int
	ConcurrencyLimit   int
	CooldownSeconds    int
	SafeMaxDangerScore int
	VetoDangerScore    int
	MinAgreementRate   float64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
