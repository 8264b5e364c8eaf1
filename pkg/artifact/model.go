// Package artifact assembles the ProvenanceArtifact (spec §4.13): the
// redacted record of a completed (or escalated) run, built from the run's
// persisted stage JSON blobs and timeline, with every string field passed
// through pkg/redact on both write and read. The record carries no content
// hash or signature.
package artifact

import (
	"encoding/json"
	"time"
)

// TimelineStep is one ordered entry in the run's timeline (spec §4.13).
type TimelineStep struct {
	Step        string     `json:"step"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`
}

// EvidenceLink is a pointer to supporting material (a CI log excerpt, an
// issue-graph node, a scan report) without inlining its full content.
type EvidenceLink struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

// SBOMReference is the recorded pointer to the gzipped syft SBOM written
// to artifacts/sbom/{run_id}.syft.json.gz (spec §6 persisted formats).
type SBOMReference struct {
	Path      string `json:"path"`
	SHA256    string `json:"sha256"`
	SizeBytes int64  `json:"size_bytes"`
	Format    string `json:"format"`
}

// Identity is the artifact's identity block (spec §4.13).
type Identity struct {
	RunID        string    `json:"run_id"`
	FailureID    string    `json:"failure_id"`
	Repo         string    `json:"repo"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// StageSummaries carries the subset of stage JSON the artifact exposes
// verbatim (already redacted), kept as raw json.RawMessage since the
// artifact's job is custody and redaction, not re-interpreting each
// stage's schema.
type StageSummaries struct {
	Plan         json.RawMessage `json:"plan,omitempty"`
	PlanPolicy   json.RawMessage `json:"plan_policy,omitempty"`
	PatchStats   json.RawMessage `json:"patch_stats,omitempty"`
	PatchPolicy  json.RawMessage `json:"patch_policy,omitempty"`
	Validation   json.RawMessage `json:"validation,omitempty"`
}

// ProvenanceArtifact is the full redacted record of one run; it has no hash
// or signature field.
type ProvenanceArtifact struct {
	Identity       Identity         `json:"identity"`
	Stages         StageSummaries   `json:"stages"`
	Timeline       []TimelineStep   `json:"timeline"`
	EvidenceLinks  []EvidenceLink   `json:"evidence_links,omitempty"`
	SBOM           *SBOMReference   `json:"sbom,omitempty"`
	GeneratedAt    time.Time        `json:"generated_at"`
}
