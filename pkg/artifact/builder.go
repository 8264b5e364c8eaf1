package artifact

import (
	"encoding/json"
	"time"

	"github.com/selfheal/pipeline/pkg/redact"
)

// Timing is one named duration fed into Builder.Build's timeline.
type Timing struct {
	Step        string
	Status      string
	StartedAt   time.Time
	CompletedAt time.Time
}

// StageJSONs is the run's persisted stage blobs (pkg/store.FixPipelineRun
// field subset the artifact actually surfaces).
type StageJSONs struct {
	Plan        []byte
	PlanPolicy  []byte
	PatchStats  []byte
	PatchPolicy []byte
	Validation  []byte
}

// Builder assembles and redacts ProvenanceArtifacts. Grounded on spec
// §4.13's build_provenance_artifact contract; redaction runs here (on
// write) and again in pkg/api's artifact handler (on read), matching the
// spec's "Redaction runs on write and on read; properties hold
// regardless."
type Builder struct {
	redactor *redact.Redactor
}

func NewBuilder(redactor *redact.Redactor) *Builder {
	return &Builder{redactor: redactor}
}

// Build assembles a ProvenanceArtifact from a run's identity, status,
// error message, ordered timings, stage JSON blobs, evidence links, and
// SBOM reference, redacting every string reachable from any field.
func (b *Builder) Build(
	runID, failureID, repo, status, errorMessage string,
	startedAt time.Time,
	timings []Timing,
	stages StageJSONs,
	evidence []EvidenceLink,
	sbom *SBOMReference,
) ProvenanceArtifact {
	identity := Identity{
		RunID:        runID,
		FailureID:    failureID,
		Repo:         repo,
		Status:       status,
		StartedAt:    startedAt,
		ErrorMessage: b.redactor.Text(errorMessage),
	}

	timeline := make([]TimelineStep, 0, len(timings))
	for _, t := range timings {
		step := TimelineStep{Step: t.Step, Status: t.Status}
		if !t.StartedAt.IsZero() {
			started := t.StartedAt
			step.StartedAt = &started
		}
		if !t.CompletedAt.IsZero() {
			completed := t.CompletedAt
			step.CompletedAt = &completed
			if step.StartedAt != nil {
				ms := t.CompletedAt.Sub(t.StartedAt).Milliseconds()
				step.DurationMS = &ms
			}
		}
		timeline = append(timeline, step)
	}

	redactedEvidence := make([]EvidenceLink, len(evidence))
	for i, e := range evidence {
		redactedEvidence[i] = EvidenceLink{Kind: e.Kind, Ref: b.redactor.Text(e.Ref)}
	}

	return ProvenanceArtifact{
		Identity: identity,
		Stages: StageSummaries{
			Plan:        b.redactJSON(stages.Plan),
			PlanPolicy:  b.redactJSON(stages.PlanPolicy),
			PatchStats:  b.redactJSON(stages.PatchStats),
			PatchPolicy: b.redactJSON(stages.PatchPolicy),
			Validation:  b.redactJSON(stages.Validation),
		},
		Timeline:      timeline,
		EvidenceLinks: redactedEvidence,
		SBOM:          sbom,
		GeneratedAt:   time.Now(),
	}
}

// redactJSON decodes a raw JSON-shaped blob, redacts every reachable
// string, and re-encodes it. Blobs that are empty or fail to decode as a
// JSON value pass through as nil so a malformed stage never breaks
// artifact assembly.
func (b *Builder) redactJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	redacted := b.redactor.Any(decoded)
	out, err := json.Marshal(redacted)
	if err != nil {
		return nil
	}
	return out
}

// RedactArtifact re-applies redaction to an already-assembled artifact,
// used by the read path (GET /runs/{id}/artifact) so a property that
// holds at write time still holds if a caller fetches a stale,
// pre-redaction-policy-update copy from storage.
func RedactArtifact(redactor *redact.Redactor, a ProvenanceArtifact) ProvenanceArtifact {
	a.Identity.ErrorMessage = redactor.Text(a.Identity.ErrorMessage)
	for i, e := range a.EvidenceLinks {
		a.EvidenceLinks[i] = EvidenceLink{Kind: e.Kind, Ref: redactor.Text(e.Ref)}
	}
	b := &Builder{redactor: redactor}
	a.Stages.Plan = b.redactJSON(a.Stages.Plan)
	a.Stages.PlanPolicy = b.redactJSON(a.Stages.PlanPolicy)
	a.Stages.PatchStats = b.redactJSON(a.Stages.PatchStats)
	a.Stages.PatchPolicy = b.redactJSON(a.Stages.PatchPolicy)
	a.Stages.Validation = b.redactJSON(a.Stages.Validation)
	return a
}
