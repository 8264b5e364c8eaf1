package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/selfheal/pipeline/pkg/adapters"
	"github.com/selfheal/pipeline/pkg/artifact"
	"github.com/selfheal/pipeline/pkg/astguard"
	"github.com/selfheal/pipeline/pkg/consensus"
	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/logparser"
	"github.com/selfheal/pipeline/pkg/metrics"
	"github.com/selfheal/pipeline/pkg/patchgen"
	"github.com/selfheal/pipeline/pkg/pipelineerr"
	"github.com/selfheal/pipeline/pkg/policy"
	"github.com/selfheal/pipeline/pkg/postmerge"
	"github.com/selfheal/pipeline/pkg/redact"
	"github.com/selfheal/pipeline/pkg/sandbox"
	"github.com/selfheal/pipeline/pkg/store"
)

const maxLogBytes = 256 * 1024

// Engine wires every stage collaborator together and owns the single-step
// state machine of spec §4.10. Each AdvanceRun call performs exactly one
// forward transition (rule 2), persists it in one transaction, and returns;
// the caller (Worker) decides when to call again.
type Engine struct {
	Store     *store.Client
	Leaser    *coordination.RepoLeaser
	Cooldown  *coordination.CooldownGuard
	Publisher *coordination.Publisher
	Adapters  *adapters.Registry
	RCA       *intelligence.RCAStage
	Plan      *intelligence.PlanStage
	Critic    *intelligence.CriticStage
	Policy    *policy.Engine
	Patch     *patchgen.Generator
	DiffLLM   patchgen.DiffProvider
	Sandbox   *sandbox.Runner
	Artifact  *artifact.Builder
	Redactor  *redact.Redactor
	PostMerge *postmerge.Monitor
	VCS       VCS
	PRBreaker *gobreaker.CircuitBreaker
	Config    Config
}

// AdvanceRun performs the single next forward step for runID, acquiring the
// run's repo concurrency lease for the duration of the stage. workerID
// identifies the caller for the lease/backoff bookkeeping in claim.go.
func (e *Engine) AdvanceRun(ctx context.Context, runID uuid.UUID, workerID string) error {
	run, err := e.Store.Runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if run.AttemptCount > run.RetryLimitSnapshot {
		return e.block(ctx, run, "max_attempts", workerID)
	}

	event, err := e.Store.Events.GetByID(ctx, run.EventID)
	if err != nil {
		return err
	}
	repoCfg, err := e.Store.Repositories.GetOrDefault(ctx, event.Repo)
	if err != nil {
		return err
	}

	capacity := e.Config.RepoConcurrencyLimit
	if repoCfg.ConcurrencyLimit > 0 {
		capacity = repoCfg.ConcurrencyLimit
	}
	token, ok, err := e.Leaser.Acquire(ctx, event.Repo, capacity, e.Config.LeaseTTL)
	if err != nil {
		return err
	}
	if !ok {
		metrics.PipelineThrottledTotal.WithLabelValues(event.Repo).Inc()
		return e.unlock(ctx, runID, workerID)
	}
	defer func() { _ = e.Leaser.Release(context.Background(), event.Repo, token) }()

	var stageErr error
	switch run.Status {
	case store.RunCreated:
		stageErr = e.advanceContext(ctx, run, event)
	case store.RunContextBuilt:
		stageErr = e.advanceRCA(ctx, run, event)
	case store.RunRCAReady:
		stageErr = e.advancePlan(ctx, run, event)
	case store.RunPlanReady:
		stageErr = e.advanceCritic(ctx, run, event)
	case store.RunCriticReady:
		stageErr = e.advanceConsensus(ctx, run, event, repoCfg)
	case store.RunConsensusReady:
		stageErr = e.advancePatch(ctx, run, event)
	case store.RunPatchReady:
		stageErr = e.advanceSandbox(ctx, run, event)
	case store.RunValidationPassed:
		stageErr = e.advancePR(ctx, run, event, repoCfg)
	case store.RunPRCreated:
		stageErr = e.advanceRegisterMonitor(ctx, run, event)
	default:
		// Terminal or externally-gated state (awaiting_approval, monitoring,
		// merged, escalated, blocked, *_failed, *_blocked): nothing to do
		// from the poll loop.
	}

	if stageErr != nil && pipelineerr.IsRetryable(stageErr) {
		metrics.PipelineRetryTotal.WithLabelValues(string(run.Status)).Inc()
		_ = e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, run.Status, true, "", stageErr.Error())
		return e.delayRetry(ctx, runID, workerID, run.AttemptCount+1)
	}

	return e.unlock(ctx, runID, workerID)
}

func (e *Engine) unlock(ctx context.Context, runID uuid.UUID, workerID string) error {
	return releaseLease(ctx, e.Store.DB(), runID, workerID)
}

func (e *Engine) delayRetry(ctx context.Context, runID uuid.UUID, workerID string, attempt int) error {
	backoff := pipelineerr.ComputeBackoff(attempt, e.Config.BaseBackoff, e.Config.MaxBackoff)
	return renewLease(ctx, e.Store.DB(), runID, workerID, int(backoff.Seconds()))
}

func (e *Engine) block(ctx context.Context, run *store.FixPipelineRun, reason, workerID string) error {
	if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunBlocked, false, reason, ""); err != nil {
		return err
	}
	metrics.PipelineLoopBlockedTotal.WithLabelValues(reason).Inc()
	e.publish(ctx, "blocked", string(run.Status), run)
	return e.unlock(ctx, run.ID, workerID)
}

func (e *Engine) publish(ctx context.Context, eventType, stage string, run *store.FixPipelineRun) {
	e.Publisher.Publish(ctx, coordination.DashboardEvent{
		Type:   eventType,
		Stage:  stage,
		Status: string(run.Status),
		RunID:  run.ID.String(),
	})
}

// --- Context ----------------------------------------------------------

func (e *Engine) advanceContext(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	runKey := run.RunKey
	if runKey == "" {
		runKey = ComputeRunKey(event.Repo, event.Branch, event.Stage, event.FailureType)
	}

	inCooldown, err := e.Cooldown.InCooldown(ctx, runKey)
	if err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindTransient, "orchestrator: cooldown check")
	}
	if inCooldown {
		return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunBlocked, false, "cooldown", "")
	}

	meta := logparser.Metadata{
		EventID: event.ID.String(), Repo: event.Repo, CommitSHA: event.CommitSHA,
		Branch: event.Branch, PipelineID: event.ID.String(), JobName: event.Stage,
	}
	bundle := logparser.Build(string(event.RawPayload), maxLogBytes, meta)

	payload, err := json.Marshal(bundle)
	if err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: marshal context bundle")
	}
	if err := e.Store.Runs.UpdateStageJSON(ctx, run.ID, "context", payload); err != nil {
		return err
	}
	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunContextBuilt, false, "", "")
}

// --- RCA ----------------------------------------------------------------

func (e *Engine) advanceRCA(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	var bundle logparser.FailureContextBundle
	if err := json.Unmarshal(run.ContextJSON, &bundle); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode context bundle")
	}

	result, err := e.RCA.Analyze(ctx, bundle)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: marshal rca result")
	}
	if err := e.Store.Runs.UpdateStageJSON(ctx, run.ID, "rca", payload); err != nil {
		return err
	}

	selected, detected := e.Adapters.Select(bundle.LogSummary, affectedFilePaths(result))
	if detected {
		detPayload, _ := json.Marshal(selected.Detection)
		_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "detection", detPayload)
	}

	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunRCAReady, false, "", "")
}

func affectedFilePaths(rca intelligence.RCAResult) []string {
	paths := make([]string, 0, len(rca.AffectedFiles))
	for _, f := range rca.AffectedFiles {
		paths = append(paths, f.Filename)
	}
	return paths
}

// --- Plan -----------------------------------------------------------------

func (e *Engine) advancePlan(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	var rca intelligence.RCAResult
	if err := json.Unmarshal(run.RCAJSON, &rca); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode rca result")
	}

	plan, err := e.Plan.Generate(ctx, rca)
	planValid := err == nil
	if err != nil && !pipelineerr.Is(err, pipelineerr.KindParse) {
		return err // transient: retry
	}

	intent := policy.PlanIntent{TargetFiles: plan.Files, Category: plan.Category, OperationTypes: operationTypeStrings(plan.Operations)}
	decision, polErr := e.Policy.EvaluateIntent(ctx, intent)
	if polErr != nil {
		return pipelineerr.Wrap(polErr, pipelineerr.KindTransient, "orchestrator: evaluate plan intent")
	}

	planPayload, _ := json.Marshal(plan)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "plan", planPayload)
	policyPayload, _ := json.Marshal(decision)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "plan_policy", policyPayload)

	if !planValid || !decision.Allowed {
		reason := "plan_schema_invalid"
		if planValid {
			reason = "plan_policy_violation"
		}
		metrics.PolicyViolationsTotal.WithLabelValues(reason).Inc()
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPlanBlocked, true, reason, ""); err != nil {
			return err
		}
		e.publish(ctx, "stage_blocked", "plan", run)
		return nil
	}

	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPlanReady, false, "", "")
}

func operationTypeStrings(ops []intelligence.FixOperation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, string(op.Type))
	}
	return out
}

// --- Critic ---------------------------------------------------------------

func (e *Engine) advanceCritic(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	var rca intelligence.RCAResult
	var plan intelligence.FixPlan
	var bundle logparser.FailureContextBundle
	if err := json.Unmarshal(run.RCAJSON, &rca); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode rca result")
	}
	if err := json.Unmarshal(run.PlanJSON, &plan); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode fix plan")
	}
	_ = json.Unmarshal(run.ContextJSON, &bundle)

	decision, err := e.Critic.Review(ctx, rca, bundle, plan)
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(decision)
	if err := e.Store.Runs.UpdateStageJSON(ctx, run.ID, "critic", payload); err != nil {
		return err
	}
	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunCriticReady, false, "", "")
}

// --- Consensus --------------------------------------------------------------

func (e *Engine) advanceConsensus(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent, repoCfg store.RepositoryConfig) error {
	var rca intelligence.RCAResult
	var plan intelligence.FixPlan
	var critic intelligence.CriticDecision
	var policyDecision policy.Decision
	var bundle logparser.FailureContextBundle
	if err := json.Unmarshal(run.RCAJSON, &rca); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode rca result")
	}
	if err := json.Unmarshal(run.PlanJSON, &plan); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode fix plan")
	}
	if err := json.Unmarshal(run.CriticJSON, &critic); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode critic decision")
	}
	if err := json.Unmarshal(run.PlanPolicyJSON, &policyDecision); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode plan policy decision")
	}
	_ = json.Unmarshal(run.ContextJSON, &bundle)

	graph := consensus.BuildIssueGraph(bundle, rca)
	graphPayload, _ := json.Marshal(graph)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "issue_graph", graphPayload)

	veto := repoCfg.VetoDangerScore
	if veto <= 0 {
		veto = e.Config.VetoDangerThreshold
	}
	thresholds := consensus.Thresholds{MinAgreement: orDefault(repoCfg.MinAgreementRate, e.Config.ConsensusThresholds.MinAgreement), MinConfidence: e.Config.ConsensusThresholds.MinConfidence}

	decision := consensus.Evaluate(graph, plan, true, critic, true, policyDecision, veto, thresholds)
	payload, _ := json.Marshal(decision)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "consensus", payload)

	if decision.State != consensus.StateAccepted {
		reason := string(decision.State)
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPatchBlocked, true, reason, ""); err != nil {
			return err
		}
		e.publish(ctx, "stage_blocked", "consensus", run)
		return nil
	}

	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunConsensusReady, false, "", "")
}

func orDefault(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

// --- Patch ------------------------------------------------------------------

func (e *Engine) advancePatch(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	var plan intelligence.FixPlan
	if err := json.Unmarshal(run.PlanJSON, &plan); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode fix plan")
	}

	checkoutDir, err := shallowCheckout(ctx, event.Repo, event.CommitSHA)
	if err != nil {
		return err
	}
	defer removeCheckout(checkoutDir)

	var result patchgen.Result
	if e.DiffLLM != nil {
		result, err = e.Patch.GenerateWithLLMFallback(ctx, checkoutDir, plan, e.DiffLLM)
	} else {
		result, err = e.Patch.Generate(checkoutDir, plan)
	}
	if err != nil {
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPatchBlocked, true, "patch_generation_failed", err.Error()); err != nil {
			return err
		}
		e.publish(ctx, "stage_blocked", "patch", run)
		return nil
	}

	issues := astguard.CheckPython(checkoutDir, result.Stats.FilesChanged)
	if !issues.Passed {
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPatchBlocked, true, "post_patch_parse", ""); err != nil {
			return err
		}
		e.publish(ctx, "stage_blocked", "ast_guard", run)
		return nil
	}

	decision, err := e.Policy.EvaluateDiff(ctx, result.DiffText)
	if err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindTransient, "orchestrator: evaluate diff policy")
	}

	diffPayload, _ := json.Marshal(result.DiffText)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "patch_diff", diffPayload)
	statsPayload, _ := json.Marshal(result.Stats)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "patch_stats", statsPayload)
	policyPayload, _ := json.Marshal(decision)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "patch_policy", policyPayload)

	if !decision.Allowed {
		metrics.PolicyViolationsTotal.WithLabelValues("patch_policy_violation").Inc()
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPatchBlocked, true, "patch_policy_violation", ""); err != nil {
			return err
		}
		e.publish(ctx, "stage_blocked", "patch_policy", run)
		return nil
	}

	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPatchReady, false, "", "")
}

// --- Sandbox ------------------------------------------------------------------

func (e *Engine) advanceSandbox(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	var diffText string
	if err := json.Unmarshal(run.PatchDiffJSON, &diffText); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindParse, "orchestrator: decode patch diff")
	}
	var detection adapters.DetectionResult
	_ = json.Unmarshal(run.DetectionJSON, &detection)

	var steps []sandbox.Step
	for _, a := range e.Adapters.Adapters() {
		if a.Name() == run.AdapterName || (run.AdapterName == "" && a.Name() == detection.RepoLanguage) {
			for _, s := range a.BuildValidationSteps("") {
				steps = append(steps, sandbox.Step{Name: s.Name, Command: s.Command, TimeoutSeconds: s.TimeoutSeconds, Workdir: s.Workdir})
			}
			break
		}
	}

	req := sandbox.Request{
		FixID: run.ID.String(), EventID: event.ID.String(), RepoURL: event.Repo,
		Branch: event.Branch, CommitSHA: event.CommitSHA, Diff: diffText,
		AdapterName: run.AdapterName, ValidationSteps: steps, Config: sandbox.DefaultConfig(),
	}

	result, err := e.Sandbox.Validate(ctx, req)
	if err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindSandbox, "orchestrator: sandbox validation")
	}
	payload, _ := json.Marshal(result)
	if err := e.Store.Runs.UpdateStageJSON(ctx, run.ID, "validation", payload); err != nil {
		return err
	}

	if !result.IsSuccessful() {
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunValidationFailed, true, "sandbox_validation_failed", result.ErrorMessage); err != nil {
			return err
		}
		e.publish(ctx, "stage_failed", "sandbox", run)
		return nil
	}

	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunValidationPassed, false, "", "")
}

// --- PR -----------------------------------------------------------------------

func (e *Engine) advancePR(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent, repoCfg store.RepositoryConfig) error {
	if run.LastPRURL != "" {
		return e.finishPR(ctx, run, repoCfg)
	}

	var policyDecision policy.Decision
	_ = json.Unmarshal(run.PatchPolicyJSON, &policyDecision)

	needsReview := run.ManualReviewRequired || run.AutomationMode == store.AutomationSuggest || policyDecision.PRLabel == "needs-review"
	if needsReview && run.AutomationMode != store.AutomationAutoMerge {
		return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunAwaitingApproval, false, "", "")
	}

	var diffText string
	_ = json.Unmarshal(run.PatchDiffJSON, &diffText)
	var plan intelligence.FixPlan
	_ = json.Unmarshal(run.PlanJSON, &plan)

	branch := fmt.Sprintf("selfheal/%s", run.ID.String()[:8])
	prReq := PRRequest{
		Repo: event.Repo, Branch: branch, BaseBranch: event.Branch,
		Title: fmt.Sprintf("fix: %s", plan.RootCause), Body: prBody(plan, policyDecision),
		Diff: diffText, NeedsReview: needsReview,
	}
	result, err := e.openPullRequest(ctx, prReq)
	if err != nil {
		if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPRFailed, true, "pr_creation_failed", err.Error()); err != nil {
			return err
		}
		e.publish(ctx, "stage_failed", "pr", run)
		return nil
	}

	if _, err := e.Store.Runs.SetLastPRURL(ctx, run.ID, result.URL); err != nil {
		return err
	}
	prPayload, _ := json.Marshal(result)
	_ = e.Store.Runs.UpdateStageJSON(ctx, run.ID, "pr", prPayload)

	return e.finishPR(ctx, run, repoCfg)
}

// openPullRequest calls the VCS client through a circuit breaker when one
// is configured, so a string of failing PR-open calls (VCS outage, revoked
// App token) trips open and fails fast instead of letting every worker
// burn its lease on a call that will time out anyway.
func (e *Engine) openPullRequest(ctx context.Context, req PRRequest) (PRResult, error) {
	if e.PRBreaker == nil {
		return e.VCS.OpenPullRequest(ctx, req)
	}
	out, err := e.PRBreaker.Execute(func() (any, error) {
		return e.VCS.OpenPullRequest(ctx, req)
	})
	if err != nil {
		return PRResult{}, pipelineerr.Wrap(err, pipelineerr.KindTransient, "orchestrator: open pull request")
	}
	return out.(PRResult), nil
}

func (e *Engine) finishPR(ctx context.Context, run *store.FixPipelineRun, repoCfg store.RepositoryConfig) error {
	if err := e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunPRCreated, false, "", ""); err != nil {
		return err
	}
	cooldown := time.Duration(e.Config.CooldownSeconds) * time.Second
	if repoCfg.CooldownSeconds > 0 {
		cooldown = time.Duration(repoCfg.CooldownSeconds) * time.Second
	}
	if run.RunKey != "" && e.Cooldown != nil {
		if err := e.Cooldown.MarkCompleted(ctx, run.RunKey, cooldown); err != nil {
			slog.Warn("failed to mark run_key cooldown", "run_id", run.ID, "error", err)
		}
	}
	e.publish(ctx, "stage_completed", "pr", run)
	metrics.PipelineRunsTotal.WithLabelValues("pr_created").Inc()
	return nil
}

func prBody(plan intelligence.FixPlan, decision policy.Decision) string {
	return fmt.Sprintf("Root cause: %s\nCategory: %s\nSafety label: %s\nDanger score: %d\n",
		plan.RootCause, plan.Category, decision.PRLabel, decision.DangerScore)
}

// --- Post-merge registration --------------------------------------------------

func (e *Engine) advanceRegisterMonitor(ctx context.Context, run *store.FixPipelineRun, event *store.PipelineEvent) error {
	var pr PRResult
	_ = json.Unmarshal(run.PRJSON, &pr)

	if err := e.PostMerge.Register(ctx, run.ID.String(), event.Repo, event.Branch, pr.Number); err != nil {
		return pipelineerr.Wrap(err, pipelineerr.KindTransient, "orchestrator: register post-merge monitor")
	}
	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunMonitoring, false, "", "")
}

// --- Approval gate --------------------------------------------------------

// ApproveRun transitions an awaiting_approval run to the PR stage. It is the
// only legal way out of awaiting_approval (spec §4.10 rule 8) and is called
// directly by pkg/api, not by the worker poll loop.
func (e *Engine) ApproveRun(ctx context.Context, runID uuid.UUID) error {
	run, err := e.Store.Runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != store.RunAwaitingApproval {
		return pipelineerr.New(pipelineerr.KindStateConflict, fmt.Sprintf("orchestrator: run %s is not awaiting approval", runID))
	}
	return e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunValidationPassed, false, "", "")
}

// --- Post-merge outcome wiring -------------------------------------------

// ObserveMergeOutcome feeds a later CI outcome into the Post-Merge Monitor
// and, on regression, transitions the correlated run to escalated (spec
// §4.12).
func (e *Engine) ObserveMergeOutcome(ctx context.Context, repo, branch, conclusion string) (postmerge.Decision, error) {
	decision, err := e.PostMerge.Observe(ctx, repo, branch, conclusion)
	if err != nil || decision.RunID == "" {
		return decision, err
	}

	runID, parseErr := uuid.Parse(decision.RunID)
	if parseErr != nil {
		return decision, nil
	}
	run, err := e.Store.Runs.GetRun(ctx, runID)
	if err != nil {
		return decision, err
	}

	switch decision.Outcome {
	case postmerge.OutcomeStabilized:
		err = e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunMerged, false, "", "")
	case postmerge.OutcomeRegressed:
		err = e.Store.Runs.TransitionStatus(ctx, run.ID, run.Status, store.RunEscalated, false, decision.BlockedReason, "")
	}
	return decision, err
}

// --- Provenance emission --------------------------------------------------

// BuildArtifact assembles the redacted provenance document for a run,
// backing GET /runs/{id}/artifact.
func (e *Engine) BuildArtifact(run *store.FixPipelineRun) artifact.ProvenanceArtifact {
	timings := []artifact.Timing{
		{Step: "context", Status: stepStatus(run.ContextJSON), StartedAt: run.CreatedAt, CompletedAt: run.CreatedAt},
	}
	stages := artifact.StageJSONs{
		Plan: run.PlanJSON, PlanPolicy: run.PlanPolicyJSON,
		PatchStats: run.PatchStatsJSON, PatchPolicy: run.PatchPolicyJSON,
		Validation: run.ValidationJSON,
	}
	var sbomRef *artifact.SBOMReference
	if len(run.SBOMRefs) > 0 {
		var ref artifact.SBOMReference
		if json.Unmarshal(run.SBOMRefs, &ref) == nil {
			sbomRef = &ref
		}
	}
	return e.Artifact.Build(run.ID.String(), run.EventID.String(), "", string(run.Status), run.ErrorMessage,
		run.CreatedAt, timings, stages, nil, sbomRef)
}

func stepStatus(payload []byte) string {
	if len(payload) == 0 {
		return "pending"
	}
	return "completed"
}
