package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/selfheal/pipeline/pkg/artifact"
	"github.com/selfheal/pipeline/pkg/ingest"
	"github.com/selfheal/pipeline/pkg/pipelineerr"
)

// WebhookRequest is the provider-normalized CI event body. A real deployment
// decodes provider-specific payloads (GitHub Actions, GitLab CI, Jenkins)
// into this shape upstream of IngestEvent; this handler accepts the
// normalized form directly so the same route serves every provider named
// in the path parameter.
type WebhookRequest struct {
	Repo          string `json:"repo" binding:"required"`
	RunID         string `json:"run_id" binding:"required"`
	JobID         string `json:"job_id" binding:"required"`
	Attempt       int    `json:"attempt"`
	CommitSHA     string `json:"commit_sha"`
	Branch        string `json:"branch" binding:"required"`
	Stage         string `json:"stage" binding:"required"`
	FailureType   string `json:"failure_type" binding:"required"`
	CorrelationID string `json:"correlation_id"`
	DeliveryID    string `json:"delivery_id" binding:"required"`
}

// HandleWebhook implements POST /webhooks/{provider} (spec §6). The
// signature header is verified against WebhookSecret unless none is
// configured and this process is not running in production, in which case
// verification is skipped and a warning is logged (spec §6's documented
// development-mode escape hatch).
func (s *Server) HandleWebhook(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	if s.WebhookSecret == "" && !s.Production {
		slog.Warn("api: webhook signature verification skipped (no secret configured, non-production)", "provider", provider)
	} else if err := ingest.VerifySignature(c.GetHeader("X-Hub-Signature-256"), body, []byte(s.WebhookSecret)); err != nil {
		s.respondError(c, http.StatusUnauthorized, err)
		return
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	ev := ingest.NormalizedEvent{
		Provider:      provider,
		Repo:          req.Repo,
		RunID:         req.RunID,
		JobID:         req.JobID,
		Attempt:       req.Attempt,
		CommitSHA:     req.CommitSHA,
		Branch:        req.Branch,
		Stage:         req.Stage,
		FailureType:   req.FailureType,
		RawPayload:    body,
		CorrelationID: req.CorrelationID,
	}

	eventID, isNew, err := s.Ingestor.IngestEvent(c.Request.Context(), ev, req.DeliveryID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"event_id": eventID, "is_new": isNew})
}

func (s *Server) parseRunID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return uuid.Nil, false
	}
	return id, true
}

// GetRunArtifact implements GET /runs/{id}/artifact.
func (s *Server) GetRunArtifact(c *gin.Context) {
	id, ok := s.parseRunID(c)
	if !ok {
		return
	}
	run, err := s.Store.Runs.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusNotFound, err)
		return
	}
	a := artifact.RedactArtifact(s.Redactor, s.Engine.BuildArtifact(run))
	c.JSON(http.StatusOK, a)
}

// GetRunDiff implements GET /runs/{id}/diff, returning the patch's unified
// diff text as stored in FixPipelineRun.PatchDiffJSON.
func (s *Server) GetRunDiff(c *gin.Context) {
	id, ok := s.parseRunID(c)
	if !ok {
		return
	}
	run, err := s.Store.Runs.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusNotFound, err)
		return
	}

	var diffText string
	if len(run.PatchDiffJSON) > 0 {
		if err := json.Unmarshal(run.PatchDiffJSON, &diffText); err != nil {
			s.respondError(c, http.StatusInternalServerError, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "diff": s.Redactor.Text(diffText)})
}

// GetRunTimeline implements GET /runs/{id}/timeline, returning just the
// timeline slice of the run's provenance artifact.
func (s *Server) GetRunTimeline(c *gin.Context) {
	id, ok := s.parseRunID(c)
	if !ok {
		return
	}
	run, err := s.Store.Runs.GetRun(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusNotFound, err)
		return
	}
	a := s.Engine.BuildArtifact(run)
	c.JSON(http.StatusOK, gin.H{"run_id": id, "timeline": a.Timeline})
}

// ApprovePR implements POST /runs/{id}/approve-pr. A run stuck in
// awaiting_approval (manual_review_required) moves back into
// validation_passed so the next worker poll re-enters the PR stage.
func (s *Server) ApprovePR(c *gin.Context) {
	id, ok := s.parseRunID(c)
	if !ok {
		return
	}
	if err := s.Engine.ApproveRun(c.Request.Context(), id); err != nil {
		s.respondError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": id, "status": "validation_passed"})
}

// MergeOutcomeRequest is the body a CI-conclusion webhook (or a manual
// operator call) posts once a previously opened pull request's merge
// commit has finished its post-merge CI run.
type MergeOutcomeRequest struct {
	Repo       string `json:"repo" binding:"required"`
	Branch     string `json:"branch" binding:"required"`
	Conclusion string `json:"conclusion" binding:"required"`
}

// ObserveMergeOutcome implements POST /runs/{id}/merge-outcome, feeding a
// post-merge CI conclusion into the Post-Merge Monitor (spec §4.12). The
// path's run ID is accepted for routing symmetry with the other /runs/{id}
// endpoints but the monitor itself correlates by repo+branch, not run ID.
func (s *Server) ObserveMergeOutcome(c *gin.Context) {
	if _, ok := s.parseRunID(c); !ok {
		return
	}
	var req MergeOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	decision, err := s.Engine.ObserveMergeOutcome(c.Request.Context(), req.Repo, req.Branch, req.Conclusion)
	if err != nil {
		s.respondError(c, statusForError(err), err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// ExplainFailure implements GET /failures/{id}/explain, where id is the
// PipelineEvent's ID (spec §4.13's failure_id). Per spec §6, the
// response composes summary, evidence, proposed fix, safety, validation,
// run, and timeline into one payload, sparing a dashboard client from
// chaining the /runs/{id} endpoints itself.
func (s *Server) ExplainFailure(c *gin.Context) {
	id, ok := s.parseRunID(c)
	if !ok {
		return
	}
	run, err := s.Store.Runs.GetRunByEventID(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, http.StatusNotFound, err)
		return
	}
	a := artifact.RedactArtifact(s.Redactor, s.Engine.BuildArtifact(run))

	var summary json.RawMessage
	if len(run.RCAJSON) > 0 {
		summary = json.RawMessage(run.RCAJSON)
	}

	c.JSON(http.StatusOK, gin.H{
		"failure_id":   id,
		"run_id":       run.ID,
		"summary":      summary,
		"evidence":     a.EvidenceLinks,
		"proposed_fix": a.Stages.Plan,
		"safety":       a.Stages.PlanPolicy,
		"validation":   a.Stages.Validation,
		"run":          a.Identity,
		"timeline":     a.Timeline,
	})
}

// StreamDashboard implements the best-effort dashboard SSE stream backed
// by coordination.Broadcaster, spec §5's "dashboard pub/sub" surfaced over
// HTTP rather than WebSocket.
func (s *Server) StreamDashboard(c *gin.Context) {
	clientID := uuid.NewString()
	ch, cancel := s.Broadcaster.Register(clientID)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-ch:
			if !ok {
				return false
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return true
			}
			c.SSEvent("message", string(payload))
			return true
		}
	})
}

// Health implements GET /health: a liveness-level check that the process
// is responding at all.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HealthReady implements GET /health/ready: the database must be reachable
// for this process to accept traffic.
func (s *Server) HealthReady(c *gin.Context) {
	status, err := storeHealth(c.Request.Context(), s.Store)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

// HealthLive implements GET /health/live: process-level liveness only, no
// dependency checks, so an orchestrator's liveness probe never restarts a
// healthy process over a transient DB blip (that's what readiness is for).
func (s *Server) HealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// statusForError maps the pipeline's typed error taxonomy (pkg/pipelineerr)
// onto an HTTP status code.
func statusForError(err error) int {
	switch pipelineerr.KindOf(err) {
	case pipelineerr.KindStateConflict:
		return http.StatusConflict
	case pipelineerr.KindPolicy:
		return http.StatusUnprocessableEntity
	case pipelineerr.KindIngestion:
		return http.StatusBadRequest
	case pipelineerr.KindFatalConfig:
		return http.StatusInternalServerError
	case pipelineerr.KindTransient, pipelineerr.KindSandbox, pipelineerr.KindParse:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
