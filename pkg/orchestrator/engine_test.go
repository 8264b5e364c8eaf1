package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/selfheal/pipeline/pkg/adapters"
	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/selfheal/pipeline/pkg/intelligence"
	"github.com/selfheal/pipeline/pkg/logparser"
	"github.com/selfheal/pipeline/pkg/policy"
	"github.com/selfheal/pipeline/pkg/store"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type scriptedProvider struct {
	response string
}

func (p scriptedProvider) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	return p.response, nil
}

func (p scriptedProvider) ModelName() string { return "stub" }

func TestAdvanceContextTransitionsToContextBuiltWhenNotInCooldown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient := newTestRedis(t)
	st := store.NewClientFromDB(db)
	eng := &Engine{
		Store:    st,
		Cooldown: coordination.NewCooldownGuard(redisClient),
		Config:   DefaultConfig(),
	}

	run := &store.FixPipelineRun{ID: uuid.New(), Status: store.RunCreated}
	event := &store.PipelineEvent{
		ID: run.ID, Repo: "acme/widgets", Branch: "main",
		Stage: "test", FailureType: "assertion_failure", RawPayload: []byte("ModuleNotFoundError: no module named 'requests'"),
	}

	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, eng.advanceContext(context.Background(), run, event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceContextBlocksOnCooldown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient := newTestRedis(t)
	cooldown := coordination.NewCooldownGuard(redisClient)
	runKey := ComputeRunKey("acme/widgets", "main", "test", "assertion_failure")
	require.NoError(t, cooldown.MarkCompleted(context.Background(), runKey, time.Hour))

	st := store.NewClientFromDB(db)
	eng := &Engine{Store: st, Cooldown: cooldown, Config: DefaultConfig()}

	run := &store.FixPipelineRun{ID: uuid.New(), Status: store.RunCreated}
	event := &store.PipelineEvent{
		ID: run.ID, Repo: "acme/widgets", Branch: "main",
		Stage: "test", FailureType: "assertion_failure",
	}

	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, eng.advanceContext(context.Background(), run, event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceRCAParsesProviderOutputAndDetectsAdapter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewClientFromDB(db)
	registry := adapters.NewRegistry()
	provider := scriptedProvider{response: `{
		"classification": {"category": "dependency", "confidence": 0.9, "reasoning": "missing module", "indicators": ["ModuleNotFoundError"]},
		"primary_hypothesis": {"description": "missing package", "confidence": 0.85, "evidence": ["log line"]},
		"alternative_hypotheses": [],
		"affected_files": [],
		"similar_incidents": []
	}`}

	eng := &Engine{Store: st, Adapters: registry, RCA: intelligence.NewRCAStage(provider), Config: DefaultConfig()}

	bundle := logparser.FailureContextBundle{Repo: "acme/widgets", LogSummary: "ModuleNotFoundError: No module named 'requests'"}
	contextPayload, err := json.Marshal(bundle)
	require.NoError(t, err)

	run := &store.FixPipelineRun{ID: uuid.New(), Status: store.RunContextBuilt, ContextJSON: contextPayload}
	event := &store.PipelineEvent{ID: run.ID, Repo: "acme/widgets"}

	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, eng.advanceRCA(context.Background(), run, event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvancePlanBlocksOnPolicyViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewClientFromDB(db)
	polEngine, err := policy.New(policy.DefaultSafetyPolicy())
	require.NoError(t, err)

	provider := scriptedProvider{response: `{
		"root_cause": "workflow misconfigured",
		"category": "configuration",
		"confidence": 0.8,
		"files": [".github/workflows/ci.yml"],
		"operations": [{"type": "update_config", "file": ".github/workflows/ci.yml", "details": {}, "rationale": "r", "evidence": ["e"]}]
	}`}

	eng := &Engine{Store: st, Plan: intelligence.NewPlanStage(provider), Policy: polEngine, Config: DefaultConfig()}

	rca := intelligence.RCAResult{
		Classification: intelligence.Classification{Category: intelligence.CategoryConfiguration, Confidence: 0.8, Reasoning: "r", Indicators: []string{"x"}},
		PrimaryHypothesis: intelligence.RCAHypothesis{Description: "d", Confidence: 0.8, Evidence: []string{"e"}},
	}
	rcaPayload, err := json.Marshal(rca)
	require.NoError(t, err)

	run := &store.FixPipelineRun{ID: uuid.New(), Status: store.RunRCAReady, RCAJSON: rcaPayload}
	event := &store.PipelineEvent{ID: run.ID, Repo: "acme/widgets"}

	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, eng.advancePlan(context.Background(), run, event))
	require.NoError(t, mock.ExpectationsWereMet())
}
