package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	PipelineRunsTotal.WithLabelValues("merged").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sre_agent_pipeline_runs_total")
}

func TestPipelineLoopBlockedTotalIncrementsByReason(t *testing.T) {
	PipelineLoopBlockedTotal.WithLabelValues("post_merge_regression").Inc()
	got := testutil.ToFloat64(PipelineLoopBlockedTotal.WithLabelValues("post_merge_regression"))
	require.GreaterOrEqual(t, got, float64(1))
}

func TestWebhookDedupedTotalHasNoLabels(t *testing.T) {
	before := testutil.ToFloat64(WebhookDedupedTotal)
	WebhookDedupedTotal.Inc()
	after := testutil.ToFloat64(WebhookDedupedTotal)
	require.Equal(t, before+1, after)
}
