// Package metrics defines and registers every Prometheus collector named
// in spec §6. Grounded on r3e-network-service_layer's pkg/metrics: a
// package-level Registry, one prometheus.NewCounterVec/GaugeVec per
// concern declared as a package var, all registered once from init, and a
// Handler() exposing them via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var Registry = prometheus.NewRegistry()

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_http_requests_total",
			Help: "Total inbound HTTP requests handled, by route and status.",
		},
		[]string{"route", "method", "status"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_pipeline_runs_total",
			Help: "Total fix pipeline runs reaching a counted milestone, by status (e.g. ingested, pr_created).",
		},
		[]string{"status"},
	)

	PipelineRetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_pipeline_retry_total",
			Help: "Total retries attempted across the pipeline, by stage.",
		},
		[]string{"stage"},
	)

	PipelineThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_pipeline_throttled_total",
			Help: "Total orchestrator jobs deferred for lack of a per-repo concurrency lease.",
		},
		[]string{"repo"},
	)

	PipelineLoopBlockedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_pipeline_loop_blocked_total",
			Help: "Total runs blocked by a loop/regression guard, by reason.",
		},
		[]string{"reason"},
	)

	PolicyViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_policy_violations_total",
			Help: "Total safety policy violations observed, by rule code.",
		},
		[]string{"code"},
	)

	WebhookDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sre_agent_webhook_deduped_total",
			Help: "Total inbound webhook deliveries recognized as duplicates.",
		},
	)

	CeleryTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sre_agent_celery_tasks_total",
			Help: "Total background tasks dispatched, by task name and outcome.",
		},
		[]string{"task", "status"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Current depth of a named work queue.",
		},
		[]string{"queue"},
	)
)

func init() {
	Registry.MustRegister(
		HTTPRequestsTotal,
		PipelineRunsTotal,
		PipelineRetryTotal,
		PipelineThrottledTotal,
		PipelineLoopBlockedTotal,
		PolicyViolationsTotal,
		WebhookDedupedTotal,
		CeleryTasksTotal,
		QueueDepth,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry in Prometheus text exposition format
// (spec §6 "GET /metrics — Prometheus text exposition").
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
