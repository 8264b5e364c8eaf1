// Package api implements the HTTP surface spec.md §6 names, as gin
// handlers. Grounded on the teacher's pkg/api/handlers.go: a Server struct
// holding collaborator pointers, a NewServer constructor, and one handler
// method per route that binds the request, calls a collaborator, and
// writes a gin.H JSON response.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/selfheal/pipeline/pkg/ingest"
	"github.com/selfheal/pipeline/pkg/metrics"
	"github.com/selfheal/pipeline/pkg/orchestrator"
	"github.com/selfheal/pipeline/pkg/redact"
	"github.com/selfheal/pipeline/pkg/store"
)

// Server bundles every collaborator the HTTP surface calls into.
type Server struct {
	Engine       *orchestrator.Engine
	Ingestor     *ingest.Ingestor
	Store        *store.Client
	Broadcaster  *coordination.Broadcaster
	Redactor     *redact.Redactor
	WebhookSecret string
	Production   bool
}

// NewServer wires a Server from its collaborators.
func NewServer(engine *orchestrator.Engine, ingestor *ingest.Ingestor, client *store.Client, broadcaster *coordination.Broadcaster, redactor *redact.Redactor, webhookSecret string, production bool) *Server {
	return &Server{
		Engine:        engine,
		Ingestor:      ingestor,
		Store:         client,
		Broadcaster:   broadcaster,
		Redactor:      redactor,
		WebhookSecret: webhookSecret,
		Production:    production,
	}
}

// Router builds the gin engine with every route spec.md §6 names, plus
// the dashboard SSE stream and a CI-conclusion-webhook route the post-merge
// monitor needs.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.metricsMiddleware())

	r.POST("/webhooks/:provider", s.HandleWebhook)
	r.GET("/runs/:id/artifact", s.GetRunArtifact)
	r.GET("/runs/:id/diff", s.GetRunDiff)
	r.GET("/runs/:id/timeline", s.GetRunTimeline)
	r.POST("/runs/:id/approve-pr", s.ApprovePR)
	r.POST("/runs/:id/merge-outcome", s.ObserveMergeOutcome)
	r.GET("/failures/:id/explain", s.ExplainFailure)
	r.GET("/dashboard/stream", s.StreamDashboard)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/health", s.Health)
	r.GET("/health/ready", s.HealthReady)
	r.GET("/health/live", s.HealthLive)
	return r
}

// metricsMiddleware counts every request into
// metrics.HTTPRequestsTotal{route,method,status}, mirroring the teacher's
// gin middleware convention of wrapping the handler chain rather than
// instrumenting each handler individually.
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, http.StatusText(c.Writer.Status())).Inc()
	}
}

// respondError writes a redacted JSON error body with the HTTP status its
// caller chose (often via statusForError), so a secret embedded in an upstream error
// message never reaches an API client.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": s.Redactor.Text(err.Error())})
}

// storeHealth wraps store.Health against this server's pooled connection.
func storeHealth(ctx context.Context, client *store.Client) (*store.HealthStatus, error) {
	return store.Health(ctx, client.DB())
}
