// Package ingest is the entry point for normalized CI failure events,
// before any of them reach pkg/orchestrator. It owns the two dedup rings
// named in spec §3/§4.1: WebhookDelivery (at-least-once delivery dedup)
// and PipelineEvent.idempotency_key (same-failure dedup across retried
// deliveries), and creates the FixPipelineRun row that the orchestrator's
// claim loop will later pick up.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/selfheal/pipeline/pkg/metrics"
	"github.com/selfheal/pipeline/pkg/orchestrator"
	"github.com/selfheal/pipeline/pkg/store"
)

// NormalizedEvent is the provider-agnostic shape a webhook handler builds
// before calling IngestEvent — the normalization step itself (per-provider
// payload parsing) is out of scope here (spec §1, "HTTP webhook handlers").
type NormalizedEvent struct {
	Provider      string
	Repo          string
	RunID         string
	JobID         string
	Attempt       int
	CommitSHA     string
	Branch        string
	Stage         string
	FailureType   string
	RawPayload    []byte
	CorrelationID string
}

// Ingestor wires the webhook dedup ring to the transactional event/run
// dispatch behind the single IngestEvent contract (spec §4.1).
type Ingestor struct {
	Webhooks *store.WebhookStore
	Store    *store.Client
}

// New builds an Ingestor from a store.Client.
func New(client *store.Client) *Ingestor {
	return &Ingestor{Webhooks: client.Webhooks, Store: client}
}

// ComputeIdempotencyKey builds the PipelineEvent.idempotency_key per the
// data-model table in spec §3: "{provider}:{repo}:{run_id}:{job_id}:{attempt}".
func ComputeIdempotencyKey(ev NormalizedEvent) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", ev.Provider, ev.Repo, ev.RunID, ev.JobID, ev.Attempt)
}

// IngestEvent implements spec §4.1's IngestEvent(normalized, delivery_id):
//  1. record the webhook delivery; a duplicate delivery_id is counted and
//     the event is never created or enqueued for it.
//  2. idempotently create the PipelineEvent; is_new=false short-circuits
//     before any run is created.
//  3. idempotently create the FixPipelineRun and flip the event from
//     pending to dispatched, marking it ready for the orchestrator's
//     claim loop (pkg/orchestrator.claimNextRun).
func (ig *Ingestor) IngestEvent(ctx context.Context, ev NormalizedEvent, deliveryID string) (eventID uuid.UUID, isNew bool, err error) {
	inserted, err := ig.Webhooks.RecordDelivery(ctx, store.WebhookDelivery{
		DeliveryID: deliveryID,
		EventType:  ev.Stage,
		Repository: ev.Repo,
		Status:     "received",
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("ingest: record delivery: %w", err)
	}
	if !inserted {
		metrics.WebhookDedupedTotal.Inc()
		return uuid.Nil, false, nil
	}

	idempotencyKey := ComputeIdempotencyKey(ev)
	runKey := orchestrator.ComputeRunKey(ev.Repo, ev.Branch, ev.Stage, ev.FailureType)

	id, isNew, err := ig.Store.DispatchEvent(ctx, store.PipelineEvent{
		IdempotencyKey: idempotencyKey,
		Provider:       ev.Provider,
		Repo:           ev.Repo,
		CommitSHA:      ev.CommitSHA,
		Branch:         ev.Branch,
		Stage:          ev.Stage,
		FailureType:    ev.FailureType,
		RawPayload:     ev.RawPayload,
		CorrelationID:  ev.CorrelationID,
	}, runKey)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("ingest: dispatch event: %w", err)
	}

	metrics.PipelineRunsTotal.WithLabelValues("ingested").Inc()
	return id, isNew, nil
}
