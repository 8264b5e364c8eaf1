package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DispatchEvent implements the transactional half of spec §4.1's
// IngestEvent contract: create-or-find the PipelineEvent by idempotency
// key, create-or-find its FixPipelineRun by event id, and flip the event
// pending -> dispatched, all under one transaction — "transition status
// pending -> dispatched under the same transaction that enqueues the
// orchestrator job" (spec §4.1). pkg/ingest owns the webhook-delivery
// dedup and idempotency-key computation that precede this call.
func (c *Client) DispatchEvent(ctx context.Context, ev PipelineEvent, runKey string) (eventID uuid.UUID, isNew bool, err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("store: begin dispatch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}

	const insertEvent = `
		INSERT INTO pipeline_events
			(id, idempotency_key, provider, repo, commit_sha, branch, stage, failure_type, raw_payload, status, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`

	var id uuid.UUID
	err = tx.QueryRowContext(ctx, insertEvent,
		ev.ID, ev.IdempotencyKey, ev.Provider, ev.Repo, ev.CommitSHA, ev.Branch,
		ev.Stage, ev.FailureType, ev.RawPayload, EventPending, ev.CorrelationID,
	).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		const lookup = `SELECT id FROM pipeline_events WHERE idempotency_key = $1`
		if err := tx.QueryRowContext(ctx, lookup, ev.IdempotencyKey).Scan(&id); err != nil {
			return uuid.Nil, false, fmt.Errorf("store: lookup existing event: %w", err)
		}
		return id, false, tx.Commit()
	case err != nil:
		return uuid.Nil, false, fmt.Errorf("store: insert event: %w", err)
	}
	isNew = true

	const insertRun = `
		INSERT INTO fix_pipeline_runs (id, event_id, run_key)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (event_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, insertRun, uuid.New(), id, runKey); err != nil {
		return uuid.Nil, false, fmt.Errorf("store: insert run: %w", err)
	}

	const dispatch = `UPDATE pipeline_events SET status = $2, updated_at = now() WHERE id = $1 AND status = $3`
	if _, err := tx.ExecContext(ctx, dispatch, id, EventDispatched, EventPending); err != nil {
		return uuid.Nil, false, fmt.Errorf("store: dispatch event: %w", err)
	}

	return id, isNew, tx.Commit()
}
