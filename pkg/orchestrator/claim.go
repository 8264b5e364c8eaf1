package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// claimableStatuses are the run statuses a worker may pick up without an
// external trigger (spec §4.10's graph minus its externally-gated states:
// awaiting_approval only advances via ApproveRun, and monitoring only
// advances via the Post-Merge Monitor observing a later CI event, not by
// polling).
var claimableStatuses = []string{
	"created", "context_built", "rca_ready", "plan_ready", "critic_ready",
	"consensus_ready", "patch_ready", "validation_passed", "pr_created",
}

// ErrNoRunsAvailable indicates the claim query found no claimable row —
// the worker's poll loop treats this the same as the teacher's
// ErrNoSessionsAvailable: back off and try again next tick.
var ErrNoRunsAvailable = errors.New("orchestrator: no claimable runs available")

// claimNextRun atomically claims one claimable run for workerID, mirroring
// the teacher's claimNextSession: a single statement picks the
// longest-unclaimed eligible row via FOR UPDATE SKIP LOCKED (so concurrent
// workers never race on the same row) and stamps the lease in the same
// statement, committing immediately rather than holding the row lock across
// the (potentially slow) stage work that follows.
func claimNextRun(ctx context.Context, db *sql.DB, workerID string, leaseSeconds int) (uuid.UUID, error) {
	const query = `
		UPDATE fix_pipeline_runs
		SET locked_by = $1, locked_until = now() + ($2 || ' seconds')::interval
		WHERE id = (
			SELECT id FROM fix_pipeline_runs
			WHERE status = ANY($3)
			  AND (locked_until IS NULL OR locked_until < now())
			ORDER BY updated_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id`

	var id uuid.UUID
	err := db.QueryRowContext(ctx, query, workerID, leaseSeconds, claimableStatuses).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNoRunsAvailable
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("orchestrator: claim next run: %w", err)
	}
	return id, nil
}

// renewLease sets a claimed run's locked_until to now plus leaseSeconds,
// provided workerID still holds it. Its caller is Engine.delayRetry, which
// uses it to hold a retried run back for the retry backoff.
func renewLease(ctx context.Context, db *sql.DB, runID uuid.UUID, workerID string, leaseSeconds int) error {
	const query = `
		UPDATE fix_pipeline_runs
		SET locked_until = now() + ($3 || ' seconds')::interval
		WHERE id = $1 AND locked_by = $2`
	_, err := db.ExecContext(ctx, query, runID, workerID, leaseSeconds)
	if err != nil {
		return fmt.Errorf("orchestrator: renew run lease: %w", err)
	}
	return nil
}

// releaseLease clears a run's lease once the worker has finished advancing
// it (or given up), so the next poller's WHERE clause sees it as free
// immediately rather than waiting out the remainder of the lease.
func releaseLease(ctx context.Context, db *sql.DB, runID uuid.UUID, workerID string) error {
	const query = `
		UPDATE fix_pipeline_runs
		SET locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND locked_by = $2`
	_, err := db.ExecContext(ctx, query, runID, workerID)
	if err != nil {
		return fmt.Errorf("orchestrator: release run lease: %w", err)
	}
	return nil
}
