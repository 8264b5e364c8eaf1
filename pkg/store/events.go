package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup by primary/unique key finds no row.
var ErrNotFound = errors.New("store: not found")

// EventStore persists PipelineEvent rows.
type EventStore struct{ db *sql.DB }

// CreateEvent inserts a new event, or returns the id of the existing row
// if idempotency_key already exists — the ingestion path's idempotency
// guard (spec §3 invariant, spec §5 "Idempotency keys").
func (s *EventStore) CreateEvent(ctx context.Context, ev PipelineEvent) (uuid.UUID, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Status == "" {
		ev.Status = EventPending
	}

	const query = `
		INSERT INTO pipeline_events
			(id, idempotency_key, provider, repo, commit_sha, branch, stage, failure_type, raw_payload, status, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`

	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		ev.ID, ev.IdempotencyKey, ev.Provider, ev.Repo, ev.CommitSHA, ev.Branch,
		ev.Stage, ev.FailureType, ev.RawPayload, ev.Status, ev.CorrelationID,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		const lookup = `SELECT id FROM pipeline_events WHERE idempotency_key = $1`
		if err := s.db.QueryRowContext(ctx, lookup, ev.IdempotencyKey).Scan(&id); err != nil {
			return uuid.Nil, fmt.Errorf("store: lookup existing event: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: insert event: %w", err)
	}
	return id, nil
}

// GetByID fetches a single event by id.
func (s *EventStore) GetByID(ctx context.Context, id uuid.UUID) (*PipelineEvent, error) {
	const query = `
		SELECT id, idempotency_key, provider, repo, commit_sha, branch, stage, failure_type,
		       raw_payload, status, correlation_id, created_at, updated_at
		FROM pipeline_events WHERE id = $1`

	var ev PipelineEvent
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID, &ev.IdempotencyKey, &ev.Provider, &ev.Repo, &ev.CommitSHA, &ev.Branch,
		&ev.Stage, &ev.FailureType, &ev.RawPayload, &ev.Status, &ev.CorrelationID,
		&ev.CreatedAt, &ev.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get event: %w", err)
	}
	return &ev, nil
}

// UpdateStatus transitions an event's status and bumps updated_at.
func (s *EventStore) UpdateStatus(ctx context.Context, id uuid.UUID, status EventStatus) error {
	const query = `UPDATE pipeline_events SET status = $2, updated_at = now() WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("store: update event status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update event status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
