package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// WebhookStore persists WebhookDelivery rows for at-least-once dedup.
type WebhookStore struct{ db *sql.DB }

// RecordDelivery inserts a delivery record, returning inserted=false if
// delivery_id was already seen — the caller increments
// sre_agent_webhook_deduped_total on that branch (spec §3, §6).
func (s *WebhookStore) RecordDelivery(ctx context.Context, wd WebhookDelivery) (inserted bool, err error) {
	if wd.ID == uuid.Nil {
		wd.ID = uuid.New()
	}

	const query = `
		INSERT INTO webhook_deliveries (id, delivery_id, event_type, repository, status, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (delivery_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query, wd.ID, wd.DeliveryID, wd.EventType, wd.Repository, wd.Status, wd.Details)
	if err != nil {
		return false, fmt.Errorf("store: record webhook delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: record webhook delivery: %w", err)
	}
	return n > 0, nil
}
