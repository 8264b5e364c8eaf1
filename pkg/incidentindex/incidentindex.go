// Package incidentindex implements the similar-incident search collaborator
// spec §1 names as out-of-scope detail ("Embedding/vector store for
// similar-incident search — abstracted behind IncidentIndex.Search(text,
// k)"): the interface itself is what pkg/intelligence would consult when
// present, and this package's concrete implementation searches on
// Postgres full-text rather than embeddings, a narrower but dependency-free
// substitute. Grounded on the teacher's
// pkg/services.SessionService.SearchSessions, which performs the same
// to_tsvector/plainto_tsquery full-text match over a similarly-shaped
// historical-incident table.
package incidentindex

import (
	"context"
	"database/sql"
	"fmt"
)

// Incident is one historical fix-pipeline run surfaced as a similar prior
// incident.
type Incident struct {
	RunID       string  `json:"run_id"`
	Repo        string  `json:"repo"`
	FailureType string  `json:"failure_type"`
	Status      string  `json:"status"`
	Rank        float64 `json:"rank"`
}

// Index is the out-of-scope collaborator abstraction spec §1 names. The
// RCA stage (pkg/intelligence) would consult this to enrich a prompt with
// similar past incidents; wiring that enrichment into advanceRCA is left
// for a future iteration (see DESIGN.md) since spec §1 places vector/
// embedding search itself out of scope, leaving only the interface shape
// to implement here.
type Index interface {
	Search(ctx context.Context, text string, k int) ([]Incident, error)
}

// PostgresIndex searches fix_pipeline_runs joined to pipeline_events via
// Postgres full-text search over the failure_type and raw_payload columns,
// ranked by ts_rank, rather than a true embedding/vector similarity search.
type PostgresIndex struct {
	db *sql.DB
}

// New wraps an existing pooled connection (normally store.Client.DB()).
func New(db *sql.DB) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Search returns the k fix_pipeline_runs whose originating event's
// failure_type and raw_payload best match text, most relevant first.
func (idx *PostgresIndex) Search(ctx context.Context, text string, k int) ([]Incident, error) {
	if k <= 0 {
		k = 5
	}

	const q = `
		SELECT r.id, e.repo, e.failure_type, r.status,
		       ts_rank(
		           to_tsvector('english', e.failure_type || ' ' || e.raw_payload::text),
		           plainto_tsquery('english', $1)
		       ) AS rank
		FROM fix_pipeline_runs r
		JOIN pipeline_events e ON e.id = r.event_id
		WHERE to_tsvector('english', e.failure_type || ' ' || e.raw_payload::text)
		      @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`

	rows, err := idx.db.QueryContext(ctx, q, text, k)
	if err != nil {
		return nil, fmt.Errorf("incidentindex: search: %w", err)
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var inc Incident
		if err := rows.Scan(&inc.RunID, &inc.Repo, &inc.FailureType, &inc.Status, &inc.Rank); err != nil {
			return nil, fmt.Errorf("incidentindex: scan row: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}
