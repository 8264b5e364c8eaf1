// Package coordination implements the Redis-backed shared-resource layer
// of spec §5: per-repo concurrency leases, the run_key cooldown check, the
// post-merge monitor's correlation entries, and best-effort dashboard
// pub/sub. Grounded on the fan-out/subscription shape of the teacher's
// pkg/events package, re-targeted from Postgres LISTEN/NOTIFY + WebSocket
// onto redis/go-redis/v9 pub/sub (see DESIGN.md's dropped-dependency note
// on coder/websocket).
package coordination

import "time"

// DashboardEvent is the best-effort pub/sub payload published on every
// orchestrator state transition (spec §4.10 "Side effects").
type DashboardEvent struct {
	Type          string            `json:"type"`
	Stage         string            `json:"stage"`
	Status        string            `json:"status"`
	FailureID     string            `json:"failure_id,omitempty"`
	RunID         string            `json:"run_id"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	PublishedAt   time.Time         `json:"published_at"`
}

// PostMergeEntry is the value registered at post_merge:{repo}:{branch}
// (spec §4.12).
type PostMergeEntry struct {
	RunID    string `json:"run_id"`
	Repo     string `json:"repo"`
	Branch   string `json:"branch"`
	PRNumber int    `json:"pr_number"`
}
