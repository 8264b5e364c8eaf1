// Package postmerge implements the Post-Merge Monitor (spec §4.12): it
// registers a {run_id, repo, branch, pr_number} correlation entry when a
// fix PR merges, and on the next CI outcome event for that (repo, branch)
// decides whether the fix stabilized or regressed the build.
//
// Grounded line-for-line on original_source's
// sre_agent/services/post_merge_monitor.py: Register mirrors its
// `register` (cache_set + dashboard event; the status change to monitoring
// is made by the caller), and
// Observe mirrors its `process_outcome` (success/neutral -> stabilized,
// failure/timed_out/cancelled -> regressed with blocked_reason, anything
// else ignored as a no-op). The KV correlation entry that original stores
// directly in Redis via its own cache_get/cache_set is supplied here by
// pkg/coordination.PostMergeStore, and its dashboard publish by
// pkg/coordination.Publisher.
package postmerge

import (
	"context"
	"strings"
	"time"

	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/selfheal/pipeline/pkg/metrics"
)

// Outcome is the normalized result of a CI run observed for a monitored
// (repo, branch) pair.
type Outcome string

const (
	OutcomeStabilized Outcome = "stabilized"
	OutcomeRegressed  Outcome = "regressed"
	OutcomeIgnored    Outcome = "ignored"
)

var stabilizingConclusions = map[string]bool{"success": true, "neutral": true}
var regressingConclusions = map[string]bool{"failure": true, "timed_out": true, "cancelled": true}

// Monitor wires the Redis correlation store, the dashboard publisher, and
// the metrics registry together.
type Monitor struct {
	entries    *coordination.PostMergeStore
	publisher  *coordination.Publisher
	ttl        time.Duration
}

func NewMonitor(entries *coordination.PostMergeStore, publisher *coordination.Publisher, ttl time.Duration) *Monitor {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Monitor{entries: entries, publisher: publisher, ttl: ttl}
}

// Register stores the correlation entry and publishes the "monitoring"
// dashboard event. It does not change the run's status: pkg/orchestrator
// transitions the run to monitoring in pkg/store after Register returns.
func (m *Monitor) Register(ctx context.Context, runID, repo, branch string, prNumber int) error {
	entry := coordination.PostMergeEntry{RunID: runID, Repo: repo, Branch: branch, PRNumber: prNumber}
	if err := m.entries.Register(ctx, entry, m.ttl); err != nil {
		return err
	}
	m.publisher.Publish(ctx, coordination.DashboardEvent{
		Type:     "post_merge_monitor",
		Stage:    "post_merge",
		Status:   "monitoring",
		RunID:    runID,
		Metadata: map[string]string{"repo": repo, "branch": branch},
	})
	return nil
}

// Decision is the caller-facing result of Observe: the outcome reached,
// the correlated run_id (empty if no entry was registered for the pair),
// and — for a regression — the blocked_reason to persist on the run.
type Decision struct {
	Outcome       Outcome
	RunID         string
	BlockedReason string
	Conclusion    string
}

// Observe processes one CI outcome event for (repo, branch). It returns
// OutcomeIgnored with an empty RunID if no post-merge entry is currently
// registered for the pair (spec §4.12: "single-writer/single-reader").
func (m *Monitor) Observe(ctx context.Context, repo, branch, conclusion string) (Decision, error) {
	entry, err := m.entries.Get(ctx, repo, branch)
	if err != nil {
		if err == coordination.ErrNoPostMergeEntry {
			return Decision{Outcome: OutcomeIgnored}, nil
		}
		return Decision{}, err
	}

	normalized := strings.ToLower(strings.TrimSpace(conclusion))

	switch {
	case stabilizingConclusions[normalized]:
		if err := m.entries.Delete(ctx, repo, branch); err != nil {
			return Decision{}, err
		}
		m.publisher.Publish(ctx, coordination.DashboardEvent{
			Type:     "post_merge_monitor",
			Stage:    "post_merge",
			Status:   "stabilized",
			RunID:    entry.RunID,
			Metadata: map[string]string{"repo": repo, "branch": branch},
		})
		return Decision{Outcome: OutcomeStabilized, RunID: entry.RunID, Conclusion: normalized}, nil

	case regressingConclusions[normalized]:
		if err := m.entries.Delete(ctx, repo, branch); err != nil {
			return Decision{}, err
		}
		metrics.PipelineLoopBlockedTotal.WithLabelValues("post_merge_regression").Inc()
		m.publisher.Publish(ctx, coordination.DashboardEvent{
			Type:     "post_merge_monitor",
			Stage:    "post_merge",
			Status:   "regressed",
			RunID:    entry.RunID,
			Metadata: map[string]string{"repo": repo, "branch": branch, "conclusion": normalized},
		})
		return Decision{
			Outcome:       OutcomeRegressed,
			RunID:         entry.RunID,
			BlockedReason: "post_merge_regression",
			Conclusion:    normalized,
		}, nil

	default:
		return Decision{Outcome: OutcomeIgnored, RunID: entry.RunID, Conclusion: normalized}, nil
	}
}
