package postmerge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	entries := coordination.NewPostMergeStore(client)
	publisher := coordination.NewPublisher(client)
	return NewMonitor(entries, publisher, time.Hour)
}

func TestObserveWithNoRegisteredEntryIsIgnored(t *testing.T) {
	m := newTestMonitor(t)
	decision, err := m.Observe(context.Background(), "org/repo", "main", "success")
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, decision.Outcome)
	require.Empty(t, decision.RunID)
}

func TestRegisterThenObserveSuccessStabilizes(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "run-1", "org/repo", "main", 42))

	decision, err := m.Observe(ctx, "org/repo", "main", "success")
	require.NoError(t, err)
	require.Equal(t, OutcomeStabilized, decision.Outcome)
	require.Equal(t, "run-1", decision.RunID)

	// Entry must be deleted after resolution (single-reader semantics).
	decision2, err := m.Observe(ctx, "org/repo", "main", "success")
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, decision2.Outcome)
}

func TestRegisterThenObserveNeutralStabilizes(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "run-1", "org/repo", "main", 42))

	decision, err := m.Observe(ctx, "org/repo", "main", "Neutral")
	require.NoError(t, err)
	require.Equal(t, OutcomeStabilized, decision.Outcome)
}

func TestRegisterThenObserveFailureRegresses(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "run-2", "org/repo", "release", 7))

	decision, err := m.Observe(ctx, "org/repo", "release", "failure")
	require.NoError(t, err)
	require.Equal(t, OutcomeRegressed, decision.Outcome)
	require.Equal(t, "run-2", decision.RunID)
	require.Equal(t, "post_merge_regression", decision.BlockedReason)
}

func TestRegisterThenObserveTimedOutAndCancelledRegress(t *testing.T) {
	for _, conclusion := range []string{"timed_out", "cancelled"} {
		m := newTestMonitor(t)
		ctx := context.Background()
		require.NoError(t, m.Register(ctx, "run-3", "org/repo", "main", 1))

		decision, err := m.Observe(ctx, "org/repo", "main", conclusion)
		require.NoError(t, err)
		require.Equal(t, OutcomeRegressed, decision.Outcome, "conclusion %q should regress", conclusion)
	}
}

func TestRegisterThenObserveUnrecognizedConclusionIsIgnoredButEntrySurvives(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()
	require.NoError(t, m.Register(ctx, "run-4", "org/repo", "main", 1))

	decision, err := m.Observe(ctx, "org/repo", "main", "action_required")
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, decision.Outcome)
	require.Equal(t, "run-4", decision.RunID)

	// A subsequent real outcome must still resolve against the surviving entry.
	decision2, err := m.Observe(ctx, "org/repo", "main", "success")
	require.NoError(t, err)
	require.Equal(t, OutcomeStabilized, decision2.Outcome)
}
