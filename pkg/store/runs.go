package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RunStore persists FixPipelineRun rows.
type RunStore struct{ db *sql.DB }

// CreateRun idempotently creates a run for an event. If a row already
// exists for event_id it is returned as-is except that run_key/context/
// rca are backfilled when the existing row has them unset — mirroring
// the teacher's original FixPipelineRunStore.create_run upsert semantics
// (spec §3 invariant "one run per event").
func (s *RunStore) CreateRun(ctx context.Context, eventID uuid.UUID, runKey string, contextJSON, rcaJSON []byte) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: begin create run tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const selectExisting = `
		SELECT id, run_key, context_json, rca_json
		FROM fix_pipeline_runs WHERE event_id = $1 FOR UPDATE`

	var (
		existingID      uuid.UUID
		existingRunKey  sql.NullString
		existingContext []byte
		existingRCA     []byte
	)
	err = tx.QueryRowContext(ctx, selectExisting, eventID).Scan(&existingID, &existingRunKey, &existingContext, &existingRCA)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		newID := uuid.New()
		const insert = `
			INSERT INTO fix_pipeline_runs (id, event_id, run_key, context_json, rca_json)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5)
			ON CONFLICT (event_id) DO NOTHING
			RETURNING id`
		var id uuid.UUID
		insErr := tx.QueryRowContext(ctx, insert, newID, eventID, runKey, contextJSON, rcaJSON).Scan(&id)
		if errors.Is(insErr, sql.ErrNoRows) {
			// Lost a race with a concurrent creator; fall back to their row.
			const lookup = `SELECT id FROM fix_pipeline_runs WHERE event_id = $1`
			if err := tx.QueryRowContext(ctx, lookup, eventID).Scan(&id); err != nil {
				return uuid.Nil, fmt.Errorf("store: lookup concurrently-created run: %w", err)
			}
			return id, tx.Commit()
		}
		if insErr != nil {
			return uuid.Nil, fmt.Errorf("store: insert run: %w", insErr)
		}
		return id, tx.Commit()

	case err != nil:
		return uuid.Nil, fmt.Errorf("store: lookup run by event: %w", err)
	}

	updates := map[string]any{}
	if runKey != "" && !existingRunKey.Valid {
		updates["run_key"] = runKey
	}
	if contextJSON != nil && existingContext == nil {
		updates["context_json"] = contextJSON
	}
	if rcaJSON != nil && existingRCA == nil {
		updates["rca_json"] = rcaJSON
	}
	if len(updates) > 0 {
		if err := execFieldUpdate(ctx, tx, "fix_pipeline_runs", existingID, updates); err != nil {
			return uuid.Nil, err
		}
	}

	return existingID, tx.Commit()
}

// GetRun fetches a run by id.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (*FixPipelineRun, error) {
	return scanRun(s.db.QueryRowContext(ctx, selectRunColumns+` WHERE id = $1`, id))
}

// GetRunByEventID fetches a run by its owning event.
func (s *RunStore) GetRunByEventID(ctx context.Context, eventID uuid.UUID) (*FixPipelineRun, error) {
	return scanRun(s.db.QueryRowContext(ctx, selectRunColumns+` WHERE event_id = $1`, eventID))
}

const selectRunColumns = `
	SELECT id, event_id, run_key, status, context_json, rca_json, plan_json, plan_policy_json,
	       patch_diff_json, patch_stats_json, patch_policy_json, validation_json, pr_json,
	       critic_json, merge_json, post_merge_json, issue_graph_json, consensus_json,
	       detection_json, adapter_name, sbom_refs, attempt_count, blocked_reason, last_pr_url,
	       automation_mode, manual_review_required, retry_limit_snapshot, error_message,
	       created_at, updated_at
	FROM fix_pipeline_runs`

func scanRun(row *sql.Row) (*FixPipelineRun, error) {
	var r FixPipelineRun
	var runKey, adapterName, blockedReason, lastPRURL, errorMessage sql.NullString
	err := row.Scan(
		&r.ID, &r.EventID, &runKey, &r.Status, &r.ContextJSON, &r.RCAJSON, &r.PlanJSON, &r.PlanPolicyJSON,
		&r.PatchDiffJSON, &r.PatchStatsJSON, &r.PatchPolicyJSON, &r.ValidationJSON, &r.PRJSON,
		&r.CriticJSON, &r.MergeJSON, &r.PostMergeJSON, &r.IssueGraphJSON, &r.ConsensusJSON,
		&r.DetectionJSON, &adapterName, &r.SBOMRefs, &r.AttemptCount, &blockedReason, &lastPRURL,
		&r.AutomationMode, &r.ManualReviewRequired, &r.RetryLimitSnapshot, &errorMessage,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	r.RunKey = runKey.String
	r.AdapterName = adapterName.String
	r.BlockedReason = blockedReason.String
	r.LastPRURL = lastPRURL.String
	r.ErrorMessage = errorMessage.String
	return &r, nil
}

// TransitionStatus moves a run to newStatus, rejecting backwards moves per
// the stage-monotonicity invariant (spec §3), and optionally bumps
// attempt_count (spec §4.10 rule 3). The caller is expected to have
// already decided attempt accounting and blocked_reason; this just
// persists the transition in one statement.
func (s *RunStore) TransitionStatus(ctx context.Context, id uuid.UUID, from, to RunStatus, bumpAttempt bool, blockedReason, errorMessage string) error {
	if !IsForwardTransition(from, to) {
		return fmt.Errorf("store: illegal backwards transition %s -> %s", from, to)
	}

	query := `UPDATE fix_pipeline_runs SET status = $2, updated_at = now()`
	args := []any{id, to}

	if bumpAttempt {
		query += `, attempt_count = attempt_count + 1`
	}
	args = append(args, blockedReason)
	query += fmt.Sprintf(`, blocked_reason = NULLIF($%d, '')`, len(args))
	args = append(args, errorMessage)
	query += fmt.Sprintf(`, error_message = NULLIF($%d, '')`, len(args))
	args = append(args, from)
	query += fmt.Sprintf(` WHERE id = $1 AND status = $%d`, len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: transition run status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: transition run status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("store: run %s was not in expected status %q (concurrent transition or stale read)", id, from)
	}
	return nil
}

// UpdateStageJSON sets a single stage JSON column by logical name
// ("context", "rca", "plan", ...), the Go equivalent of the original's
// **fields kwargs update.
func (s *RunStore) UpdateStageJSON(ctx context.Context, id uuid.UUID, stage string, payload []byte) error {
	column, ok := stageColumns[stage]
	if !ok {
		return fmt.Errorf("store: unknown stage %q", stage)
	}
	return execFieldUpdate(ctx, s.db, "fix_pipeline_runs", id, map[string]any{column: payload})
}

var stageColumns = map[string]string{
	"context":     "context_json",
	"rca":         "rca_json",
	"plan":        "plan_json",
	"plan_policy": "plan_policy_json",
	"patch_diff":  "patch_diff_json",
	"patch_stats": "patch_stats_json",
	"patch_policy": "patch_policy_json",
	"validation":  "validation_json",
	"pr":          "pr_json",
	"critic":      "critic_json",
	"merge":       "merge_json",
	"post_merge":  "post_merge_json",
	"issue_graph": "issue_graph_json",
	"consensus":   "consensus_json",
	"detection":   "detection_json",
}

// SetLastPRURL persists the PR URL exactly once; a second call is a no-op
// that returns the already-stored URL (spec §3 "at-most-one terminal PR
// per run").
func (s *RunStore) SetLastPRURL(ctx context.Context, id uuid.UUID, prURL string) (string, error) {
	const query = `
		UPDATE fix_pipeline_runs SET last_pr_url = $2, updated_at = now()
		WHERE id = $1 AND last_pr_url IS NULL`
	_, err := s.db.ExecContext(ctx, query, id, prURL)
	if err != nil {
		return "", fmt.Errorf("store: set last_pr_url: %w", err)
	}
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return "", err
	}
	return run.LastPRURL, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execFieldUpdate(ctx context.Context, ex execer, table string, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	var sets []string
	args := []any{id}
	i := 2
	for column, value := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i))
		args = append(args, value)
		i++
	}
	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = now() WHERE id = $1", table, strings.Join(sets, ", "))
	_, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: update %s fields: %w", table, err)
	}
	return nil
}
