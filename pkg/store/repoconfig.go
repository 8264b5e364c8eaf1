package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultRepositoryConfig mirrors the Safety Policy Engine / Consensus
// Coordinator defaults used when no per-repo override row exists.
func DefaultRepositoryConfig(repoFullName string) RepositoryConfig {
	return RepositoryConfig{
		RepoFullName:       repoFullName,
		RetryLimit:         3,
		ConcurrencyLimit:   2,
		CooldownSeconds:    3600,
		SafeMaxDangerScore: 20,
		VetoDangerScore:    80,
		MinAgreementRate:   0.75,
	}
}

// RepositoryConfigStore persists per-repo tunables.
type RepositoryConfigStore struct{ db *sql.DB }

// GetOrDefault fetches a repo's config, falling back to
// DefaultRepositoryConfig without writing a row when none exists.
func (s *RepositoryConfigStore) GetOrDefault(ctx context.Context, repoFullName string) (RepositoryConfig, error) {
	const query = `
		SELECT id, repo_full_name, retry_limit, concurrency_limit, cooldown_seconds,
		       safe_max_danger_score, veto_danger_score, min_agreement_rate, created_at, updated_at
		FROM repository_configs WHERE repo_full_name = $1`
	var cfg RepositoryConfig
	err := s.db.QueryRowContext(ctx, query, repoFullName).Scan(
		&cfg.ID, &cfg.RepoFullName, &cfg.RetryLimit, &cfg.ConcurrencyLimit, &cfg.CooldownSeconds,
		&cfg.SafeMaxDangerScore, &cfg.VetoDangerScore, &cfg.MinAgreementRate, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultRepositoryConfig(repoFullName), nil
	}
	if err != nil {
		return RepositoryConfig{}, fmt.Errorf("store: get repository config: %w", err)
	}
	return cfg, nil
}

// Upsert inserts or replaces a repo's config override.
func (s *RepositoryConfigStore) Upsert(ctx context.Context, cfg RepositoryConfig) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	const query = `
		INSERT INTO repository_configs
			(id, repo_full_name, retry_limit, concurrency_limit, cooldown_seconds,
			 safe_max_danger_score, veto_danger_score, min_agreement_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (repo_full_name) DO UPDATE SET
			retry_limit = EXCLUDED.retry_limit,
			concurrency_limit = EXCLUDED.concurrency_limit,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			safe_max_danger_score = EXCLUDED.safe_max_danger_score,
			veto_danger_score = EXCLUDED.veto_danger_score,
			min_agreement_rate = EXCLUDED.min_agreement_rate,
			updated_at = now()`
	_, err := s.db.ExecContext(ctx, query,
		cfg.ID, cfg.RepoFullName, cfg.RetryLimit, cfg.ConcurrencyLimit, cfg.CooldownSeconds,
		cfg.SafeMaxDangerScore, cfg.VetoDangerScore, cfg.MinAgreementRate,
	)
	if err != nil {
		return fmt.Errorf("store: upsert repository config: %w", err)
	}
	return nil
}
