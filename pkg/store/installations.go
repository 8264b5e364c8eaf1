package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// InstallationStore persists GitHubAppInstallation rows.
type InstallationStore struct{ db *sql.DB }

// Upsert installs or updates the automation mode for a (user, repo) pair,
// addressed by the GitHub installation_id (unique key, spec §3).
func (s *InstallationStore) Upsert(ctx context.Context, inst GitHubAppInstallation) (uuid.UUID, error) {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	const query = `
		INSERT INTO github_app_installations (id, user_id, repo_id, installation_id, repo_full_name, automation_mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (installation_id) DO UPDATE SET
			repo_full_name = EXCLUDED.repo_full_name,
			automation_mode = EXCLUDED.automation_mode,
			updated_at = now()
		RETURNING id`
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		inst.ID, inst.UserID, inst.RepoID, inst.InstallationID, inst.RepoFullName, inst.AutomationMode,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store: upsert installation: %w", err)
	}
	return id, nil
}

// GetByRepoFullName fetches an installation by its repo's full name.
func (s *InstallationStore) GetByRepoFullName(ctx context.Context, repoFullName string) (*GitHubAppInstallation, error) {
	const query = `
		SELECT id, user_id, repo_id, installation_id, repo_full_name, automation_mode, created_at, updated_at
		FROM github_app_installations WHERE repo_full_name = $1`
	var inst GitHubAppInstallation
	err := s.db.QueryRowContext(ctx, query, repoFullName).Scan(
		&inst.ID, &inst.UserID, &inst.RepoID, &inst.InstallationID, &inst.RepoFullName,
		&inst.AutomationMode, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get installation: %w", err)
	}
	return &inst, nil
}
