package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsForwardTransitionRejectsBackwardsMove(t *testing.T) {
	assert.True(t, IsForwardTransition(RunCreated, RunContextBuilt))
	assert.True(t, IsForwardTransition(RunPlanReady, RunCriticReady))
	assert.False(t, IsForwardTransition(RunCriticReady, RunRCAReady))
	assert.True(t, IsForwardTransition(RunRCAReady, RunBlocked))
	assert.True(t, IsForwardTransition(RunPlanReady, RunPlanReady))
}

func TestCreateEventReturnsExistingIDOnIdempotencyConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &EventStore{db: db}
	existingID := uuid.New()

	mock.ExpectQuery(`INSERT INTO pipeline_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM pipeline_events WHERE idempotency_key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingID))

	id, err := store.CreateEvent(context.Background(), PipelineEvent{
		IdempotencyKey: "github:acme/widgets:123:456:1",
		Provider:       "github",
		Repo:           "acme/widgets",
	})
	require.NoError(t, err)
	assert.Equal(t, existingID, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDeliveryReportsDedup(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &WebhookStore{db: db}

	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := store.RecordDelivery(context.Background(), WebhookDelivery{
		DeliveryID: "delivery-1",
		EventType:  "workflow_run",
		Repository: "acme/widgets",
		Status:     "received",
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryConfigGetOrDefaultFallsBackWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &RepositoryConfigStore{db: db}
	mock.ExpectQuery(`SELECT id, repo_full_name`).
		WillReturnRows(sqlmock.NewRows(nil))

	cfg, err := store.GetOrDefault(context.Background(), "acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, DefaultRepositoryConfig("acme/widgets"), cfg)
	require.NoError(t, mock.ExpectationsWereMet())
}
