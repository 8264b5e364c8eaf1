package ingest

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfheal/pipeline/pkg/store"
)

func TestComputeIdempotencyKeyMatchesDataModelFormat(t *testing.T) {
	key := ComputeIdempotencyKey(NormalizedEvent{
		Provider: "github", Repo: "acme/widgets", RunID: "123", JobID: "456", Attempt: 1,
	})
	assert.Equal(t, "github:acme/widgets:123:456:1", key)
}

func TestIngestEventShortCircuitsOnDuplicateDelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	client := store.NewClientFromDB(db)
	ig := New(client)

	id, isNew, err := ig.IngestEvent(context.Background(), NormalizedEvent{
		Provider: "github", Repo: "acme/widgets", RunID: "1", JobID: "2", Attempt: 1,
		Branch: "main", Stage: "test", FailureType: "assertion_failure",
	}, "delivery-1")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, uuid.Nil, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestEventDispatchesNewEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	want := uuid.New()
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pipeline_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(want))
	mock.ExpectExec(`INSERT INTO fix_pipeline_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE pipeline_events SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := store.NewClientFromDB(db)
	ig := New(client)

	id, isNew, err := ig.IngestEvent(context.Background(), NormalizedEvent{
		Provider: "github", Repo: "acme/widgets", RunID: "1", JobID: "2", Attempt: 1,
		Branch: "main", Stage: "test", FailureType: "assertion_failure",
	}, "delivery-2")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, want, id)
	require.NoError(t, mock.ExpectationsWereMet())
}
