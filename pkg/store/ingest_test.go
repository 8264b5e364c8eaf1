package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchEventInsertsEventRunAndDispatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	want := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pipeline_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(want))
	mock.ExpectExec(`INSERT INTO fix_pipeline_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE pipeline_events SET status`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	client := NewClientFromDB(db)
	id, isNew, err := client.DispatchEvent(context.Background(), PipelineEvent{
		IdempotencyKey: "github:acme/widgets:1:2:1",
		Provider:       "github",
		Repo:           "acme/widgets",
	}, "acme/widgets:deadbeef")
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, want, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDispatchEventReturnsExistingIDOnIdempotencyConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	existingID := uuid.New()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO pipeline_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT id FROM pipeline_events WHERE idempotency_key = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(existingID))
	mock.ExpectCommit()

	client := NewClientFromDB(db)
	id, isNew, err := client.DispatchEvent(context.Background(), PipelineEvent{
		IdempotencyKey: "github:acme/widgets:1:2:1",
	}, "acme/widgets:deadbeef")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, existingID, id)
	require.NoError(t, mock.ExpectationsWereMet())
}
