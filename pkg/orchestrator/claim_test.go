package orchestrator

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimNextRunReturnsErrNoRunsAvailableOnEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`UPDATE fix_pipeline_runs`).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = claimNextRun(context.Background(), db, "worker-0", 300)
	assert.ErrorIs(t, err, ErrNoRunsAvailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimNextRunReturnsClaimedID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	want := uuid.New()
	mock.ExpectQuery(`UPDATE fix_pipeline_runs`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(want))

	got, err := claimNextRun(context.Background(), db, "worker-0", 300)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseLeaseScopesToWorkerID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	runID := uuid.New()
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).
		WithArgs(runID, "worker-0").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, releaseLease(context.Background(), db, runID, "worker-0"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRenewLeaseExtendsLockedUntil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	runID := uuid.New()
	mock.ExpectExec(`UPDATE fix_pipeline_runs`).
		WithArgs(runID, "worker-0", 120).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, renewLease(context.Background(), db, runID, "worker-0", 120))
	require.NoError(t, mock.ExpectationsWereMet())
}
