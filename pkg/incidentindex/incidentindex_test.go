package incidentindex

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchReturnsRankedIncidents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT r.id, e.repo, e.failure_type, r.status`).
		WithArgs("flaky assertion", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "repo", "failure_type", "status", "rank"}).
			AddRow("run-1", "acme/widgets", "assertion_failure", "pr_created", 0.8))

	idx := New(db)
	results, err := idx.Search(context.Background(), "flaky assertion", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "run-1", results[0].RunID)
	assert.Equal(t, 0.8, results[0].Rank)
	require.NoError(t, mock.ExpectationsWereMet())
}
