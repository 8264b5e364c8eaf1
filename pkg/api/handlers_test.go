package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfheal/pipeline/pkg/coordination"
	"github.com/selfheal/pipeline/pkg/ingest"
	"github.com/selfheal/pipeline/pkg/redact"
	"github.com/selfheal/pipeline/pkg/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	client := store.NewClientFromDB(db)
	return NewServer(nil, ingest.New(client), client, coordination.NewBroadcaster(), redact.New(redact.DefaultPatterns()), "", false), mock
}

func TestHealthReturnsOK(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReadyReportsUnavailableWhenDBUnreachable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectPing().WillReturnError(assertErr)

	client := store.NewClientFromDB(db)
	s := NewServer(nil, ingest.New(client), client, coordination.NewBroadcaster(), redact.New(redact.DefaultPatterns()), "", false)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookShortCircuitsOnDuplicateDeliveryWithNoSecretConfigured(t *testing.T) {
	s, mock := newTestServer(t)
	mock.ExpectExec(`INSERT INTO webhook_deliveries`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	body := `{"repo":"acme/widgets","run_id":"1","job_id":"2","branch":"main","stage":"test","failure_type":"assertion_failure","delivery_id":"d-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"is_new":false`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleWebhookRejectsBadSignatureWhenSecretConfigured(t *testing.T) {
	s, _ := newTestServer(t)
	s.WebhookSecret = "shhh"

	body := `{"repo":"acme/widgets","run_id":"1","job_id":"2","branch":"main","stage":"test","failure_type":"assertion_failure","delivery_id":"d-1"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type sentinelErr struct{}

func (sentinelErr) Error() string { return "boom" }

var assertErr = sentinelErr{}
