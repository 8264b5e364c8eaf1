package vcs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfheal/pipeline/pkg/orchestrator"
)

func TestOpenPullRequestPostsToGitHubAndReturnsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/pulls", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 42, "html_url": "https://github.com/acme/widgets/pull/42"}`))
	}))
	defer srv.Close()

	client := New("test-token", srv.URL)
	result, err := client.OpenPullRequest(context.Background(), orchestrator.PRRequest{
		Repo: "acme/widgets", Branch: "selfheal/fix-1", BaseBranch: "main", Title: "Fix flaky test",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result.Number)
	assert.Equal(t, "https://github.com/acme/widgets/pull/42", result.URL)
}

func TestOpenPullRequestReturnsErrorOnNonCreatedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message": "A pull request already exists"}`))
	}))
	defer srv.Close()

	client := New("", srv.URL)
	_, err := client.OpenPullRequest(context.Background(), orchestrator.PRRequest{Repo: "acme/widgets"})
	assert.Error(t, err)
}

func TestFetchCommitSHAParsesBranchResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/branches/main", r.URL.Path)
		_, _ = w.Write([]byte(`{"commit": {"sha": "deadbeef"}}`))
	}))
	defer srv.Close()

	client := New("test-token", srv.URL)
	sha, err := client.FetchCommitSHA(context.Background(), "acme/widgets", "main")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
}
