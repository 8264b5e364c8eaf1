// Package vcs implements the concrete VCS client the orchestrator opens
// pull requests and resolves commit SHAs through (spec §1's out-of-scope
// "VCS client" collaborator, narrowed by orchestrator.VCS). Grounded on the
// teacher's pkg/runbook.GitHubClient: a thin *http.Client wrapper hitting
// the GitHub REST API directly, bearer-token authenticated, with no SDK
// dependency between the request and the JSON response.
package vcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/selfheal/pipeline/pkg/orchestrator"
)

const defaultBaseURL = "https://api.github.com"

// GitHubClient satisfies orchestrator.VCS against the GitHub REST API.
type GitHubClient struct {
	httpClient *http.Client
	token      string
	baseURL    string
	logger     *slog.Logger
}

// New creates a GitHub REST client. token is sent as a bearer credential on
// every request; baseURL may be empty to use the public GitHub API (set it
// for GitHub Enterprise Server installations).
func New(token, baseURL string) *GitHubClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &GitHubClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		token:      token,
		baseURL:    baseURL,
		logger:     slog.Default(),
	}
}

type createPullRequestBody struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
	Draft bool   `json:"draft"`
}

type pullRequestResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// OpenPullRequest creates a pull request from req.Branch into
// req.BaseBranch. req.Diff is informational only here: the branch itself
// must already carry the commits (pkg/orchestrator's checkout step pushes
// them before calling OpenPullRequest); this method only files the PR.
func (c *GitHubClient) OpenPullRequest(ctx context.Context, req orchestrator.PRRequest) (orchestrator.PRResult, error) {
	body := createPullRequestBody{
		Title: req.Title,
		Head:  req.Branch,
		Base:  req.BaseBranch,
		Body:  req.Body,
		Draft: req.NeedsReview,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return orchestrator.PRResult{}, fmt.Errorf("vcs: encode pull request body: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/pulls", c.baseURL, req.Repo)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return orchestrator.PRResult{}, fmt.Errorf("vcs: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	c.setAuthHeader(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return orchestrator.PRResult{}, fmt.Errorf("vcs: open pull request for %s: %w", req.Repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(resp.Body)
		c.logger.Warn("vcs: pull request creation rejected", "repo", req.Repo, "branch", req.Branch, "status", resp.StatusCode)
		return orchestrator.PRResult{}, fmt.Errorf("vcs: GitHub returned HTTP %d opening PR for %s: %s", resp.StatusCode, req.Repo, detail)
	}

	var pr pullRequestResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return orchestrator.PRResult{}, fmt.Errorf("vcs: decode pull request response: %w", err)
	}

	return orchestrator.PRResult{URL: pr.HTMLURL, Number: pr.Number}, nil
}

type branchResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// FetchCommitSHA resolves branch's current HEAD commit SHA, used when a
// run carries no commit_sha (e.g. an approve-pr replay after the branch
// moved).
func (c *GitHubClient) FetchCommitSHA(ctx context.Context, repo, branch string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/branches/%s", c.baseURL, repo, branch)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("vcs: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	c.setAuthHeader(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("vcs: fetch branch %s/%s: %w", repo, branch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vcs: GitHub returned HTTP %d for branch %s/%s", resp.StatusCode, repo, branch)
	}

	var br branchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return "", fmt.Errorf("vcs: decode branch response: %w", err)
	}
	return br.Commit.SHA, nil
}

func (c *GitHubClient) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
