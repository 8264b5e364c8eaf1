package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoPostMergeEntry is returned when a (repo, branch) pair has no
// registered post-merge monitor entry.
var ErrNoPostMergeEntry = errors.New("coordination: no post-merge entry")

// PostMergeStore is the single-writer/single-reader KV used by the Post-
// Merge Monitor (spec §4.12): the writer is the PR stage, the reader is
// the next CI outcome event for (repo, branch).
type PostMergeStore struct {
	client *redis.Client
}

func NewPostMergeStore(client *redis.Client) *PostMergeStore {
	return &PostMergeStore{client: client}
}

func postMergeKey(repo, branch string) string {
	return fmt.Sprintf("post_merge:%s:%s", repo, branch)
}

// Register stores the entry under TTL, keyed by its repo and branch. It
// does not change the run's status.
func (s *PostMergeStore) Register(ctx context.Context, entry PostMergeEntry, ttl time.Duration) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("coordination: marshal post-merge entry: %w", err)
	}
	if err := s.client.Set(ctx, postMergeKey(entry.Repo, entry.Branch), payload, ttl).Err(); err != nil {
		return fmt.Errorf("coordination: register post-merge entry: %w", err)
	}
	return nil
}

// Get fetches the entry for (repo, branch), or ErrNoPostMergeEntry if none
// is registered (no in-flight monitored run for that branch).
func (s *PostMergeStore) Get(ctx context.Context, repo, branch string) (PostMergeEntry, error) {
	raw, err := s.client.Get(ctx, postMergeKey(repo, branch)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PostMergeEntry{}, ErrNoPostMergeEntry
	}
	if err != nil {
		return PostMergeEntry{}, fmt.Errorf("coordination: get post-merge entry: %w", err)
	}
	var entry PostMergeEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return PostMergeEntry{}, fmt.Errorf("coordination: unmarshal post-merge entry: %w", err)
	}
	return entry, nil
}

// Delete removes the entry, called once the monitored run resolves
// (stabilized or regressed).
func (s *PostMergeStore) Delete(ctx context.Context, repo, branch string) error {
	if err := s.client.Del(ctx, postMergeKey(repo, branch)).Err(); err != nil {
		return fmt.Errorf("coordination: delete post-merge entry: %w", err)
	}
	return nil
}
