package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireLeaseScript atomically evicts expired members of the sorted set
// keyed by repo (score = expiry unix-nanos), then admits a new member iff
// the surviving cardinality is below capacity. Encoding the lease as a
// ZSET member with its own expiry score makes the capacity check
// crash-safe: a worker that dies without releasing its lease simply ages
// out of the set on the next Acquire/Release call, per spec §5's
// "leased semaphore with TTL (crash-safe)".
const acquireLeaseScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local expiry = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local token = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now)
local count = redis.call("ZCARD", key)
if count >= capacity then
	return 0
end
redis.call("ZADD", key, expiry, token)
redis.call("PEXPIREAT", key, expiry)
return 1
`

const releaseLeaseScript = `
redis.call("ZREM", KEYS[1], ARGV[1])
return 1
`

// RepoLeaser bounds per-repo concurrent orchestrator workers (spec §4.10
// rule 4 / §5 "Shared resources").
type RepoLeaser struct {
	client *redis.Client
}

// NewRepoLeaser wraps a redis client. Capacity and TTL are supplied
// per-call since they are per-repo configuration (pkg/store.RepositoryConfig).
func NewRepoLeaser(client *redis.Client) *RepoLeaser {
	return &RepoLeaser{client: client}
}

func leaseKey(repo string) string { return "lease:" + repo }

// Acquire attempts to admit one more concurrent worker for repo. ok=false
// means the caller must back off and reschedule (spec §4.10 rule 4,
// counter pipeline_throttled_total).
func (l *RepoLeaser) Acquire(ctx context.Context, repo string, capacity int, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	now := time.Now()
	expiry := now.Add(ttl)

	res, err := l.client.Eval(ctx, acquireLeaseScript, []string{leaseKey(repo)},
		now.UnixNano(), expiry.UnixNano(), capacity, token).Result()
	if err != nil {
		return "", false, fmt.Errorf("coordination: acquire lease: %w", err)
	}
	admitted, _ := res.(int64)
	return token, admitted == 1, nil
}

// Release frees a held lease immediately rather than waiting for its TTL.
func (l *RepoLeaser) Release(ctx context.Context, repo, token string) error {
	if err := l.client.Eval(ctx, releaseLeaseScript, []string{leaseKey(repo)}, token).Err(); err != nil {
		return fmt.Errorf("coordination: release lease: %w", err)
	}
	return nil
}

// ActiveCount reports the current (non-expired) lease count for a repo,
// for metrics/diagnostics.
func (l *RepoLeaser) ActiveCount(ctx context.Context, repo string) (int, error) {
	now := time.Now().UnixNano()
	if err := l.client.ZRemRangeByScore(ctx, leaseKey(repo), "-inf", fmt.Sprint(now)).Err(); err != nil {
		return 0, fmt.Errorf("coordination: count leases: %w", err)
	}
	n, err := l.client.ZCard(ctx, leaseKey(repo)).Result()
	if err != nil {
		return 0, fmt.Errorf("coordination: count leases: %w", err)
	}
	return int(n), nil
}
