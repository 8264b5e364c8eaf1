package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownGuard implements spec §4.10 rule 6: a completed run_key blocks a
// new event with the same (repo, failure signature) from starting a fresh
// pipeline until the cooldown window elapses.
type CooldownGuard struct {
	client *redis.Client
}

func NewCooldownGuard(client *redis.Client) *CooldownGuard {
	return &CooldownGuard{client: client}
}

func cooldownKey(runKey string) string { return "cooldown:" + runKey }

// MarkCompleted records that runKey finished a PR, starting its cooldown
// window. Called once from the PR-creation stage.
func (g *CooldownGuard) MarkCompleted(ctx context.Context, runKey string, cooldown time.Duration) error {
	if err := g.client.Set(ctx, cooldownKey(runKey), time.Now().Format(time.RFC3339), cooldown).Err(); err != nil {
		return fmt.Errorf("coordination: mark run_key cooldown: %w", err)
	}
	return nil
}

// InCooldown reports whether runKey is still within its cooldown window.
func (g *CooldownGuard) InCooldown(ctx context.Context, runKey string) (bool, error) {
	n, err := g.client.Exists(ctx, cooldownKey(runKey)).Result()
	if err != nil {
		return false, fmt.Errorf("coordination: check run_key cooldown: %w", err)
	}
	return n > 0, nil
}
