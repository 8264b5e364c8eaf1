package coordination

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const dashboardChannel = "dashboard:events"

// Publisher emits best-effort dashboard events (spec §4.10 "Side
// effects", §5 "Dashboard pub/sub is best-effort; failure to publish MUST
// NOT fail the stage"). Publish logs and swallows errors rather than
// returning them, so a caller can never accidentally fail a pipeline
// stage on a dashboard-publish error.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event DashboardEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("coordination: failed to marshal dashboard event", "error", err)
		return
	}
	if err := p.client.Publish(ctx, dashboardChannel, payload).Err(); err != nil {
		slog.Warn("coordination: failed to publish dashboard event", "error", err, "run_id", event.RunID)
	}
}

// Broadcaster fans out dashboard events from the shared Redis channel to
// SSE clients within this process, each through its own buffered channel.
// Adapted from the teacher's pkg/events.ConnectionManager: a registry of
// live subscribers guarded by a mutex; broadcastLocal sends to each client
// under the read lock without blocking, dropping the event for a client
// whose buffer is full, and uses a single global channel (SSE has no per-client
// subscribe/unsubscribe protocol messages the way the teacher's WebSocket
// clients do).
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string]chan DashboardEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[string]chan DashboardEvent)}
}

// Register adds a new SSE client listener. The caller must call the
// returned cancel function when the client disconnects.
func (b *Broadcaster) Register(clientID string) (ch <-chan DashboardEvent, cancel func()) {
	out := make(chan DashboardEvent, 64)
	b.mu.Lock()
	b.listeners[clientID] = out
	b.mu.Unlock()

	return out, func() {
		b.mu.Lock()
		if existing, ok := b.listeners[clientID]; ok {
			delete(b.listeners, clientID)
			close(existing)
		}
		b.mu.Unlock()
	}
}

// broadcastLocal fans an event out to every registered local listener,
// dropping it for any client whose buffer is full rather than blocking.
func (b *Broadcaster) broadcastLocal(event DashboardEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for clientID, ch := range b.listeners {
		select {
		case ch <- event:
		default:
			slog.Warn("coordination: dropping dashboard event for slow SSE client", "client_id", clientID)
		}
	}
}

// Run subscribes to the shared Redis channel and forwards every message
// to local listeners until ctx is cancelled. Intended to be run once per
// process in a background goroutine.
func (b *Broadcaster) Run(ctx context.Context, client *redis.Client) error {
	sub := client.Subscribe(ctx, dashboardChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event DashboardEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("coordination: dropping malformed dashboard event", "error", err)
				continue
			}
			b.broadcastLocal(event)
		}
	}
}
