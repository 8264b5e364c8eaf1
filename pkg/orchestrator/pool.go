package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PoolConfig bundles the worker pool's tunables; distinct from Config
// (the Engine's stage-level tunables) since a pool can run several
// engines' worth of workers against the same database in tests.
type PoolConfig struct {
	WorkerCount  int
	PollInterval time.Duration
	PollJitter   time.Duration
	LeaseSeconds int
}

// DefaultPoolConfig mirrors the teacher's queue.Config defaults, scaled to
// this pipeline's slower, LLM-bound stage latencies.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		WorkerCount:  4,
		PollInterval: 2 * time.Second,
		PollJitter:   500 * time.Millisecond,
		LeaseSeconds: 300,
	}
}

// PoolHealth reports the worker pool's aggregate health.
type PoolHealth struct {
	PodID         string
	TotalWorkers  int
	ActiveWorkers int
	WorkerStats   []WorkerHealth
}

// WorkerPool manages a fixed set of Workers advancing runs against the same
// Engine. Grounded on the teacher's pkg/queue.WorkerPool: same start/stop
// lifecycle and per-worker health aggregation, generalized from
// session-queue workers to fix-pipeline-run workers. This package has no
// equivalent of the teacher's orphan-recovery scan: a stale lease
// (locked_until elapsed) is itself the recovery mechanism, since
// claimNextRun's WHERE clause treats any run past its lease as claimable
// again — no separate background sweep is needed.
type WorkerPool struct {
	podID   string
	db      *sql.DB
	engine  *Engine
	config  PoolConfig
	workers []*Worker

	mu      sync.Mutex
	started bool
}

// NewWorkerPool creates a worker pool bound to one Engine and database.
func NewWorkerPool(podID string, db *sql.DB, engine *Engine, cfg PoolConfig) *WorkerPool {
	return &WorkerPool{
		podID:   podID,
		db:      db,
		engine:  engine,
		config:  cfg,
		workers: make([]*Worker, 0, cfg.WorkerCount),
	}
}

// Start spawns the configured number of worker goroutines. Safe to call
// once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("orchestrator worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting orchestrator worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.db, p.engine, p.config.PollInterval, p.config.PollJitter, p.config.LeaseSeconds)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
}

// Stop signals every worker to stop and waits for their current claim (if
// any) to finish before returning.
func (p *WorkerPool) Stop() {
	slog.Info("stopping orchestrator worker pool", "pod_id", p.podID)
	for _, w := range p.workers {
		w.Stop()
	}
	slog.Info("orchestrator worker pool stopped")
}

// Health reports the pool's current aggregate health.
func (p *WorkerPool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.Health()
		stats[i] = h
		if h.Status == WorkerStatusWorking {
			active++
		}
	}
	return PoolHealth{
		PodID: p.podID, TotalWorkers: len(p.workers),
		ActiveWorkers: active, WorkerStats: stats,
	}
}
