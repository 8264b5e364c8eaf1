package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// WorkerStatus is a Worker's current activity, surfaced by Health.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports one worker's health tracking state.
type WorkerHealth struct {
	ID            string
	Status        WorkerStatus
	CurrentRunID  string
	RunsProcessed int
	LastActivity  time.Time
}

// Worker polls the fix_pipeline_runs table for one claimable run at a time
// and advances it exactly one stage via Engine.AdvanceRun. Grounded on the
// teacher's pkg/queue.Worker: same poll-claim-execute loop (no heartbeat),
// generalized from "claim a pending AlertSession and run its whole chain"
// to "claim any claimable run and advance it by one stage" — the fix
// pipeline never runs a session end-to-end inside a single worker call, so
// there is no equivalent of the teacher's SessionExecutor/ExecutionResult;
// AdvanceRun itself performs the terminal status update before returning.
type Worker struct {
	id           string
	db           *sql.DB
	engine       *Engine
	pollInterval time.Duration
	pollJitter   time.Duration
	leaseSeconds int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentRunID  string
	runsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a queue worker bound to one Engine and database handle.
func NewWorker(id string, db *sql.DB, engine *Engine, pollInterval, pollJitter time.Duration, leaseSeconds int) *Worker {
	return &Worker{
		id:           id,
		db:           db,
		engine:       engine,
		pollInterval: pollInterval,
		pollJitter:   pollJitter,
		leaseSeconds: leaseSeconds,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current claim to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID: w.id, Status: w.status, CurrentRunID: w.currentRunID,
		RunsProcessed: w.runsProcessed, LastActivity: w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("orchestrator worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("orchestrator worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, orchestrator worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoRunsAvailable) {
					w.sleep(w.jitteredPollInterval())
					continue
				}
				log.Error("error advancing run", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *Worker) pollAndProcess(ctx context.Context) error {
	runID, err := claimNextRun(ctx, w.db, w.id, w.leaseSeconds)
	if err != nil {
		return err
	}

	log := slog.With("run_id", runID, "worker_id", w.id)
	log.Info("run claimed")

	w.setStatus(WorkerStatusWorking, runID.String())
	defer w.setStatus(WorkerStatusIdle, "")

	if err := w.engine.AdvanceRun(ctx, runID, w.id); err != nil {
		log.Error("advance run failed", "error", err)
		return err
	}

	w.mu.Lock()
	w.runsProcessed++
	w.mu.Unlock()

	log.Info("run advanced")
	return nil
}

// jitteredPollInterval returns the configured poll interval randomized
// within +/- pollJitter, mirroring the teacher's pollInterval jitter so
// concurrent workers don't all wake in lockstep.
func (w *Worker) jitteredPollInterval() time.Duration {
	if w.pollJitter <= 0 {
		return w.pollInterval
	}
	offset := time.Duration(rand.Int64N(int64(2 * w.pollJitter)))
	return w.pollInterval - w.pollJitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRunID = runID
	w.lastActivity = time.Now()
}
