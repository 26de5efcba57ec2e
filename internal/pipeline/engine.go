// Package pipeline drives import runs through their stages: an explicit
// state machine, a worker pool, and bounded retries with backoff.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bloodyteeths/mkfakturi-sub009/internal/domain"
	"github.com/bloodyteeths/mkfakturi-sub009/internal/repository"
	importerrors "github.com/bloodyteeths/mkfakturi-sub009/pkg/errors"
	"github.com/bloodyteeths/mkfakturi-sub009/pkg/logger"
)

// Config holds the engine's scheduling tunables.
type Config struct {
	Workers    int
	StageDelay time.Duration
	QueueSize  int
}

// maxAttempts bounds retries per stage. The committer never retries: a
// retried partial commit would risk double-application, rollback is the
// recovery path.
var maxAttempts = map[domain.RunStatus]int{
	domain.RunParsing:    3,
	domain.RunMapping:    2,
	domain.RunValidating: 2,
	domain.RunCommitting: 1,
}

type task struct {
	runID   uuid.UUID
	stage   domain.RunStatus
	attempt int
}

// Engine schedules stage execution for import runs.
type Engine struct {
	runs   repository.ImportRunRepository
	logs   repository.ImportLogRepository
	stages map[domain.RunStatus]stageFunc
	cfg    Config
	log    logger.Logger

	queue  chan task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[uuid.UUID]bool
}

// stageFunc executes one stage against a run and returns the mutated run.
type stageFunc func(ctx context.Context, run domain.ImportRun) (domain.ImportRun, error)

// NewEngine wires the engine over the stage set built by NewStages.
func NewEngine(runs repository.ImportRunRepository, logs repository.ImportLogRepository, stages *Stages, cfg Config, log logger.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	e := &Engine{
		runs:  runs,
		logs:  logs,
		cfg:   cfg,
		log:      log.WithComponent("pipeline"),
		queue:    make(chan task, cfg.QueueSize),
		inflight: make(map[uuid.UUID]bool),
	}
	e.stages = map[domain.RunStatus]stageFunc{
		domain.RunParsing:    stages.Parse,
		domain.RunMapping:    stages.MapFields,
		domain.RunValidating: stages.Validate,
		domain.RunCommitting: stages.Commit,
	}
	return e
}

// Start launches the worker pool. Stop must be called to drain it.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.log.WithField("workers", e.cfg.Workers).Info("pipeline engine started")
}

// Stop cancels scheduling and waits for in-flight stages to finish. An
// in-flight commit transaction always runs to commit or rollback.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
	e.log.Info("pipeline engine stopped")
}

// Submit enqueues a pending run for its first stage.
func (e *Engine) Submit(runID uuid.UUID) error {
	return e.enqueue(task{runID: runID, stage: domain.RunParsing, attempt: 1})
}

// ResumeMapping re-enters the mapping stage for a run whose mapping
// configuration was resubmitted.
func (e *Engine) ResumeMapping(runID uuid.UUID) error {
	return e.enqueue(task{runID: runID, stage: domain.RunMapping, attempt: 1})
}

// ForceCommit schedules the commit stage directly, used by the external
// trigger that accepts outstanding validation errors.
func (e *Engine) ForceCommit(runID uuid.UUID) error {
	return e.enqueue(task{runID: runID, stage: domain.RunCommitting, attempt: 1})
}

func (e *Engine) enqueue(t task) error {
	select {
	case e.queue <- t:
		return nil
	case <-e.ctx.Done():
		return fmt.Errorf("pipeline engine is shutting down")
	}
}

// enqueueAfter schedules a task once the stage delay elapses, off the
// worker goroutine.
func (e *Engine) enqueueAfter(t task, delay time.Duration) {
	if delay <= 0 {
		if err := e.enqueue(t); err != nil {
			e.log.WithError(err).Warn("dropped scheduled stage")
		}
		return
	}
	time.AfterFunc(delay, func() {
		if err := e.enqueue(t); err != nil {
			e.log.WithError(err).Warn("dropped scheduled stage")
		}
	})
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case t := <-e.queue:
			e.execute(t)
		}
	}
}

func (e *Engine) execute(t task) {
	// One stage per run at a time. A trigger arriving while the run is
	// executing waits its turn; once the run moves on, the transition guard
	// below disposes of stale duplicates.
	e.mu.Lock()
	if e.inflight[t.runID] {
		e.mu.Unlock()
		e.enqueueAfter(t, 100*time.Millisecond)
		return
	}
	e.inflight[t.runID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.inflight, t.runID)
		e.mu.Unlock()
	}()

	ctx := e.ctx
	run, err := e.runs.GetByID(ctx, t.runID)
	if err != nil {
		e.log.WithError(err).WithField("run_id", t.runID).Error("failed to load run for stage execution")
		return
	}

	// The transition check is the central guard: a failed or deleted run
	// never executes another stage.
	if run.Status != t.stage && !CanTransition(run.Status, t.stage) {
		e.log.WithFields(logger.Fields{
			"run_id": run.ID,
			"status": run.Status,
			"stage":  t.stage,
		}).Warn("skipping stage, illegal transition")
		return
	}

	if run.Status != t.stage {
		run.Status = t.stage
		if run.StartedAt == nil {
			now := time.Now()
			run.StartedAt = &now
		}
		if run, err = e.runs.Update(ctx, run); err != nil {
			e.log.WithError(err).Error("failed to advance run status")
			return
		}
	}

	e.recordStageLog(ctx, run, domain.LogJobStarted, domain.SeverityInfo,
		fmt.Sprintf("%s stage started (attempt %d)", t.stage, t.attempt))

	started := time.Now()
	updated, stageErr := e.stages[t.stage](ctx, run)
	elapsed := time.Since(started).Seconds()

	if stageErr != nil {
		e.handleFailure(ctx, run, t, stageErr)
		return
	}

	entry := domain.NewLogEntry(run.ID, domain.LogJobCompleted, domain.SeverityInfo,
		fmt.Sprintf("%s stage completed", t.stage))
	entry.ProcessStage = string(t.stage)
	entry.ProcessingTime = &elapsed
	processed := updated.Counters.ProcessedRecords
	entry.RecordsProcessed = &processed
	if err := e.logs.Record(ctx, entry); err != nil {
		e.log.WithError(err).Warn("failed to record stage completion")
	}

	e.advance(ctx, updated, t.stage)
}

// advance moves a run to the stage after the one just completed, or closes
// it out. A manual-review flag on the mapping and partial validation
// failures are reported, not blocking: the chain continues and invalid
// rows are excluded at commit.
func (e *Engine) advance(ctx context.Context, run domain.ImportRun, completed domain.RunStatus) {
	next := nextStatus[completed]
	if next == domain.RunCompleted {
		now := time.Now()
		run.Status = domain.RunCompleted
		run.CompletedAt = &now
		if _, err := e.runs.Update(ctx, run); err != nil {
			e.log.WithError(err).Error("failed to mark run completed")
		}
		return
	}
	e.enqueueAfter(task{runID: run.ID, stage: next, attempt: 1}, e.cfg.StageDelay)
}

// handleFailure retries transient errors with linear backoff up to the
// stage's attempt budget, then fails the run.
func (e *Engine) handleFailure(ctx context.Context, run domain.ImportRun, t task, stageErr error) {
	budget := maxAttempts[t.stage]
	if importerrors.IsRetryable(stageErr) && t.attempt < budget {
		backoff := e.cfg.StageDelay * time.Duration(t.attempt+1)
		e.log.WithFields(logger.Fields{
			"run_id":  run.ID,
			"stage":   t.stage,
			"attempt": t.attempt,
		}).WithError(stageErr).Warn("stage failed, retrying")
		e.enqueueAfter(task{runID: run.ID, stage: t.stage, attempt: t.attempt + 1}, backoff)
		return
	}
	e.failRun(ctx, run, t.stage, stageErr)
}

// failRun marks the run terminally failed and stops the chain.
func (e *Engine) failRun(ctx context.Context, run domain.ImportRun, stage domain.RunStatus, cause error) {
	now := time.Now()
	run.Status = domain.RunFailed
	run.ErrorMessage = cause.Error()
	run.ErrorContext = map[string]any{
		"stage":    string(stage),
		"category": string(importerrors.CategoryOf(cause)),
	}
	run.CompletedAt = &now
	if _, err := e.runs.Update(ctx, run); err != nil {
		e.log.WithError(err).Error("failed to mark run failed")
	}

	e.recordStageLog(ctx, run, domain.LogJobFailed, domain.SeverityError,
		fmt.Sprintf("%s stage failed: %v", stage, cause))
	e.log.WithFields(logger.Fields{"run_id": run.ID, "stage": stage}).WithError(cause).Error("run failed")
}

func (e *Engine) recordStageLog(ctx context.Context, run domain.ImportRun, logType domain.LogType, severity domain.LogSeverity, message string) {
	entry := domain.NewLogEntry(run.ID, logType, severity, message)
	entry.ProcessStage = string(run.Status)
	if err := e.logs.Record(ctx, entry); err != nil {
		e.log.WithError(err).Warn("failed to record stage log")
	}
}
