package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// ErrRunTerminal is returned when cancelling a run that already finished.
var ErrRunTerminal = errors.New("run already in terminal state")

// ManagerConfig holds the Manager's run settings.
type ManagerConfig struct {
	PipelineRoot string
	// RunTimeout bounds a run's execution. Zero means no bound.
	RunTimeout time.Duration
}

// Manager accepts pipeline runs and executes them on a job queue.
type Manager struct {
	orchestrator *Orchestrator
	queue        ports.JobQueue
	runs         ports.RunStore
	stores       ports.ValueStoreFactory
	eventBus     ports.EventBus
	metrics      ports.MetricsCollector
	logger       *zap.Logger
	cfg          ManagerConfig

	// Track active executions
	executions sync.Map // map[string]*executionContext
	active     atomic.Int64
}

// executionContext holds state for a single run
type executionContext struct {
	runID      string
	cancelFunc context.CancelFunc
	cancelled  atomic.Bool
}

// NewManager creates a new run manager
func NewManager(
	orchestrator *Orchestrator,
	queue ports.JobQueue,
	runs ports.RunStore,
	stores ports.ValueStoreFactory,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	cfg ManagerConfig,
) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		queue:        queue,
		runs:         runs,
		stores:       stores,
		eventBus:     eventBus,
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
	}
}

// SubmitRun validates spec and queues it for execution. It returns the run ID.
func (m *Manager) SubmitRun(ctx context.Context, spec *domain.PipelineSpec, args map[string]domain.Value) (string, error) {
	if err := m.orchestrator.Validator().Validate(spec); err != nil {
		m.logger.Error("pipeline validation failed", zap.Error(err))
		m.metrics.RecordSpecError(domain.SpecErrorKind(err))
		return "", fmt.Errorf("validation failed: %w", err)
	}
	args, err := BindArtifactInputs(args, spec.Root.InputDefinitions)
	if err != nil {
		m.metrics.RecordSpecError(domain.SpecErrorKind(err))
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	runID := uuid.New().String()
	record := &domain.RunRecord{
		ID:           runID,
		PipelineName: spec.PipelineInfo.Name,
		State:        domain.RunStatePending,
		Arguments:    args,
		SubmittedAt:  time.Now(),
	}

	if err := m.runs.SaveRun(ctx, record); err != nil {
		m.logger.Error("failed to save run",
			zap.String("run_id", runID),
			zap.Error(err))
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if m.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), m.cfg.RunTimeout)
	}
	exec := &executionContext{runID: runID, cancelFunc: cancel}
	m.executions.Store(runID, exec)

	job := &runJob{
		manager: m,
		exec:    exec,
		ctx:     runCtx,
		spec:    spec,
		args:    args,
	}
	// Published before enqueueing so that it precedes run.started
	m.publish(ctx, domain.EventTypeRunSubmitted, runID, map[string]interface{}{
		"pipeline": spec.PipelineInfo.Name,
	})
	if err := m.queue.Submit(job); err != nil {
		cancel()
		m.executions.Delete(runID)
		now := time.Now()
		record.State = domain.RunStateErrored
		record.Error = err.Error()
		record.CompletedAt = &now
		if saveErr := m.runs.SaveRun(ctx, record); saveErr != nil {
			m.logger.Error("failed to save rejected run",
				zap.String("run_id", runID),
				zap.Error(saveErr))
		}
		m.publish(ctx, domain.EventTypeRunErrored, runID, map[string]interface{}{
			"error": record.Error,
		})
		return "", fmt.Errorf("failed to queue run: %w", err)
	}

	m.metrics.RecordRunSubmitted(string(domain.RunStatePending))
	m.logger.Info("run submitted",
		zap.String("run_id", runID),
		zap.String("pipeline", spec.PipelineInfo.Name))

	return runID, nil
}

// GetRun returns the record of a run.
func (m *Manager) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	return m.runs.GetRun(ctx, runID)
}

// ListRuns returns every known run.
func (m *Manager) ListRuns(ctx context.Context) ([]*domain.RunRecord, error) {
	return m.runs.ListRuns(ctx)
}

// CancelRun cancels a pending or running run. The run's record turns
// CANCELLED once its job observes the cancellation.
func (m *Manager) CancelRun(ctx context.Context, runID string) error {
	val, ok := m.executions.Load(runID)
	if !ok {
		record, err := m.runs.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRunTerminal, record.State)
	}

	exec := val.(*executionContext)
	exec.cancelled.Store(true)
	exec.cancelFunc()

	m.logger.Info("run cancellation requested", zap.String("run_id", runID))
	return nil
}

// Shutdown cancels every active run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down run manager")

	m.executions.Range(func(key, value interface{}) bool {
		exec := value.(*executionContext)
		exec.cancelled.Store(true)
		exec.cancelFunc()
		return true
	})

	m.logger.Info("run manager shut down complete")
	return nil
}

// execute runs one queued run to completion and records the outcome.
func (m *Manager) execute(ctx context.Context, job *runJob) {
	runID := job.exec.runID
	defer m.executions.Delete(runID)
	defer job.exec.cancelFunc()

	record, err := m.runs.GetRun(ctx, runID)
	if err != nil {
		m.logger.Error("failed to load queued run",
			zap.String("run_id", runID),
			zap.Error(err))
		return
	}

	if ctx.Err() != nil {
		m.finish(record, domain.RunStateCancelled, nil, time.Now())
		return
	}

	started := time.Now()
	record.State = domain.RunStateRunning
	record.StartedAt = &started
	if err := m.runs.SaveRun(ctx, record); err != nil {
		m.logger.Error("failed to save running run",
			zap.String("run_id", runID),
			zap.Error(err))
	}
	m.publish(ctx, domain.EventTypeRunStarted, runID, nil)
	m.metrics.SetActiveRuns(int(m.active.Add(1)))
	defer func() {
		m.metrics.SetActiveRuns(int(m.active.Add(-1)))
	}()

	result, err := m.orchestrator.Run(ctx, job.spec, job.args, RunConfig{
		RunID:        runID,
		PipelineRoot: m.cfg.PipelineRoot,
	}, m.stores(runID))

	switch {
	case job.exec.cancelled.Load():
		m.finish(record, domain.RunStateCancelled, nil, started)
	case err != nil:
		if domain.IsSpecError(err) {
			m.metrics.RecordSpecError(domain.SpecErrorKind(err))
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("run timeout: %w", err)
		}
		record.Error = err.Error()
		m.finish(record, domain.RunStateErrored, nil, started)
	case !result.Succeeded():
		record.FailedTask = result.FailedTask
		m.finish(record, domain.RunStateFailed, nil, started)
	default:
		m.finish(record, domain.RunStateSucceeded, result.Outputs, started)
	}
}

// finish stores the terminal state of a run and publishes its event.
func (m *Manager) finish(record *domain.RunRecord, state domain.RunState, outputs domain.ValueMap, started time.Time) {
	ctx := context.Background()
	now := time.Now()
	record.State = state
	record.Outputs = outputs
	record.CompletedAt = &now

	if err := m.runs.SaveRun(ctx, record); err != nil {
		m.logger.Error("failed to save finished run",
			zap.String("run_id", record.ID),
			zap.Error(err))
	}

	m.metrics.RecordRunCompleted(string(state), now.Sub(started))

	data := map[string]interface{}{"state": string(state)}
	if record.FailedTask != "" {
		data["failed_task"] = record.FailedTask
	}
	if record.Error != "" {
		data["error"] = record.Error
	}
	m.publish(ctx, runEventType(state), record.ID, data)

	m.logger.Info("run finished",
		zap.String("run_id", record.ID),
		zap.String("state", string(state)),
		zap.String("failed_task", record.FailedTask))
}

func (m *Manager) publish(ctx context.Context, eventType domain.EventType, runID string, data map[string]interface{}) {
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := m.eventBus.Publish(ctx, domain.TopicRunEvents, event); err != nil {
		m.logger.Error("failed to publish run event",
			zap.String("type", string(eventType)),
			zap.String("run_id", runID),
			zap.Error(err))
	}
}

func runEventType(state domain.RunState) domain.EventType {
	switch state {
	case domain.RunStateSucceeded:
		return domain.EventTypeRunSucceeded
	case domain.RunStateFailed:
		return domain.EventTypeRunFailed
	case domain.RunStateCancelled:
		return domain.EventTypeRunCancelled
	default:
		return domain.EventTypeRunErrored
	}
}

// runJob adapts a submitted run to the job queue.
type runJob struct {
	manager *Manager
	exec    *executionContext
	ctx     context.Context
	spec    *domain.PipelineSpec
	args    map[string]domain.Value
}

// ID implements ports.Job.
func (j *runJob) ID() string {
	return j.exec.runID
}

// Execute implements ports.Job. The run stops when either the run's own
// context or the worker's context is cancelled.
func (j *runJob) Execute(workerCtx context.Context) {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(workerCtx, cancel)
	defer stop()

	j.manager.execute(ctx, j)
}
