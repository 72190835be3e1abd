// Package ports declares the collaborators the orchestrator depends on.
// Adapters under pkg/adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/aescanero/localdag/pkg/domain"
)

// GraphOrderer produces a dependency-respecting task order.
type GraphOrderer interface {
	// Order returns every task of deps exactly once, each after all the
	// tasks it depends on. deps maps a task to its upstream tasks.
	// A cycle is reported as domain.ErrCyclicDependency.
	Order(deps map[string][]string) ([]string, error)
}

// ValueStore holds the parent inputs and task outputs of one DAG run.
// Each key is written at most once.
type ValueStore interface {
	PutParentInput(ctx context.Context, name string, value domain.Value) error
	// GetParentInput fails with domain.ErrMissingParentInput when absent.
	GetParentInput(ctx context.Context, name string) (domain.Value, error)
	PutTaskOutput(ctx context.Context, task, key string, value domain.Value) error
	// GetTaskOutput fails with domain.ErrMissingUpstreamOutput when absent.
	GetTaskOutput(ctx context.Context, task, key string) (domain.Value, error)
}

// ValueStoreFactory creates a fresh ValueStore for a run.
type ValueStoreFactory func(runID string) ValueStore

// LiteralDecoder converts specification literals to native values.
type LiteralDecoder interface {
	Decode(lit *domain.Literal) (domain.Value, error)
}

// TaskRequest is everything a runner needs to execute one leaf task.
type TaskRequest struct {
	PipelineName  string
	TaskName      string
	ComponentName string
	Component     *domain.ComponentSpec
	Executor      *domain.ExecutorSpec
	Arguments     map[string]domain.Value
	PipelineRoot  string
	// RunID is shared by every task of a run so placeholders resolve
	// against the same identity.
	RunID string
	// RaiseOnError makes the runner return an error instead of a FAILURE
	// status when the task fails.
	RaiseOnError bool
	// BlockInputArtifact makes the runner refuse input artifacts it cannot
	// verify locally.
	BlockInputArtifact bool
}

// TaskResult is a runner's report for one task.
type TaskResult struct {
	Outputs map[string]domain.Value
	Status  domain.Status
}

// TaskRunner executes one leaf task.
type TaskRunner interface {
	Run(ctx context.Context, req *TaskRequest) (*TaskResult, error)
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.RunRecord) error
	// GetRun fails with domain.ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListRuns(ctx context.Context) ([]*domain.RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error
}

// EventHandler consumes one event.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus carries run lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Unsubscribe(ctx context.Context, topic string) error
	Close() error
}

// MetricsCollector records run, task and worker pool metrics.
type MetricsCollector interface {
	RecordRunSubmitted(state string)
	RecordRunCompleted(state string, duration time.Duration)
	RecordTaskExecuted(component string, status string, duration time.Duration)
	RecordSpecError(kind string)
	RecordWorkerPoolStatus(idle, busy, stopped int)
	SetQueueDepth(depth int)
	SetActiveRuns(count int)
}

// Job is a unit of work for a JobQueue.
type Job interface {
	ID() string
	Execute(ctx context.Context)
}

// JobQueue accepts jobs for asynchronous execution.
type JobQueue interface {
	Submit(job Job) error
}
