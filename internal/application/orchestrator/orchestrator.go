package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// DAGRun is one invocation of Orchestrator.RunDAG.
type DAGRun struct {
	PipelineName string
	// DAG is the component whose tasks are run.
	DAG *domain.ComponentSpec
	// Spec supplies the components and executors the tasks reference.
	Spec      *domain.PipelineSpec
	Arguments map[string]domain.Value
	// Store must be fresh for the run. The orchestrator is its only writer.
	Store        ports.ValueStore
	PipelineRoot string
	RunID        string
}

// RunConfig carries the per-run settings of Orchestrator.Run.
type RunConfig struct {
	RunID        string
	PipelineRoot string
}

// Orchestrator runs the tasks of a DAG one at a time.
type Orchestrator struct {
	runner    ports.TaskRunner
	orderer   ports.GraphOrderer
	decoder   ports.LiteralDecoder
	eventBus  ports.EventBus
	metrics   ports.MetricsCollector
	validator *Validator
	logger    *zap.Logger
}

// NewOrchestrator creates a new orchestrator. eventBus and metrics may be nil.
func NewOrchestrator(
	runner ports.TaskRunner,
	orderer ports.GraphOrderer,
	decoder ports.LiteralDecoder,
	eventBus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		runner:    runner,
		orderer:   orderer,
		decoder:   decoder,
		eventBus:  eventBus,
		metrics:   metrics,
		validator: NewValidator(orderer),
		logger:    logger,
	}
}

// Validator returns the validator used by Run.
func (o *Orchestrator) Validator() *Validator {
	return o.validator
}

// Run validates spec, runs its root DAG and, when every task succeeded,
// resolves the pipeline outputs.
func (o *Orchestrator) Run(
	ctx context.Context,
	spec *domain.PipelineSpec,
	args map[string]domain.Value,
	cfg RunConfig,
	store ports.ValueStore,
) (*domain.Result, error) {
	if err := o.validator.Validate(spec); err != nil {
		return nil, err
	}
	args, err := BindArtifactInputs(args, spec.Root.InputDefinitions)
	if err != nil {
		return nil, err
	}

	result, err := o.RunDAG(ctx, &DAGRun{
		PipelineName: spec.PipelineInfo.Name,
		DAG:          spec.Root,
		Spec:         spec,
		Arguments:    args,
		Store:        store,
		PipelineRoot: cfg.PipelineRoot,
		RunID:        cfg.RunID,
	})
	if err != nil || !result.Succeeded() {
		return result, err
	}

	outputs, err := GetDAGOutputs(ctx, spec.Root.DAG.Outputs, store)
	if err != nil {
		return nil, err
	}
	result.Outputs = outputs
	return result, nil
}

// RunDAG runs every task of run.DAG in dependency order. It stops at the
// first task that reports FAILURE and returns (FAILURE, task). The returned
// error is reserved for specification problems and infrastructure failures.
func (o *Orchestrator) RunDAG(ctx context.Context, run *DAGRun) (*domain.Result, error) {
	if run.DAG == nil || run.DAG.DAG == nil {
		return nil, domain.NewSpecError(domain.ErrInvalidComponentSpec, run.PipelineName, "component is not a dag")
	}
	dag := run.DAG.DAG
	logger := o.logger.With(zap.String("run_id", run.RunID), zap.String("pipeline", run.PipelineName))

	args, err := JoinUserInputsAndDefaults(run.Arguments, run.DAG.InputDefinitions, o.decoder)
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(args) {
		if err := run.Store.PutParentInput(ctx, name, args[name]); err != nil {
			return nil, fmt.Errorf("failed to store pipeline input %q: %w", name, err)
		}
	}

	order, err := o.orderer.Order(dag.Dependencies())
	if err != nil {
		return nil, err
	}
	logger.Debug("task order computed", zap.Strings("order", order))

	for _, name := range order {
		status, err := o.runTask(ctx, run, name, dag.Tasks[name], logger)
		if err != nil {
			return nil, err
		}
		if status == domain.StatusFailure {
			logger.Warn("task failed, stopping run", zap.String("task", name))
			return &domain.Result{Status: domain.StatusFailure, FailedTask: name}, nil
		}
	}

	return &domain.Result{Status: domain.StatusSuccess}, nil
}

// runTask dispatches one task and stores its outputs on success.
func (o *Orchestrator) runTask(
	ctx context.Context,
	run *DAGRun,
	name string,
	task *domain.TaskSpec,
	logger *zap.Logger,
) (domain.Status, error) {
	if task == nil {
		return "", domain.NewSpecError(domain.ErrUnknownTask, name, "task is not defined")
	}

	componentName := task.ComponentRef.Name
	component, err := run.Spec.Component(componentName)
	if err != nil {
		return "", err
	}

	impl, err := component.Implementation()
	if err != nil {
		return "", &domain.SpecError{Err: err, Subject: componentName}
	}

	var executor *domain.ExecutorSpec
	switch leaf := impl.(type) {
	case domain.DAGImplementation:
		return "", domain.Unsupported(domain.FeatureNestedDAG,
			"task %q runs dag component %q", name, componentName)
	case domain.LeafImplementation:
		executor, err = run.Spec.Executor(leaf.ExecutorLabel)
		if err != nil {
			return "", err
		}
	default:
		return "", domain.NewSpecError(domain.ErrInvalidComponentSpec, componentName,
			"unknown implementation %T", impl)
	}

	if err := ValidateExecutor(executor); err != nil {
		return "", err
	}

	args, err := MakeTaskArguments(ctx, task.Inputs, run.Store, o.decoder)
	if err != nil {
		return "", err
	}

	logger.Info("running task", zap.String("task", name), zap.String("component", componentName))
	o.publish(ctx, domain.TopicTaskEvents, domain.EventTypeTaskStarted, run.RunID, name, map[string]interface{}{
		"component": componentName,
	})

	start := time.Now()
	result, err := o.runner.Run(ctx, &ports.TaskRequest{
		PipelineName:       run.PipelineName,
		TaskName:           name,
		ComponentName:      componentName,
		Component:          component,
		Executor:           executor,
		Arguments:          args,
		PipelineRoot:       run.PipelineRoot,
		RunID:              run.RunID,
		RaiseOnError:       false,
		BlockInputArtifact: false,
	})
	if err != nil {
		return "", fmt.Errorf("task %q: runner error: %w", name, err)
	}
	duration := time.Since(start)

	if o.metrics != nil {
		o.metrics.RecordTaskExecuted(componentName, string(result.Status), duration)
	}

	switch result.Status {
	case domain.StatusSuccess:
		for _, key := range sortedKeys(result.Outputs) {
			if err := run.Store.PutTaskOutput(ctx, name, key, result.Outputs[key]); err != nil {
				return "", fmt.Errorf("failed to store output %q of task %q: %w", key, name, err)
			}
		}
		logger.Info("task succeeded",
			zap.String("task", name),
			zap.Int("outputs", len(result.Outputs)),
			zap.Duration("duration", duration))
		o.publish(ctx, domain.TopicTaskEvents, domain.EventTypeTaskSucceeded, run.RunID, name, nil)
		return domain.StatusSuccess, nil
	case domain.StatusFailure:
		o.publish(ctx, domain.TopicTaskEvents, domain.EventTypeTaskFailed, run.RunID, name, nil)
		return domain.StatusFailure, nil
	default:
		return "", domain.NewSpecError(domain.ErrInvalidRunnerStatus, name,
			"runner reported status %q", result.Status)
	}
}

func (o *Orchestrator) publish(
	ctx context.Context,
	topic string,
	eventType domain.EventType,
	runID, task string,
	data map[string]interface{},
) {
	if o.eventBus == nil {
		return
	}
	event := domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		TaskName:  task,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err := o.eventBus.Publish(ctx, topic, event); err != nil {
		o.logger.Error("failed to publish event",
			zap.String("type", string(eventType)),
			zap.String("run_id", runID),
			zap.Error(err))
	}
}
