package orchestrator

import (
	"fmt"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// ValidateExecutor accepts container executors only.
func ValidateExecutor(executor *domain.ExecutorSpec) error {
	if executor == nil {
		return domain.NewSpecError(domain.ErrInvalidExecutorSpec, "", "executor is nil")
	}
	switch executor.Impl().(type) {
	case *domain.ContainerSpec:
		return nil
	case *domain.ImporterSpec:
		return domain.Unsupported(domain.FeatureImporter, "importer executors cannot run locally")
	default:
		return domain.NewSpecError(domain.ErrInvalidExecutorSpec, "",
			"executor must be a container")
	}
}

// Validator checks a pipeline before any task is dispatched.
type Validator struct {
	orderer ports.GraphOrderer
}

// NewValidator creates a new pipeline validator
func NewValidator(orderer ports.GraphOrderer) *Validator {
	return &Validator{orderer: orderer}
}

// Validate validates a pipeline structure
func (v *Validator) Validate(spec *domain.PipelineSpec) error {
	if spec == nil {
		return domain.NewSpecError(domain.ErrInvalidPipelineSpec, "", "pipeline is nil")
	}

	if spec.PipelineInfo.Name == "" {
		return domain.NewSpecError(domain.ErrInvalidPipelineSpec, "pipelineInfo", "pipeline name is required")
	}

	if spec.Root == nil {
		return domain.NewSpecError(domain.ErrInvalidPipelineSpec, "root", "root component is required")
	}

	impl, err := spec.Root.Implementation()
	if err != nil {
		return &domain.SpecError{Err: err, Subject: "root"}
	}
	rootDAG, ok := impl.(domain.DAGImplementation)
	if !ok {
		return domain.NewSpecError(domain.ErrInvalidComponentSpec, "root", "root component must be a dag")
	}

	// A dag without tasks is valid and runs to SUCCESS
	dag := rootDAG.DAG

	for _, name := range sortedKeys(dag.Tasks) {
		if err := v.validateTask(spec, dag, name, dag.Tasks[name]); err != nil {
			return err
		}
	}

	if _, err := v.orderer.Order(dag.Dependencies()); err != nil {
		return err
	}

	return v.validateOutputs(dag)
}

// validateTask validates a single task
func (v *Validator) validateTask(spec *domain.PipelineSpec, dag *domain.DAGSpec, name string, task *domain.TaskSpec) error {
	if task == nil {
		return domain.NewSpecError(domain.ErrInvalidPipelineSpec, name, "task is nil")
	}

	if task.TriggerPolicy != nil && task.TriggerPolicy.Condition != "" {
		return domain.Unsupported(domain.FeatureCondition, "task %q has a trigger condition", name)
	}
	if task.ParameterIterator != nil || task.ArtifactIterator != nil {
		return domain.Unsupported(domain.FeatureLoop, "task %q iterates over its inputs", name)
	}

	component, err := spec.Component(task.ComponentRef.Name)
	if err != nil {
		return err
	}

	impl, err := component.Implementation()
	if err != nil {
		return &domain.SpecError{Err: err, Subject: task.ComponentRef.Name}
	}
	switch leaf := impl.(type) {
	case domain.DAGImplementation:
		return domain.Unsupported(domain.FeatureNestedDAG, "task %q runs component %q", name, task.ComponentRef.Name)
	case domain.LeafImplementation:
		executor, err := spec.Executor(leaf.ExecutorLabel)
		if err != nil {
			return err
		}
		if err := ValidateExecutor(executor); err != nil {
			return fmt.Errorf("task %q: %w", name, err)
		}
	}

	for _, upstream := range task.DependentTasks {
		if _, ok := dag.Tasks[upstream]; !ok {
			return domain.NewSpecError(domain.ErrUnknownTask, upstream, "task %q depends on an undefined task", name)
		}
	}

	return v.validateInputs(dag, name, task.Inputs)
}

func (v *Validator) validateInputs(dag *domain.DAGSpec, task string, inputs *domain.TaskInputsSpec) error {
	if inputs == nil {
		return nil
	}

	for _, name := range sortedKeys(inputs.Parameters) {
		spec := inputs.Parameters[name]
		if spec == nil {
			return missingInputSource(name)
		}
		src, err := spec.Source()
		if err != nil {
			return sourceError(name, err)
		}
		switch s := src.(type) {
		case domain.ConstantSource:
			if s.Value == nil {
				return domain.NewSpecError(domain.ErrNonConstantRuntimeValue, name,
					"runtime value of parameter input carries no constant")
			}
		case domain.TaskOutputSource:
			if err := knownProducer(dag, task, s.ProducerTask); err != nil {
				return err
			}
		case domain.FinalStatusSource:
			return domain.Unsupported(domain.FeatureTaskFinalStatus,
				"input %q reads the final status of task %q", name, s.ProducerTask)
		}
	}

	for _, name := range sortedKeys(inputs.Artifacts) {
		spec := inputs.Artifacts[name]
		if spec == nil {
			return missingInputSource(name)
		}
		src, err := spec.Source()
		if err != nil {
			return sourceError(name, err)
		}
		switch s := src.(type) {
		case domain.ConstantSource, domain.FinalStatusSource:
			return domain.NewSpecError(domain.ErrInvalidArtifactSource, name,
				"artifact inputs must come from a task output or a pipeline input")
		case domain.TaskOutputSource:
			if err := knownProducer(dag, task, s.ProducerTask); err != nil {
				return err
			}
		}
	}

	return nil
}

func (v *Validator) validateOutputs(dag *domain.DAGSpec) error {
	if dag.Outputs == nil {
		return nil
	}

	for _, key := range sortedKeys(dag.Outputs.Parameters) {
		switch sel := dag.Outputs.Parameters[key].Selector().(type) {
		case domain.FromTaskSelector:
			if err := knownProducer(dag, "", sel.ProducerTask); err != nil {
				return err
			}
		case domain.OneOfSelector:
			return domain.Unsupported(domain.FeatureOneOf,
				"output %q selects among %d candidates", key, len(sel.Candidates))
		default:
			return domain.NewSpecError(domain.ErrInvalidOutputSpec, key,
				"output parameter must set exactly one of valueFromParameter and valueFromOneof")
		}
	}

	for _, key := range sortedKeys(dag.Outputs.Artifacts) {
		var selectors []domain.ArtifactSelector
		if spec := dag.Outputs.Artifacts[key]; spec != nil {
			selectors = spec.ArtifactSelectors
		}
		if len(selectors) != 1 {
			return domain.NewSpecError(domain.ErrInvalidOutputSpec, key,
				"expected 1 artifact selector, got %d", len(selectors))
		}
		if err := knownProducer(dag, "", selectors[0].ProducerSubtask); err != nil {
			return err
		}
	}

	return nil
}

func knownProducer(dag *domain.DAGSpec, consumer, producer string) error {
	if _, ok := dag.Tasks[producer]; ok {
		return nil
	}
	if consumer == "" {
		return domain.NewSpecError(domain.ErrUnknownTask, producer, "dag output references an undefined task")
	}
	return domain.NewSpecError(domain.ErrUnknownTask, producer, "task %q references an undefined task", consumer)
}
