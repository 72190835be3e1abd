package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// MakeTaskArguments resolves every input of a task to a concrete value.
// Constants are decoded in place; references are read from the store.
func MakeTaskArguments(
	ctx context.Context,
	inputs *domain.TaskInputsSpec,
	store ports.ValueStore,
	decoder ports.LiteralDecoder,
) (map[string]domain.Value, error) {
	args := make(map[string]domain.Value)
	if inputs == nil {
		return args, nil
	}

	for _, name := range sortedKeys(inputs.Parameters) {
		value, err := resolveParameter(ctx, name, inputs.Parameters[name], store, decoder)
		if err != nil {
			return nil, err
		}
		args[name] = value
	}

	for _, name := range sortedKeys(inputs.Artifacts) {
		value, err := resolveArtifact(ctx, name, inputs.Artifacts[name], store)
		if err != nil {
			return nil, err
		}
		args[name] = value
	}

	return args, nil
}

func resolveParameter(
	ctx context.Context,
	name string,
	spec *domain.ParameterInputSpec,
	store ports.ValueStore,
	decoder ports.LiteralDecoder,
) (domain.Value, error) {
	if spec == nil {
		return nil, missingInputSource(name)
	}
	src, err := spec.Source()
	if err != nil {
		return nil, sourceError(name, err)
	}

	switch s := src.(type) {
	case domain.ConstantSource:
		if s.Value == nil {
			return nil, domain.NewSpecError(domain.ErrNonConstantRuntimeValue, name,
				"runtime value of parameter input carries no constant")
		}
		value, err := decoder.Decode(s.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode constant for input %q: %w", name, err)
		}
		return value, nil
	case domain.TaskOutputSource:
		value, err := store.GetTaskOutput(ctx, s.ProducerTask, s.OutputKey)
		return value, storeError(name, err)
	case domain.ParentInputSource:
		value, err := store.GetParentInput(ctx, s.InputName)
		return value, storeError(name, err)
	case domain.FinalStatusSource:
		return nil, domain.Unsupported(domain.FeatureTaskFinalStatus,
			"input %q reads the final status of task %q", name, s.ProducerTask)
	default:
		return nil, missingInputSource(name)
	}
}

func resolveArtifact(
	ctx context.Context,
	name string,
	spec *domain.ArtifactInputSpec,
	store ports.ValueStore,
) (domain.Value, error) {
	if spec == nil {
		return nil, missingInputSource(name)
	}
	src, err := spec.Source()
	if err != nil {
		return nil, sourceError(name, err)
	}

	switch s := src.(type) {
	case domain.TaskOutputSource:
		value, err := store.GetTaskOutput(ctx, s.ProducerTask, s.OutputKey)
		return value, storeError(name, err)
	case domain.ParentInputSource:
		value, err := store.GetParentInput(ctx, s.InputName)
		return value, storeError(name, err)
	case domain.ConstantSource:
		return nil, domain.NewSpecError(domain.ErrInvalidArtifactSource, name,
			"artifact inputs cannot be constants")
	case domain.FinalStatusSource:
		return nil, domain.NewSpecError(domain.ErrInvalidArtifactSource, name,
			"artifact inputs cannot read a task's final status")
	default:
		return nil, missingInputSource(name)
	}
}

func missingInputSource(name string) error {
	return domain.NewSpecError(domain.ErrMissingInputSource, name, "input declares no source")
}

func sourceError(name string, err error) error {
	if errors.Is(err, domain.ErrMissingInputSource) {
		return missingInputSource(name)
	}
	return &domain.SpecError{Err: err, Subject: name, Detail: "input declares more than one source"}
}

// storeError turns a missing value into a specification error. Any other
// store failure is returned as is.
func storeError(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrMissingUpstreamOutput) || errors.Is(err, domain.ErrMissingParentInput) {
		return &domain.SpecError{Err: err, Subject: name, Detail: "referenced value is not in the store"}
	}
	return fmt.Errorf("failed to read input %q: %w", name, err)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
