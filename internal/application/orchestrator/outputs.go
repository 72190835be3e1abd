package orchestrator

import (
	"context"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// GetDAGOutputParameters resolves the DAG's declared output parameters.
func GetDAGOutputParameters(
	ctx context.Context,
	outputs *domain.DAGOutputsSpec,
	store ports.ValueStore,
) (map[string]domain.Value, error) {
	values := make(map[string]domain.Value)
	if outputs == nil {
		return values, nil
	}

	for _, key := range sortedKeys(outputs.Parameters) {
		switch sel := outputs.Parameters[key].Selector().(type) {
		case domain.FromTaskSelector:
			value, err := store.GetTaskOutput(ctx, sel.ProducerTask, sel.OutputKey)
			if err != nil {
				return nil, storeError(key, err)
			}
			values[key] = value
		case domain.OneOfSelector:
			return nil, domain.Unsupported(domain.FeatureOneOf,
				"output %q selects among %d candidates", key, len(sel.Candidates))
		default:
			return nil, domain.NewSpecError(domain.ErrInvalidOutputSpec, key,
				"output parameter must set exactly one of valueFromParameter and valueFromOneof")
		}
	}

	return values, nil
}

// GetDAGOutputArtifacts resolves the DAG's declared output artifacts. Each
// must name exactly one producer.
func GetDAGOutputArtifacts(
	ctx context.Context,
	outputs *domain.DAGOutputsSpec,
	store ports.ValueStore,
) (map[string]domain.Value, error) {
	values := make(map[string]domain.Value)
	if outputs == nil {
		return values, nil
	}

	for _, key := range sortedKeys(outputs.Artifacts) {
		var selectors []domain.ArtifactSelector
		if spec := outputs.Artifacts[key]; spec != nil {
			selectors = spec.ArtifactSelectors
		}
		if len(selectors) != 1 {
			return nil, domain.NewSpecError(domain.ErrInvalidOutputSpec, key,
				"expected 1 artifact selector, got %d", len(selectors))
		}
		sel := selectors[0]
		value, err := store.GetTaskOutput(ctx, sel.ProducerSubtask, sel.OutputArtifactKey)
		if err != nil {
			return nil, storeError(key, err)
		}
		values[key] = value
	}

	return values, nil
}

// GetDAGOutputs merges output parameters and artifacts. An artifact
// replaces a parameter of the same name.
func GetDAGOutputs(
	ctx context.Context,
	outputs *domain.DAGOutputsSpec,
	store ports.ValueStore,
) (domain.ValueMap, error) {
	params, err := GetDAGOutputParameters(ctx, outputs, store)
	if err != nil {
		return nil, err
	}
	artifacts, err := GetDAGOutputArtifacts(ctx, outputs, store)
	if err != nil {
		return nil, err
	}

	merged := make(domain.ValueMap, len(params)+len(artifacts))
	for k, v := range params {
		merged[k] = v
	}
	for k, v := range artifacts {
		merged[k] = v
	}
	return merged, nil
}
