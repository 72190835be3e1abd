package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/localdag/pkg/adapters/literal"
	"github.com/aescanero/localdag/pkg/domain"
)

func TestMakeTaskArguments_ConstantNeverReadsStore(t *testing.T) {
	store := newSpyStore()
	inputs := &domain.TaskInputsSpec{
		Parameters: map[string]*domain.ParameterInputSpec{
			"n":    {RuntimeValue: &domain.RuntimeValue{Constant: domain.MustLiteral(3)}},
			"name": {RuntimeValue: &domain.RuntimeValue{Constant: domain.MustLiteral("x")}},
		},
	}

	args, err := MakeTaskArguments(context.Background(), inputs, store, literal.NewDecoder())
	require.NoError(t, err)
	assert.Equal(t, map[string]domain.Value{"n": 3.0, "name": "x"}, args)
	assert.Zero(t, store.reads)
}

func TestMakeTaskArguments_ReadsStore(t *testing.T) {
	ctx := context.Background()
	store := newSpyStore()
	model := &domain.Artifact{Name: "model", URI: "file:///tmp/model"}
	dataset := &domain.Artifact{Name: "data", URI: "file:///tmp/data"}
	require.NoError(t, store.PutTaskOutput(ctx, "train", "acc", 0.9))
	require.NoError(t, store.PutTaskOutput(ctx, "train", "model", model))
	require.NoError(t, store.PutParentInput(ctx, "epochs", 4))
	require.NoError(t, store.PutParentInput(ctx, "dataset", dataset))

	inputs := &domain.TaskInputsSpec{
		Parameters: map[string]*domain.ParameterInputSpec{
			"accuracy": fromTask("train", "acc"),
			"epochs":   {ComponentInputParameter: "epochs"},
		},
		Artifacts: map[string]*domain.ArtifactInputSpec{
			"model": {TaskOutputArtifact: &domain.TaskOutputArtifactSpec{ProducerTask: "train", OutputArtifactKey: "model"}},
			"data":  {ComponentInputArtifact: "dataset"},
		},
	}

	args, err := MakeTaskArguments(ctx, inputs, store, literal.NewDecoder())
	require.NoError(t, err)
	assert.Equal(t, 0.9, args["accuracy"])
	assert.Equal(t, 4, args["epochs"])
	assert.Same(t, model, args["model"])
	assert.Same(t, dataset, args["data"])
	assert.Equal(t, 4, store.reads)
}

func TestMakeTaskArguments_Errors(t *testing.T) {
	tests := []struct {
		name    string
		inputs  *domain.TaskInputsSpec
		wantErr error
		feature string
	}{
		{
			name: "no source",
			inputs: &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{
				"p": {},
			}},
			wantErr: domain.ErrMissingInputSource,
		},
		{
			name: "two sources",
			inputs: &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{
				"p": {ComponentInputParameter: "x", RuntimeValue: &domain.RuntimeValue{Constant: domain.MustLiteral(1)}},
			}},
			wantErr: domain.ErrAmbiguousInputSource,
		},
		{
			name: "runtime value without constant",
			inputs: &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{
				"p": {RuntimeValue: &domain.RuntimeValue{}},
			}},
			wantErr: domain.ErrNonConstantRuntimeValue,
		},
		{
			name: "final status",
			inputs: &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{
				"status": {TaskFinalStatus: &domain.TaskFinalStatusSpec{ProducerTask: "train"}},
			}},
			wantErr: domain.ErrUnsupportedFeature,
			feature: domain.FeatureTaskFinalStatus,
		},
		{
			name: "missing upstream output",
			inputs: &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{
				"p": fromTask("train", "acc"),
			}},
			wantErr: domain.ErrMissingUpstreamOutput,
		},
		{
			name: "missing parent input",
			inputs: &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{
				"p": {ComponentInputParameter: "epochs"},
			}},
			wantErr: domain.ErrMissingParentInput,
		},
		{
			name: "constant artifact",
			inputs: &domain.TaskInputsSpec{Artifacts: map[string]*domain.ArtifactInputSpec{
				"a": {RuntimeValue: &domain.RuntimeValue{Constant: domain.MustLiteral("gs://bucket/x")}},
			}},
			wantErr: domain.ErrInvalidArtifactSource,
		},
		{
			name: "final status artifact",
			inputs: &domain.TaskInputsSpec{Artifacts: map[string]*domain.ArtifactInputSpec{
				"a": {TaskFinalStatus: &domain.TaskFinalStatusSpec{ProducerTask: "train"}},
			}},
			wantErr: domain.ErrInvalidArtifactSource,
		},
		{
			name: "artifact without source",
			inputs: &domain.TaskInputsSpec{Artifacts: map[string]*domain.ArtifactInputSpec{
				"a": {},
			}},
			wantErr: domain.ErrMissingInputSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MakeTaskArguments(context.Background(), tt.inputs, newSpyStore(), literal.NewDecoder())
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsSpecError(err))
			if tt.feature != "" {
				assert.True(t, domain.IsUnsupported(err, tt.feature))
			}
		})
	}
}

func TestMakeTaskArguments_NilInputs(t *testing.T) {
	args, err := MakeTaskArguments(context.Background(), nil, newSpyStore(), literal.NewDecoder())
	require.NoError(t, err)
	assert.Empty(t, args)
}

func TestMakeTaskArguments_MissingSourceNamesInput(t *testing.T) {
	inputs := &domain.TaskInputsSpec{Parameters: map[string]*domain.ParameterInputSpec{"learning_rate": {}}}

	_, err := MakeTaskArguments(context.Background(), inputs, newSpyStore(), literal.NewDecoder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning_rate")
}
