package subprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

func shellRequest(t *testing.T, script string, outputs *domain.ComponentOutputsSpec, args map[string]domain.Value) *ports.TaskRequest {
	return &ports.TaskRequest{
		PipelineName:  "demo",
		TaskName:      "double",
		ComponentName: "comp-double",
		Component:     &domain.ComponentSpec{ExecutorLabel: "exec-double", OutputDefinitions: outputs},
		Executor: &domain.ExecutorSpec{Container: &domain.ContainerSpec{
			Image:   "alpine:3.19",
			Command: []string{"sh", "-c"},
			Args:    []string{script},
		}},
		Arguments:    args,
		PipelineRoot: t.TempDir(),
		RunID:        "run-42",
	}
}

func TestRunner_ParameterRoundTrip(t *testing.T) {
	outputs := &domain.ComponentOutputsSpec{Parameters: map[string]*domain.ParameterSpec{
		"z": {ParameterType: domain.ParameterTypeInteger},
	}}
	req := shellRequest(t,
		`printf '%s' $(( {{$.inputs.parameters['y']}} * 2 )) > "{{$.outputs.parameters['z'].output_file}}"`,
		outputs, map[string]domain.Value{"y": 5})

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Equal(t, map[string]domain.Value{"z": 10}, result.Outputs)

	path := filepath.Join(req.PipelineRoot, "demo-run-42", "double", "parameters", "z")
	assert.FileExists(t, path)
}

func TestRunner_ArtifactOutput(t *testing.T) {
	outputs := &domain.ComponentOutputsSpec{Artifacts: map[string]*domain.ArtifactSpec{
		"model": {ArtifactType: domain.ArtifactTypeSchema{SchemaTitle: "system.Model"}},
	}}
	req := shellRequest(t, `echo weights > "{{$.outputs.artifacts['model'].path}}"`, outputs, nil)

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, result.Status)

	model, ok := result.Outputs["model"].(*domain.Artifact)
	require.True(t, ok)
	assert.Equal(t, "system.Model", model.SchemaTitle)
	data, err := os.ReadFile(model.Path())
	require.NoError(t, err)
	assert.Equal(t, "weights\n", string(data))
}

func TestRunner_InputArtifact(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(src, []byte("a,b\n"), 0o644))

	outputs := &domain.ComponentOutputsSpec{Parameters: map[string]*domain.ParameterSpec{
		"header": {ParameterType: domain.ParameterTypeString},
	}}
	req := shellRequest(t,
		`head -n1 "{{$.inputs.artifacts['data'].path}}" | tr -d '\n' > "{{$.outputs.parameters['header'].output_file}}"`,
		outputs, map[string]domain.Value{"data": &domain.Artifact{Name: "data", URI: "file://" + src}})
	req.BlockInputArtifact = true

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a,b", result.Outputs["header"])
}

func TestRunner_BlockInputArtifact(t *testing.T) {
	req := shellRequest(t, "true", nil, map[string]domain.Value{
		"data": &domain.Artifact{Name: "data", URI: "/does/not/exist"},
	})
	req.BlockInputArtifact = true

	_, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrMissingInputArtifact)

	req.BlockInputArtifact = false
	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
}

func TestRunner_NonZeroExit(t *testing.T) {
	req := shellRequest(t, "echo boom >&2; exit 3", nil, nil)

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, result.Status)

	req.RaiseOnError = true
	_, err = NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	assert.ErrorIs(t, err, ErrTaskFailed)
}

func TestRunner_MissingOutputFails(t *testing.T) {
	outputs := &domain.ComponentOutputsSpec{Parameters: map[string]*domain.ParameterSpec{
		"z":     {ParameterType: domain.ParameterTypeInteger},
		"extra": {ParameterType: domain.ParameterTypeString, IsOptional: true},
	}}
	req := shellRequest(t, "true", outputs, nil)

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, result.Status)
}

func TestRunner_OptionalOutputMayBeAbsent(t *testing.T) {
	outputs := &domain.ComponentOutputsSpec{Parameters: map[string]*domain.ParameterSpec{
		"extra": {ParameterType: domain.ParameterTypeString, IsOptional: true},
	}}
	req := shellRequest(t, "true", outputs, nil)

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Empty(t, result.Outputs)
}

func TestRunner_Env(t *testing.T) {
	outputs := &domain.ComponentOutputsSpec{Parameters: map[string]*domain.ParameterSpec{
		"greeting": {ParameterType: domain.ParameterTypeString},
	}}
	req := shellRequest(t, `printf '%s' "$GREETING" > "{{$.outputs.parameters['greeting'].output_file}}"`, outputs, nil)
	req.Executor.Container.Env = []domain.EnvVar{{Name: "GREETING", Value: "hello {{$.pipeline_job_uuid}}"}}

	result, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hello run-42", result.Outputs["greeting"])
}

func TestRunner_UnknownPlaceholder(t *testing.T) {
	req := shellRequest(t, "echo {{$.inputs.parameters['missing']}}", nil, nil)

	_, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidExecutorSpec)
	assert.True(t, domain.IsSpecError(err))
}

func TestRunner_RequiresCommand(t *testing.T) {
	req := shellRequest(t, "true", nil, nil)
	req.Executor.Container.Command = nil
	req.Executor.Container.Args = nil

	_, err := NewRunner(zaptest.NewLogger(t)).Run(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidExecutorSpec)
}

func TestRunner_Cancelled(t *testing.T) {
	req := shellRequest(t, "sleep 30", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewRunner(zaptest.NewLogger(t)).Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, result.Status)
}
