package domain

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineYAML = `
pipelineInfo:
  name: add-pipeline
root:
  inputDefinitions:
    parameters:
      a: {parameterType: NUMBER_DOUBLE, defaultValue: 1.5}
  dag:
    tasks:
      first:
        taskInfo: {name: first}
        componentRef: {name: comp-add}
        inputs:
          parameters:
            x: {componentInputParameter: a}
            y: {runtimeValue: {constant: 2}}
      second:
        taskInfo: {name: second}
        componentRef: {name: comp-add}
        dependentTasks: [first]
        inputs:
          parameters:
            x: {taskOutputParameter: {producerTask: first, outputParameterKey: sum}}
            y: {runtimeValue: {constant: {nested: [1, "two"]}}}
components:
  comp-add:
    executorLabel: exec-add
deploymentSpec:
  executors:
    exec-add:
      container:
        image: python:3.11
        command: [python, -c]
        args: ["print(1)"]
        env:
          - {name: MODE, value: fast}
`

func TestParsePipelineSpec_YAML(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(pipelineYAML))
	require.NoError(t, err)

	assert.Equal(t, "add-pipeline", spec.PipelineInfo.Name)
	require.NotNil(t, spec.Root.DAG)
	assert.Len(t, spec.Root.DAG.Tasks, 2)

	def := spec.Root.InputDefinitions.Parameters["a"]
	assert.Equal(t, ParameterTypeDouble, def.ParameterType)
	assert.Equal(t, 1.5, def.DefaultValue.Proto().GetNumberValue())

	nested := spec.Root.DAG.Tasks["second"].Inputs.Parameters["y"].RuntimeValue.Constant
	assert.Equal(t, map[string]interface{}{"nested": []interface{}{float64(1), "two"}}, nested.Proto().AsInterface())

	exec, err := spec.Executor("exec-add")
	require.NoError(t, err)
	assert.Equal(t, []EnvVar{{Name: "MODE", Value: "fast"}}, exec.Container.Env)
}

func TestParsePipelineSpec_JSON(t *testing.T) {
	doc := `{
    "pipelineInfo": {"name": "json-pipeline"},
    "root": {"dag": {"tasks": {"t": {"taskInfo": {"name": "t"}, "componentRef": {"name": "c"},
      "inputs": {"parameters": {"p": {"runtimeValue": {"constant": "hello"}}}}}}}},
    "components": {"c": {"executorLabel": "e"}},
    "deploymentSpec": {"executors": {"e": {"container": {"image": "alpine"}}}}
  }`
	spec, err := LoadPipelineSpec(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "json-pipeline", spec.PipelineInfo.Name)
	lit := spec.Root.DAG.Tasks["t"].Inputs.Parameters["p"].RuntimeValue.Constant
	assert.Equal(t, "hello", lit.Proto().GetStringValue())
}

func TestParsePipelineSpec_Errors(t *testing.T) {
	_, err := ParsePipelineSpec(nil)
	assert.ErrorIs(t, err, ErrInvalidPipelineSpec)

	_, err = ParsePipelineSpec([]byte("pipelineInfo: {name: x}\n"))
	assert.ErrorIs(t, err, ErrInvalidPipelineSpec)

	_, err = ParsePipelineSpec([]byte("root: [unclosed"))
	assert.Error(t, err)
}

func TestPipelineSpec_Lookups(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(pipelineYAML))
	require.NoError(t, err)

	_, err = spec.Component("comp-add")
	assert.NoError(t, err)

	_, err = spec.Component("comp-missing")
	assert.ErrorIs(t, err, ErrUnknownComponent)
	assert.True(t, IsSpecError(err))

	_, err = spec.Executor("exec-missing")
	assert.ErrorIs(t, err, ErrUnknownExecutor)
}

func TestComponentSpec_Implementation(t *testing.T) {
	impl, err := (&ComponentSpec{ExecutorLabel: "e"}).Implementation()
	require.NoError(t, err)
	assert.Equal(t, LeafImplementation{ExecutorLabel: "e"}, impl)

	dag := &DAGSpec{}
	impl, err = (&ComponentSpec{DAG: dag}).Implementation()
	require.NoError(t, err)
	assert.Equal(t, DAGImplementation{DAG: dag}, impl)

	_, err = (&ComponentSpec{}).Implementation()
	assert.ErrorIs(t, err, ErrInvalidComponentSpec)

	_, err = (&ComponentSpec{ExecutorLabel: "e", DAG: dag}).Implementation()
	assert.ErrorIs(t, err, ErrInvalidComponentSpec)
}

func TestDAGSpec_Dependencies(t *testing.T) {
	spec, err := ParsePipelineSpec([]byte(pipelineYAML))
	require.NoError(t, err)

	deps := spec.Root.DAG.Dependencies()
	assert.Empty(t, deps["first"])

	// declared and data dependencies may repeat; orderers deduplicate
	second := append([]string(nil), deps["second"]...)
	sort.Strings(second)
	assert.Equal(t, []string{"first", "first"}, second)
}

func TestExecutorSpec_Impl(t *testing.T) {
	container := &ContainerSpec{Image: "alpine"}
	assert.Equal(t, ExecutorImpl(container), (&ExecutorSpec{Container: container}).Impl())

	importer := &ImporterSpec{}
	assert.Equal(t, ExecutorImpl(importer), (&ExecutorSpec{Importer: importer}).Impl())

	assert.Nil(t, (&ExecutorSpec{}).Impl())
	assert.Nil(t, (&ExecutorSpec{Container: container, Importer: importer}).Impl())

	var nilSpec *ExecutorSpec
	assert.Nil(t, nilSpec.Impl())
}

func TestSpecErrorKind(t *testing.T) {
	assert.Equal(t, FeatureImporter, SpecErrorKind(Unsupported(FeatureImporter, "no importers")))
	assert.Equal(t, "unknown task", SpecErrorKind(NewSpecError(ErrUnknownTask, "x", "not defined")))
	assert.Equal(t, "unknown", SpecErrorKind(errors.New("boom")))
}

func TestSpecError_Message(t *testing.T) {
	err := NewSpecError(ErrMissingInputSource, "x", "task %q", "t1")
	assert.Equal(t, `missing input source (x): task "t1"`, err.Error())
	assert.True(t, IsUnsupported(Unsupported(FeatureLoop, "loops"), FeatureLoop))
	assert.False(t, IsUnsupported(Unsupported(FeatureLoop, "loops"), FeatureCondition))
	assert.False(t, IsUnsupported(err, FeatureLoop))
}
