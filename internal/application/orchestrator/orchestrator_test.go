package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/localdag/pkg/adapters/events/memory"
	"github.com/aescanero/localdag/pkg/adapters/literal"
	"github.com/aescanero/localdag/pkg/adapters/ordering"
	storage "github.com/aescanero/localdag/pkg/adapters/storage/memory"
	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

func newTestOrchestrator(t *testing.T, runner ports.TaskRunner) *Orchestrator {
	return NewOrchestrator(runner, ordering.NewTopological(), literal.NewDecoder(), nil, nil, zaptest.NewLogger(t))
}

func rootRun(spec *domain.PipelineSpec, store ports.ValueStore) *DAGRun {
	return &DAGRun{
		PipelineName: spec.PipelineInfo.Name,
		DAG:          spec.Root,
		Spec:         spec,
		Store:        store,
		PipelineRoot: "/tmp/outputs",
		RunID:        "run-1",
	}
}

func TestRunDAG_Succeeds(t *testing.T) {
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)
	spec := doublingSpec()
	store := storage.NewValueStore()

	result, err := o.RunDAG(context.Background(), rootRun(spec, store))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Empty(t, result.FailedTask)
	assert.Equal(t, []string{"A", "B"}, runner.dispatched())

	x, err := store.GetTaskOutput(context.Background(), "A", "x")
	require.NoError(t, err)
	assert.Equal(t, 5, x)
	assert.Equal(t, map[string]domain.Value{"y": 5}, runner.calls[1].Arguments)

	outputs, err := GetDAGOutputs(context.Background(), spec.Root.DAG.Outputs, store)
	require.NoError(t, err)
	if diff := cmp.Diff(domain.ValueMap{"out": 10}, outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDAG_PassesRunSettings(t *testing.T) {
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(doublingSpec(), storage.NewValueStore()))
	require.NoError(t, err)

	require.Len(t, runner.calls, 2)
	for _, req := range runner.calls {
		assert.Equal(t, "run-1", req.RunID)
		assert.Equal(t, "doubling", req.PipelineName)
		assert.Equal(t, "/tmp/outputs", req.PipelineRoot)
		assert.False(t, req.RaiseOnError)
		assert.False(t, req.BlockInputArtifact)
		require.NotNil(t, req.Executor.Container)
	}
	assert.Equal(t, "comp-a", runner.calls[0].ComponentName)
}

func TestRunDAG_StopsAtFirstFailure(t *testing.T) {
	runner := doublingRunner("A")
	o := newTestOrchestrator(t, runner)
	store := storage.NewValueStore()

	result, err := o.RunDAG(context.Background(), rootRun(doublingSpec(), store))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, result.Status)
	assert.Equal(t, "A", result.FailedTask)
	assert.Equal(t, []string{"A"}, runner.dispatched())
	assert.False(t, store.HasTaskOutput("A", "x"))
}

func TestRunDAG_FailureSkipsIndependentBranch(t *testing.T) {
	spec := doublingSpec()
	// C depends on nothing but orders after A
	spec.Root.DAG.Tasks["C"] = task("comp-a", nil)
	runner := doublingRunner("A")
	o := newTestOrchestrator(t, runner)

	result, err := o.RunDAG(context.Background(), rootRun(spec, storage.NewValueStore()))
	require.NoError(t, err)
	assert.Equal(t, "A", result.FailedTask)
	assert.Equal(t, []string{"A"}, runner.dispatched())
}

func TestRunDAG_KeepsOutputsOfEarlierTasks(t *testing.T) {
	runner := doublingRunner("B")
	o := newTestOrchestrator(t, runner)
	store := storage.NewValueStore()

	result, err := o.RunDAG(context.Background(), rootRun(doublingSpec(), store))
	require.NoError(t, err)
	assert.Equal(t, "B", result.FailedTask)
	assert.True(t, store.HasTaskOutput("A", "x"))
}

func TestRunDAG_SeedsDefaults(t *testing.T) {
	spec := doublingSpec()
	spec.Root.InputDefinitions = &domain.ComponentInputsSpec{
		Parameters: map[string]*domain.ParameterSpec{
			"greeting": {ParameterType: domain.ParameterTypeString, DefaultValue: domain.MustLiteral("hi")},
			"count":    {ParameterType: domain.ParameterTypeInteger, DefaultValue: domain.MustLiteral(1)},
		},
	}
	o := newTestOrchestrator(t, doublingRunner())
	store := storage.NewValueStore()

	run := rootRun(spec, store)
	run.Arguments = map[string]domain.Value{"count": 7}
	_, err := o.RunDAG(context.Background(), run)
	require.NoError(t, err)

	ctx := context.Background()
	v, err := store.GetParentInput(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hi", v)
	v, err = store.GetParentInput(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRunDAG_InvalidRunnerStatus(t *testing.T) {
	runner := &fakeRunner{fn: func(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error) {
		return &ports.TaskResult{Status: "SKIPPED"}, nil
	}}
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(doublingSpec(), storage.NewValueStore()))
	require.ErrorIs(t, err, domain.ErrInvalidRunnerStatus)
	assert.True(t, domain.IsSpecError(err))
	assert.Equal(t, []string{"A"}, runner.dispatched())
}

func TestRunDAG_NestedDAGIsFatal(t *testing.T) {
	spec := doublingSpec()
	spec.Components["comp-b"] = &domain.ComponentSpec{DAG: &domain.DAGSpec{}}
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(spec, storage.NewValueStore()))
	require.Error(t, err)
	assert.True(t, domain.IsUnsupported(err, domain.FeatureNestedDAG))
	assert.Equal(t, []string{"A"}, runner.dispatched())
}

func TestRunDAG_InvalidComponent(t *testing.T) {
	spec := doublingSpec()
	spec.Components["comp-a"] = &domain.ComponentSpec{}
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(spec, storage.NewValueStore()))
	require.ErrorIs(t, err, domain.ErrInvalidComponentSpec)
	assert.Empty(t, runner.dispatched())
}

func TestRunDAG_ImporterIsFatal(t *testing.T) {
	spec := doublingSpec()
	spec.DeploymentSpec.Executors["exec-a"] = &domain.ExecutorSpec{Importer: &domain.ImporterSpec{}}
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(spec, storage.NewValueStore()))
	assert.True(t, domain.IsUnsupported(err, domain.FeatureImporter))
	assert.Empty(t, runner.dispatched())
}

func TestRunDAG_CycleIsFatal(t *testing.T) {
	spec := doublingSpec()
	spec.Root.DAG.Tasks["A"].DependentTasks = []string{"B"}
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(spec, storage.NewValueStore()))
	require.ErrorIs(t, err, domain.ErrCyclicDependency)
	assert.Empty(t, runner.dispatched())
}

func TestRunDAG_RunnerErrorIsNotSpecError(t *testing.T) {
	boom := errors.New("docker daemon unreachable")
	runner := &fakeRunner{fn: func(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error) {
		return nil, boom
	}}
	o := newTestOrchestrator(t, runner)

	_, err := o.RunDAG(context.Background(), rootRun(doublingSpec(), storage.NewValueStore()))
	require.ErrorIs(t, err, boom)
	assert.False(t, domain.IsSpecError(err))
}

func TestRun_ResolvesOutputs(t *testing.T) {
	bus := memory.NewInMemoryEventBus()
	defer bus.Close()

	events := make(chan domain.Event, 8)
	require.NoError(t, bus.Subscribe(context.Background(), domain.TopicTaskEvents, func(ctx context.Context, e domain.Event) error {
		events <- e
		return nil
	}))

	o := NewOrchestrator(doublingRunner(), ordering.NewTopological(), literal.NewDecoder(), bus, nil, zaptest.NewLogger(t))
	result, err := o.Run(context.Background(), doublingSpec(), nil, RunConfig{RunID: "run-1"}, storage.NewValueStore())
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, domain.ValueMap{"out": 10}, result.Outputs)

	// started and succeeded for A and B
	for i := 0; i < 4; i++ {
		e := <-events
		assert.Equal(t, "run-1", e.RunID)
		assert.Contains(t, []string{"A", "B"}, e.TaskName)
	}
}

func TestRun_FailureHasNoOutputs(t *testing.T) {
	o := newTestOrchestrator(t, doublingRunner("B"))

	result, err := o.Run(context.Background(), doublingSpec(), nil, RunConfig{RunID: "run-1"}, storage.NewValueStore())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailure, result.Status)
	assert.Equal(t, "B", result.FailedTask)
	assert.Nil(t, result.Outputs)
}

func TestRun_RejectsBeforeDispatch(t *testing.T) {
	spec := doublingSpec()
	spec.Components["comp-b"] = &domain.ComponentSpec{DAG: &domain.DAGSpec{}}
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)

	_, err := o.Run(context.Background(), spec, nil, RunConfig{RunID: "run-1"}, storage.NewValueStore())
	assert.True(t, domain.IsUnsupported(err, domain.FeatureNestedDAG))
	assert.Empty(t, runner.dispatched())
}

func TestRun_EmptyDAGSucceeds(t *testing.T) {
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)
	spec := &domain.PipelineSpec{
		PipelineInfo: domain.PipelineInfo{Name: "empty"},
		Root:         &domain.ComponentSpec{DAG: &domain.DAGSpec{}},
	}

	result, err := o.Run(context.Background(), spec, nil, RunConfig{RunID: "run-1"}, storage.NewValueStore())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, result.Status)
	assert.Empty(t, result.FailedTask)
	assert.Empty(t, result.Outputs)
	assert.Empty(t, runner.dispatched())
}

func TestRun_BindsArtifactArguments(t *testing.T) {
	runner := doublingRunner()
	o := newTestOrchestrator(t, runner)
	spec := doublingSpec()
	spec.Root.InputDefinitions = &domain.ComponentInputsSpec{Artifacts: map[string]*domain.ArtifactSpec{
		"data": {ArtifactType: domain.ArtifactTypeSchema{SchemaTitle: "system.Dataset"}},
	}}
	spec.Root.DAG.Tasks["A"].Inputs = &domain.TaskInputsSpec{Artifacts: map[string]*domain.ArtifactInputSpec{
		"d": {ComponentInputArtifact: "data"},
	}}

	result, err := o.Run(context.Background(), spec, map[string]domain.Value{"data": "file:///tmp/rows.csv"},
		RunConfig{RunID: "run-1"}, storage.NewValueStore())
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	require.NotEmpty(t, runner.calls)
	assert.Equal(t, &domain.Artifact{Name: "data", URI: "file:///tmp/rows.csv", SchemaTitle: "system.Dataset"},
		runner.calls[0].Arguments["d"])
}
