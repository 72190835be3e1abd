package orchestrator

import (
	"context"
	"sync"

	"github.com/aescanero/localdag/pkg/adapters/storage/memory"
	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// fakeRunner records every request and answers with fn.
type fakeRunner struct {
	mu    sync.Mutex
	calls []*ports.TaskRequest
	fn    func(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeRunner) dispatched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.calls))
	for _, req := range f.calls {
		names = append(names, req.TaskName)
	}
	return names
}

// doublingRunner makes A produce x=5 and B produce z=y*2.
func doublingRunner(failing ...string) *fakeRunner {
	fail := make(map[string]bool, len(failing))
	for _, name := range failing {
		fail[name] = true
	}
	return &fakeRunner{fn: func(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error) {
		if fail[req.TaskName] {
			return &ports.TaskResult{Status: domain.StatusFailure}, nil
		}
		switch req.TaskName {
		case "A":
			return &ports.TaskResult{Status: domain.StatusSuccess, Outputs: map[string]domain.Value{"x": 5}}, nil
		case "B":
			y := req.Arguments["y"].(int)
			return &ports.TaskResult{Status: domain.StatusSuccess, Outputs: map[string]domain.Value{"z": y * 2}}, nil
		default:
			return &ports.TaskResult{Status: domain.StatusSuccess}, nil
		}
	}}
}

// spyStore counts reads on top of the in-memory store.
type spyStore struct {
	*memory.ValueStore
	mu    sync.Mutex
	reads int
}

func newSpyStore() *spyStore {
	return &spyStore{ValueStore: memory.NewValueStore()}
}

func (s *spyStore) GetParentInput(ctx context.Context, name string) (domain.Value, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.ValueStore.GetParentInput(ctx, name)
}

func (s *spyStore) GetTaskOutput(ctx context.Context, task, key string) (domain.Value, error) {
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return s.ValueStore.GetTaskOutput(ctx, task, key)
}

func containerExecutor() *domain.ExecutorSpec {
	return &domain.ExecutorSpec{Container: &domain.ContainerSpec{
		Image:   "python:3.11",
		Command: []string{"sh", "-c"},
	}}
}

func task(component string, inputs *domain.TaskInputsSpec, deps ...string) *domain.TaskSpec {
	return &domain.TaskSpec{
		TaskInfo:       domain.TaskInfo{Name: component},
		ComponentRef:   domain.ComponentRef{Name: component},
		Inputs:         inputs,
		DependentTasks: deps,
	}
}

func fromTask(producer, key string) *domain.ParameterInputSpec {
	return &domain.ParameterInputSpec{TaskOutputParameter: &domain.TaskOutputParameterSpec{
		ProducerTask:       producer,
		OutputParameterKey: key,
	}}
}

// doublingSpec is A -> B with out = B.z.
func doublingSpec() *domain.PipelineSpec {
	return &domain.PipelineSpec{
		PipelineInfo: domain.PipelineInfo{Name: "doubling"},
		Root: &domain.ComponentSpec{
			DAG: &domain.DAGSpec{
				Tasks: map[string]*domain.TaskSpec{
					"A": task("comp-a", nil),
					"B": task("comp-b", &domain.TaskInputsSpec{
						Parameters: map[string]*domain.ParameterInputSpec{"y": fromTask("A", "x")},
					}),
				},
				Outputs: &domain.DAGOutputsSpec{
					Parameters: map[string]*domain.DAGOutputParameterSpec{
						"out": {ValueFromParameter: &domain.ParameterFromTask{ProducerSubtask: "B", OutputParameterKey: "z"}},
					},
				},
			},
		},
		Components: map[string]*domain.ComponentSpec{
			"comp-a": {ExecutorLabel: "exec-a"},
			"comp-b": {ExecutorLabel: "exec-b"},
		},
		DeploymentSpec: domain.DeploymentSpec{Executors: map[string]*domain.ExecutorSpec{
			"exec-a": containerExecutor(),
			"exec-b": containerExecutor(),
		}},
	}
}
