package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// taskOutputKey identifies a task output
type taskOutputKey struct {
	task string
	key  string
}

// ValueStore implements ports.ValueStore with in-memory maps.
// One instance belongs to exactly one run.
type ValueStore struct {
	parentInputs map[string]domain.Value
	taskOutputs  map[taskOutputKey]domain.Value
	mu           sync.RWMutex
}

// NewValueStore creates an empty value store
func NewValueStore() *ValueStore {
	return &ValueStore{
		parentInputs: make(map[string]domain.Value),
		taskOutputs:  make(map[taskOutputKey]domain.Value),
	}
}

// NewValueStoreFactory returns a factory handing out a fresh store per run.
func NewValueStoreFactory() ports.ValueStoreFactory {
	return func(runID string) ports.ValueStore {
		return NewValueStore()
	}
}

// PutParentInput stores a DAG input
func (s *ValueStore) PutParentInput(ctx context.Context, name string, value domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.parentInputs[name]; ok {
		return fmt.Errorf("%w: parent input %q", domain.ErrValueAlreadySet, name)
	}
	s.parentInputs[name] = value
	return nil
}

// GetParentInput retrieves a DAG input
func (s *ValueStore) GetParentInput(ctx context.Context, name string) (domain.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.parentInputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrMissingParentInput, name)
	}
	return v, nil
}

// PutTaskOutput stores one output of a task
func (s *ValueStore) PutTaskOutput(ctx context.Context, task, key string, value domain.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := taskOutputKey{task: task, key: key}
	if _, ok := s.taskOutputs[k]; ok {
		return fmt.Errorf("%w: output %q of task %q", domain.ErrValueAlreadySet, key, task)
	}
	s.taskOutputs[k] = value
	return nil
}

// GetTaskOutput retrieves one output of a task
func (s *ValueStore) GetTaskOutput(ctx context.Context, task, key string) (domain.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.taskOutputs[taskOutputKey{task: task, key: key}]
	if !ok {
		return nil, fmt.Errorf("%w: output %q of task %q", domain.ErrMissingUpstreamOutput, key, task)
	}
	return v, nil
}

// HasTaskOutput reports whether a task output has been written
func (s *ValueStore) HasTaskOutput(task, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.taskOutputs[taskOutputKey{task: task, key: key}]
	return ok
}

// RunStore implements ports.RunStore using an in-memory map.
type RunStore struct {
	runs map[string]*domain.RunRecord
	mu   sync.RWMutex
}

// NewRunStore creates a new in-memory run store
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*domain.RunRecord),
	}
}

// SaveRun saves a copy of the run record
func (s *RunStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run record requires an ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid mutations
	runCopy := *run
	s.runs[run.ID] = &runCopy
	return nil
}

// GetRun retrieves a copy of a run record
func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
	}
	runCopy := *run
	return &runCopy, nil
}

// ListRuns returns all runs ordered by submission time
func (s *RunStore) ListRuns(ctx context.Context) ([]*domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runCopy := *run
		runs = append(runs, &runCopy)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SubmittedAt.Before(runs[j].SubmittedAt)
	})
	return runs, nil
}

// DeleteRun removes a run record
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, runID)
	return nil
}
