package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aescanero/localdag/internal/application/workers"
	"github.com/aescanero/localdag/pkg/adapters/events/memory"
	"github.com/aescanero/localdag/pkg/adapters/literal"
	metrics "github.com/aescanero/localdag/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/localdag/pkg/adapters/ordering"
	storage "github.com/aescanero/localdag/pkg/adapters/storage/memory"
	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

type managerFixture struct {
	manager *Manager
	pool    *workers.Pool
	bus     *memory.InMemoryEventBus
}

func newManagerFixture(t *testing.T, runner ports.TaskRunner, queueSize int, start bool) *managerFixture {
	logger := zaptest.NewLogger(t)
	collector := metrics.NewCollector(prometheus.NewRegistry())
	bus := memory.NewInMemoryEventBus()
	pool := workers.NewPool(1, queueSize, collector, logger, time.Hour)
	if start {
		require.NoError(t, pool.Start())
	}

	o := NewOrchestrator(runner, ordering.NewTopological(), literal.NewDecoder(), bus, collector, logger)
	m := NewManager(o, pool, storage.NewRunStore(), storage.NewValueStoreFactory(), bus, collector, logger,
		ManagerConfig{PipelineRoot: t.TempDir()})

	t.Cleanup(func() {
		_ = m.Shutdown(context.Background())
		_ = pool.Shutdown(context.Background())
		_ = bus.Close()
	})
	return &managerFixture{manager: m, pool: pool, bus: bus}
}

func waitForState(t *testing.T, m *Manager, runID string, state domain.RunState) *domain.RunRecord {
	t.Helper()
	var record *domain.RunRecord
	require.Eventually(t, func() bool {
		r, err := m.GetRun(context.Background(), runID)
		if err != nil {
			return false
		}
		record = r
		return r.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return record
}

func TestManager_SubmitRunSucceeds(t *testing.T) {
	f := newManagerFixture(t, doublingRunner(), 4, true)

	runID, err := f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	record := waitForState(t, f.manager, runID, domain.RunStateSucceeded)
	assert.Equal(t, "doubling", record.PipelineName)
	assert.Equal(t, domain.ValueMap{"out": 10}, record.Outputs)
	assert.NotNil(t, record.StartedAt)
	assert.NotNil(t, record.CompletedAt)
}

func TestManager_SubmitRunFails(t *testing.T) {
	f := newManagerFixture(t, doublingRunner("A"), 4, true)

	runID, err := f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.NoError(t, err)

	record := waitForState(t, f.manager, runID, domain.RunStateFailed)
	assert.Equal(t, "A", record.FailedTask)
	assert.Empty(t, record.Outputs)
}

func TestManager_SubmitRunRejectsInvalidSpec(t *testing.T) {
	f := newManagerFixture(t, doublingRunner(), 4, true)
	spec := doublingSpec()
	spec.DeploymentSpec.Executors["exec-b"] = &domain.ExecutorSpec{Importer: &domain.ImporterSpec{}}

	_, err := f.manager.SubmitRun(context.Background(), spec, nil)
	require.Error(t, err)
	assert.True(t, domain.IsUnsupported(err, domain.FeatureImporter))

	runs, err := f.manager.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestManager_PublishesRunEvents(t *testing.T) {
	f := newManagerFixture(t, doublingRunner(), 4, true)

	events := make(chan domain.Event, 8)
	require.NoError(t, f.bus.Subscribe(context.Background(), domain.TopicRunEvents, func(ctx context.Context, e domain.Event) error {
		events <- e
		return nil
	}))

	runID, err := f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.NoError(t, err)
	waitForState(t, f.manager, runID, domain.RunStateSucceeded)

	var types []domain.EventType
	for len(types) < 3 {
		select {
		case e := <-events:
			assert.Equal(t, runID, e.RunID)
			types = append(types, e.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("received only %v", types)
		}
	}
	assert.Equal(t, []domain.EventType{
		domain.EventTypeRunSubmitted,
		domain.EventTypeRunStarted,
		domain.EventTypeRunSucceeded,
	}, types)
}

func TestManager_CancelRun(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{fn: func(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error) {
		close(started)
		<-ctx.Done()
		return &ports.TaskResult{Status: domain.StatusFailure}, nil
	}}
	f := newManagerFixture(t, runner, 4, true)

	runID, err := f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.NoError(t, err)
	<-started

	require.NoError(t, f.manager.CancelRun(context.Background(), runID))
	waitForState(t, f.manager, runID, domain.RunStateCancelled)

	// Finished runs cannot be cancelled again
	require.Eventually(t, func() bool {
		err := f.manager.CancelRun(context.Background(), runID)
		return errors.Is(err, ErrRunTerminal)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_CancelQueuedRun(t *testing.T) {
	runner := doublingRunner()
	// Workers are not started, the run stays queued
	f := newManagerFixture(t, runner, 4, false)

	runID, err := f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.NoError(t, err)

	record, err := f.manager.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatePending, record.State)

	require.NoError(t, f.manager.CancelRun(context.Background(), runID))
	require.NoError(t, f.pool.Start())

	waitForState(t, f.manager, runID, domain.RunStateCancelled)
	assert.Empty(t, runner.dispatched())
}

func TestManager_CancelUnknownRun(t *testing.T) {
	f := newManagerFixture(t, doublingRunner(), 4, true)

	err := f.manager.CancelRun(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestManager_QueueFull(t *testing.T) {
	f := newManagerFixture(t, doublingRunner(), 1, false)

	_, err := f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.NoError(t, err)

	_, err = f.manager.SubmitRun(context.Background(), doublingSpec(), nil)
	require.ErrorIs(t, err, workers.ErrQueueFull)

	runs, err := f.manager.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	states := []domain.RunState{runs[0].State, runs[1].State}
	assert.ElementsMatch(t, []domain.RunState{domain.RunStatePending, domain.RunStateErrored}, states)
}
