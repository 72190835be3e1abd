package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "localdag"

// ValueStore implements ports.ValueStore using Redis. Keys are scoped to
// one run and written with SETNX so each key has a single producer.
type ValueStore struct {
	client *redis.Client
	runID  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewValueStore creates a Redis value store for one run
func NewValueStore(client *redis.Client, runID string, ttl time.Duration, logger *zap.Logger) *ValueStore {
	return &ValueStore{
		client: client,
		runID:  runID,
		ttl:    ttl,
		logger: logger,
	}
}

// NewValueStoreFactory returns a factory creating one Redis value store per run.
func NewValueStoreFactory(client *redis.Client, ttl time.Duration, logger *zap.Logger) ports.ValueStoreFactory {
	return func(runID string) ports.ValueStore {
		return NewValueStore(client, runID, ttl, logger)
	}
}

// PutParentInput stores a DAG input
func (s *ValueStore) PutParentInput(ctx context.Context, name string, value domain.Value) error {
	if err := s.putOnce(ctx, parentInputKey(s.runID, name), value); err != nil {
		return fmt.Errorf("parent input %q: %w", name, err)
	}
	return nil
}

// GetParentInput retrieves a DAG input
func (s *ValueStore) GetParentInput(ctx context.Context, name string) (domain.Value, error) {
	v, err := s.get(ctx, parentInputKey(s.runID, name))
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrMissingParentInput, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get parent input %q: %w", name, err)
	}
	return v, nil
}

// PutTaskOutput stores one output of a task
func (s *ValueStore) PutTaskOutput(ctx context.Context, task, key string, value domain.Value) error {
	if err := s.putOnce(ctx, taskOutputKey(s.runID, task, key), value); err != nil {
		return fmt.Errorf("output %q of task %q: %w", key, task, err)
	}
	return nil
}

// GetTaskOutput retrieves one output of a task
func (s *ValueStore) GetTaskOutput(ctx context.Context, task, key string) (domain.Value, error) {
	v, err := s.get(ctx, taskOutputKey(s.runID, task, key))
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: output %q of task %q", domain.ErrMissingUpstreamOutput, key, task)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get output %q of task %q: %w", key, task, err)
	}
	return v, nil
}

func (s *ValueStore) putOnce(ctx context.Context, key string, value domain.Value) error {
	data, err := domain.EncodeValue(value)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save value: %w", err)
	}
	if !ok {
		return domain.ErrValueAlreadySet
	}

	s.logger.Debug("value saved",
		zap.String("run_id", s.runID),
		zap.String("key", key))

	return nil
}

func (s *ValueStore) get(ctx context.Context, key string) (domain.Value, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	return domain.DecodeValue(data)
}

// RunStore implements ports.RunStore using Redis
type RunStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStore creates a new Redis run store
func NewRunStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStore {
	return &RunStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists a run record with TTL
func (s *RunStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("run record requires an ID")
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	if err := s.client.Set(ctx, runKey(run.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("run_id", run.ID),
		zap.String("state", string(run.State)))

	return nil
}

// GetRun retrieves a run record
func (s *RunStore) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run domain.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	return &run, nil
}

// ListRuns lists all stored runs ordered by submission time
func (s *RunStore) ListRuns(ctx context.Context) ([]*domain.RunRecord, error) {
	pattern := fmt.Sprintf("%s:runs:*", keyPrefix)

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	runs := make([]*domain.RunRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var run domain.RunRecord
		if err := json.Unmarshal(data, &run); err != nil {
			s.logger.Warn("skipping unreadable run record",
				zap.String("key", key),
				zap.Error(err))
			continue
		}

		runs = append(runs, &run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].SubmittedAt.Before(runs[j].SubmittedAt)
	})

	return runs, nil
}

// DeleteRun deletes a run record
func (s *RunStore) DeleteRun(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, runKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	s.logger.Debug("run deleted",
		zap.String("run_id", runID))

	return nil
}

func parentInputKey(runID, name string) string {
	return fmt.Sprintf("%s:run:%s:parent:%s", keyPrefix, runID, name)
}

func taskOutputKey(runID, task, key string) string {
	return fmt.Sprintf("%s:run:%s:task:%s:%s", keyPrefix, runID, task, key)
}

func runKey(runID string) string {
	return fmt.Sprintf("%s:runs:%s", keyPrefix, runID)
}
