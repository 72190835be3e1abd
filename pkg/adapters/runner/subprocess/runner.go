// Package subprocess runs container executors as local processes.
//
// The container image is ignored: command and args run on the host with
// placeholders resolved against the task's arguments and output locations.
// Outputs are written under <pipeline_root>/<pipeline>-<run_id>/<task>/.
package subprocess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

var (
	// ErrMissingInputArtifact is returned when BlockInputArtifact is set and
	// an input artifact has no local file.
	ErrMissingInputArtifact = errors.New("input artifact not found locally")
	// ErrTaskFailed is returned instead of a FAILURE status when
	// RaiseOnError is set.
	ErrTaskFailed = errors.New("task failed")
)

// maxLoggedOutput caps how much process output is attached to a log entry.
const maxLoggedOutput = 4096

// Runner implements ports.TaskRunner with os/exec.
type Runner struct {
	logger *zap.Logger
}

// NewRunner creates a subprocess runner
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run implements ports.TaskRunner.
func (r *Runner) Run(ctx context.Context, req *ports.TaskRequest) (*ports.TaskResult, error) {
	container := req.Executor.Container
	if container == nil {
		return nil, domain.NewSpecError(domain.ErrInvalidExecutorSpec, req.TaskName,
			"subprocess runner needs a container executor")
	}
	argv := append(append([]string{}, container.Command...), container.Args...)
	if len(argv) == 0 {
		return nil, domain.NewSpecError(domain.ErrInvalidExecutorSpec, req.TaskName,
			"container declares neither command nor args")
	}

	logger := r.logger.With(
		zap.String("run_id", req.RunID),
		zap.String("task", req.TaskName))

	if req.BlockInputArtifact {
		if err := checkInputArtifacts(req.Arguments); err != nil {
			return nil, fmt.Errorf("task %q: %w", req.TaskName, err)
		}
	}

	pipelineRoot, err := filepath.Abs(req.PipelineRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pipeline root: %w", err)
	}
	jobName := fmt.Sprintf("%s-%s", req.PipelineName, req.RunID)
	taskDir := filepath.Join(pipelineRoot, jobName, req.TaskName)

	tc := &taskContext{
		pipelineName:    req.PipelineName,
		pipelineRoot:    pipelineRoot,
		jobName:         jobName,
		runID:           req.RunID,
		taskName:        req.TaskName,
		arguments:       req.Arguments,
		outputFiles:     make(map[string]string),
		outputArtifacts: make(map[string]*domain.Artifact),
	}
	if err := prepareOutputs(req.Component, taskDir, tc); err != nil {
		return nil, err
	}

	resolved := make([]string, len(argv))
	for i, arg := range argv {
		resolved[i], err = resolvePlaceholders(arg, tc)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", req.TaskName, err)
		}
	}

	cmd := exec.CommandContext(ctx, resolved[0], resolved[1:]...)
	cmd.Dir = taskDir
	cmd.Env = os.Environ()
	for _, env := range container.Env {
		value, err := resolvePlaceholders(env.Value, tc)
		if err != nil {
			return nil, fmt.Errorf("task %q: env %s: %w", req.TaskName, env.Name, err)
		}
		cmd.Env = append(cmd.Env, env.Name+"="+value)
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logger.Debug("starting process", zap.Strings("argv", resolved), zap.String("dir", taskDir))
	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) && ctx.Err() == nil {
			// The process never started
			return nil, fmt.Errorf("task %q: failed to start %q: %w", req.TaskName, resolved[0], runErr)
		}
		logger.Warn("process failed",
			zap.Error(runErr),
			zap.Duration("duration", duration),
			zap.String("output", tail(output.String())))
		return r.failure(req, runErr)
	}

	logger.Debug("process finished",
		zap.Duration("duration", duration),
		zap.String("output", tail(output.String())))

	outputs, err := collectOutputs(req.Component, tc)
	if err != nil {
		logger.Warn("task produced invalid outputs", zap.Error(err))
		return r.failure(req, err)
	}

	return &ports.TaskResult{Status: domain.StatusSuccess, Outputs: outputs}, nil
}

func (r *Runner) failure(req *ports.TaskRequest, cause error) (*ports.TaskResult, error) {
	if req.RaiseOnError {
		return nil, fmt.Errorf("%w: %s: %v", ErrTaskFailed, req.TaskName, cause)
	}
	return &ports.TaskResult{Status: domain.StatusFailure}, nil
}

// prepareOutputs creates the task directory and assigns a location to every
// declared output.
func prepareOutputs(component *domain.ComponentSpec, taskDir string, tc *taskContext) error {
	if err := os.MkdirAll(taskDir, 0o755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	if component == nil || component.OutputDefinitions == nil {
		return nil
	}

	defs := component.OutputDefinitions
	if len(defs.Parameters) > 0 {
		paramDir := filepath.Join(taskDir, "parameters")
		if err := os.MkdirAll(paramDir, 0o755); err != nil {
			return fmt.Errorf("failed to create parameter directory: %w", err)
		}
		for name := range defs.Parameters {
			tc.outputFiles[name] = filepath.Join(paramDir, name)
		}
	}
	for name, spec := range defs.Artifacts {
		artifact := &domain.Artifact{
			Name:     name,
			URI:      filepath.Join(taskDir, name),
			Metadata: map[string]interface{}{},
		}
		if spec != nil {
			artifact.SchemaTitle = spec.ArtifactType.SchemaTitle
		}
		tc.outputArtifacts[name] = artifact
	}
	return nil
}

// collectOutputs reads back every declared output after a successful exit.
func collectOutputs(component *domain.ComponentSpec, tc *taskContext) (map[string]domain.Value, error) {
	outputs := make(map[string]domain.Value)
	if component == nil || component.OutputDefinitions == nil {
		return outputs, nil
	}

	params := component.OutputDefinitions.Parameters
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := params[name]
		var paramType domain.ParameterType
		if spec != nil {
			paramType = spec.ParameterType
		}
		value, err := readParameter(tc.outputFiles[name], paramType)
		if errors.Is(err, os.ErrNotExist) && spec != nil && spec.IsOptional {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("output parameter %q: %w", name, err)
		}
		outputs[name] = value
	}

	for name, artifact := range tc.outputArtifacts {
		outputs[name] = artifact
	}
	return outputs, nil
}

func checkInputArtifacts(args map[string]domain.Value) error {
	for name, value := range args {
		artifact, ok := value.(*domain.Artifact)
		if !ok {
			continue
		}
		if _, err := os.Stat(artifact.Path()); err != nil {
			return fmt.Errorf("%w: %s (%s)", ErrMissingInputArtifact, name, artifact.URI)
		}
	}
	return nil
}

func tail(s string) string {
	if len(s) <= maxLoggedOutput {
		return s
	}
	return s[len(s)-maxLoggedOutput:]
}
