package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aescanero/localdag/internal/application/orchestrator"
	storagememory "github.com/aescanero/localdag/pkg/adapters/storage/memory"
	"github.com/aescanero/localdag/pkg/domain"
)

// runOutput is printed by the run command
type runOutput struct {
	RunID    string         `json:"run_id"`
	Pipeline string         `json:"pipeline"`
	Result   *domain.Result `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func newRunCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline.yaml> [name=value ...]",
		Short: "Run a pipeline once and print its result",
		Long: `Run executes a pipeline file in-process and prints the result as JSON.

Arguments are name=value pairs. Values are read as JSON and fall back to
plain strings. An artifact input takes a path, a URI or a JSON object
such as {"uri": "file:///data.csv"}.

The exit status is 0 on SUCCESS and 1 when a task fails or the pipeline
is rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runPipeline(cmd, args)
		},
	}
}

// runPipeline executes a pipeline file in-process
func (c *cli) runPipeline(cmd *cobra.Command, args []string) error {
	spec, err := loadSpecFile(args[0])
	if err != nil {
		return err
	}

	params, err := parseArguments(args[1:])
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	orch, err := newOrchestrator(c.cfg, nil, nil, c.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	output := runOutput{
		RunID:    uuid.NewString(),
		Pipeline: spec.PipelineInfo.Name,
	}
	result, err := orch.Run(ctx, spec, params, orchestrator.RunConfig{
		RunID:        output.RunID,
		PipelineRoot: c.cfg.Execution.PipelineRoot,
	}, storagememory.NewValueStore())

	var status error
	switch {
	case err != nil:
		c.logger.Error("run errored", zap.String("run_id", output.RunID), zap.Error(err))
		output.Error = err.Error()
		status = &exitError{code: 1}
	case !result.Succeeded():
		output.Result = result
		status = &exitError{code: 1}
	default:
		output.Result = result
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return status
}

func loadSpecFile(path string) (*domain.PipelineSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline spec: %w", err)
	}
	defer f.Close()
	return domain.LoadPipelineSpec(f)
}

// parseArguments turns name=value pairs into run arguments. Values are read
// as JSON and fall back to plain strings.
func parseArguments(pairs []string) (map[string]domain.Value, error) {
	args := make(map[string]domain.Value, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q: expected name=value", pair)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		args[name] = v
	}
	return args, nil
}
