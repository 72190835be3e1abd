package runner

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aescanero/localdag/pkg/adapters/runner/subprocess"
	"github.com/aescanero/localdag/pkg/ports"
)

// Runner kinds.
const (
	KindSubprocess = "subprocess"
)

// Config holds task runner configuration
type Config struct {
	Kind   string
	Logger *zap.Logger
}

// New creates a task runner based on kind
func New(cfg *Config) (ports.TaskRunner, error) {
	switch cfg.Kind {
	case KindSubprocess, "":
		return subprocess.NewRunner(cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported task runner: %s", cfg.Kind)
	}
}
