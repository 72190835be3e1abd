package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aescanero/localdag/pkg/adapters/runner/subprocess"
)

func TestNew(t *testing.T) {
	r, err := New(&Config{Kind: KindSubprocess, Logger: zap.NewNop()})
	require.NoError(t, err)
	assert.IsType(t, &subprocess.Runner{}, r)

	_, err = New(&Config{Kind: "docker", Logger: zap.NewNop()})
	assert.ErrorContains(t, err, "unsupported task runner: docker")
}
