package subprocess

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aescanero/localdag/pkg/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{\$\.([^}]*)\}\}`)

var (
	inputParamPattern     = regexp.MustCompile(`^inputs\.parameters\['([^']+)'\]$`)
	inputArtifactPattern  = regexp.MustCompile(`^inputs\.artifacts\['([^']+)'\]\.(uri|path)$`)
	outputParamPattern    = regexp.MustCompile(`^outputs\.parameters\['([^']+)'\]\.output_file$`)
	outputArtifactPattern = regexp.MustCompile(`^outputs\.artifacts\['([^']+)'\]\.(uri|path)$`)
)

// taskContext is what placeholders resolve against.
type taskContext struct {
	pipelineName    string
	pipelineRoot    string
	jobName         string
	runID           string
	taskName        string
	arguments       map[string]domain.Value
	outputFiles     map[string]string
	outputArtifacts map[string]*domain.Artifact
}

// resolvePlaceholders replaces every {{$.…}} expression in s.
func resolvePlaceholders(s string, tc *taskContext) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := placeholderPattern.FindStringSubmatch(match)[1]
		value, err := tc.resolve(expr)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (tc *taskContext) resolve(expr string) (string, error) {
	switch expr {
	case "pipeline_job_uuid":
		return tc.runID, nil
	case "pipeline_job_name":
		return tc.jobName, nil
	case "pipeline_root":
		return tc.pipelineRoot, nil
	case "pipeline_task_name":
		return tc.taskName, nil
	}

	if m := inputParamPattern.FindStringSubmatch(expr); m != nil {
		value, ok := tc.arguments[m[1]]
		if !ok {
			return "", placeholderError(expr, "no argument for input parameter %q", m[1])
		}
		if domain.IsArtifact(value) {
			return "", placeholderError(expr, "input %q is an artifact", m[1])
		}
		return formatParameter(value)
	}

	if m := inputArtifactPattern.FindStringSubmatch(expr); m != nil {
		artifact, ok := tc.arguments[m[1]].(*domain.Artifact)
		if !ok {
			return "", placeholderError(expr, "no artifact for input %q", m[1])
		}
		return artifactField(artifact, m[2]), nil
	}

	if m := outputParamPattern.FindStringSubmatch(expr); m != nil {
		path, ok := tc.outputFiles[m[1]]
		if !ok {
			return "", placeholderError(expr, "component declares no output parameter %q", m[1])
		}
		return path, nil
	}

	if m := outputArtifactPattern.FindStringSubmatch(expr); m != nil {
		artifact, ok := tc.outputArtifacts[m[1]]
		if !ok {
			return "", placeholderError(expr, "component declares no output artifact %q", m[1])
		}
		return artifactField(artifact, m[2]), nil
	}

	return "", placeholderError(expr, "unknown placeholder")
}

func artifactField(a *domain.Artifact, field string) string {
	if field == "path" {
		return a.Path()
	}
	return a.URI
}

// formatParameter renders a parameter the way a command line expects it:
// strings verbatim, everything else as JSON.
func formatParameter(v domain.Value) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case nil:
		return "", nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to render parameter: %w", err)
		}
		return string(data), nil
	}
}

func placeholderError(expr, format string, args ...interface{}) error {
	return domain.NewSpecError(domain.ErrInvalidExecutorSpec, "{{$."+expr+"}}", format, args...)
}
