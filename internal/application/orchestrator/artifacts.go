package orchestrator

import (
	"path/filepath"
	"strings"

	"github.com/aescanero/localdag/pkg/domain"
)

// BindArtifactInputs returns a copy of args in which every argument for a
// declared artifact input is an *domain.Artifact. Callers that only speak
// JSON may pass an artifact as a URI or local path string, as an object
// with "uri" (plus optional "name", "schemaTitle", "metadata"), or as the
// {"artifact": {...}} envelope. Local paths become absolute file:// URIs.
func BindArtifactInputs(args map[string]domain.Value, inputs *domain.ComponentInputsSpec) (map[string]domain.Value, error) {
	bound := make(map[string]domain.Value, len(args))
	for name, value := range args {
		bound[name] = value
	}
	if inputs == nil {
		return bound, nil
	}

	for _, name := range sortedKeys(inputs.Artifacts) {
		value, ok := bound[name]
		if !ok {
			continue
		}
		var schemaTitle string
		if spec := inputs.Artifacts[name]; spec != nil {
			schemaTitle = spec.ArtifactType.SchemaTitle
		}
		artifact, err := toArtifact(name, value, schemaTitle)
		if err != nil {
			return nil, err
		}
		bound[name] = artifact
	}
	return bound, nil
}

func toArtifact(name string, value domain.Value, schemaTitle string) (*domain.Artifact, error) {
	switch v := value.(type) {
	case *domain.Artifact:
		if v == nil {
			return nil, invalidArtifactArgument(name, "artifact is nil")
		}
		return v, nil
	case string:
		uri, err := artifactURI(name, v)
		if err != nil {
			return nil, err
		}
		return &domain.Artifact{Name: name, URI: uri, SchemaTitle: schemaTitle}, nil
	case map[string]interface{}:
		if inner, ok := v["artifact"].(map[string]interface{}); ok && len(v) == 1 {
			v = inner
		}
		rawURI, _ := v["uri"].(string)
		uri, err := artifactURI(name, rawURI)
		if err != nil {
			return nil, err
		}
		artifact := &domain.Artifact{Name: name, URI: uri, SchemaTitle: schemaTitle}
		if n, ok := v["name"].(string); ok && n != "" {
			artifact.Name = n
		}
		if title, ok := v["schemaTitle"].(string); ok && title != "" {
			artifact.SchemaTitle = title
		}
		if md, ok := v["metadata"].(map[string]interface{}); ok {
			artifact.Metadata = md
		}
		return artifact, nil
	default:
		return nil, invalidArtifactArgument(name, "expected an artifact, URI or path, got %T", value)
	}
}

func artifactURI(name, raw string) (string, error) {
	if raw == "" {
		return "", invalidArtifactArgument(name, "artifact uri is required")
	}
	if strings.Contains(raw, "://") {
		return raw, nil
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", invalidArtifactArgument(name, "invalid path %q: %v", raw, err)
	}
	return "file://" + abs, nil
}

func invalidArtifactArgument(name, format string, args ...interface{}) error {
	return domain.NewSpecError(domain.ErrInvalidArgument, name, format, args...)
}
