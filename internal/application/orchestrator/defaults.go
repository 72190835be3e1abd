package orchestrator

import (
	"fmt"

	"github.com/aescanero/localdag/pkg/domain"
	"github.com/aescanero/localdag/pkg/ports"
)

// JoinUserInputsAndDefaults returns a new argument map holding every user
// argument plus the declared default of each parameter the user left out.
// User values always win. args is not modified.
func JoinUserInputsAndDefaults(
	args map[string]domain.Value,
	inputs *domain.ComponentInputsSpec,
	decoder ports.LiteralDecoder,
) (map[string]domain.Value, error) {
	merged := make(map[string]domain.Value, len(args))
	for name, value := range args {
		merged[name] = copyValue(value)
	}

	if inputs == nil {
		return merged, nil
	}

	for name, param := range inputs.Parameters {
		if _, ok := merged[name]; ok {
			continue
		}
		if param == nil || param.DefaultValue == nil {
			continue
		}
		value, err := decoder.Decode(param.DefaultValue)
		if err != nil {
			return nil, fmt.Errorf("failed to decode default of input %q: %w", name, err)
		}
		merged[name] = value
	}

	return merged, nil
}

// copyValue deep-copies the container types a value may hold.
func copyValue(v domain.Value) domain.Value {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case *domain.Artifact:
		if val == nil {
			return val
		}
		cp := *val
		if val.Metadata != nil {
			cp.Metadata = copyValue(val.Metadata).(map[string]interface{})
		}
		return &cp
	default:
		return v
	}
}
