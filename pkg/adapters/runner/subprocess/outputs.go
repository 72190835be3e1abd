package subprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aescanero/localdag/pkg/domain"
)

// readParameter loads an output parameter written by the task and converts
// it according to its declared type.
func readParameter(path string, paramType domain.ParameterType) (domain.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseParameter(string(data), paramType)
}

func parseParameter(raw string, paramType domain.ParameterType) (domain.Value, error) {
	trimmed := strings.TrimSpace(raw)

	switch paramType {
	case domain.ParameterTypeString, "":
		return raw, nil
	case domain.ParameterTypeInteger:
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", trimmed, err)
		}
		return n, nil
	case domain.ParameterTypeDouble:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", trimmed, err)
		}
		return f, nil
	case domain.ParameterTypeBoolean:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean %q: %w", trimmed, err)
		}
		return b, nil
	case domain.ParameterTypeList:
		var list []interface{}
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, fmt.Errorf("invalid list: %w", err)
		}
		return list, nil
	case domain.ParameterTypeStruct:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return nil, fmt.Errorf("invalid struct: %w", err)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", paramType)
	}
}
