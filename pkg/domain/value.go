package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a runtime argument or output: a native parameter value
// (string, float64, int, bool, nil, []interface{}, map[string]interface{})
// or an *Artifact handle.
type Value = interface{}

// Artifact is a handle to data stored outside the run. Only the reference
// travels between tasks.
type Artifact struct {
	Name        string                 `json:"name"`
	URI         string                 `json:"uri"`
	SchemaTitle string                 `json:"schemaTitle,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Path returns the local filesystem path of the artifact.
func (a *Artifact) Path() string {
	return strings.TrimPrefix(a.URI, "file://")
}

// IsArtifact reports whether v is an artifact handle.
func IsArtifact(v Value) bool {
	_, ok := v.(*Artifact)
	return ok
}

// valueEnvelope keeps artifacts distinguishable from map parameters once
// serialised. Kind records an integer parameter so that it decodes back to
// int rather than float64.
type valueEnvelope struct {
	Parameter interface{} `json:"parameter,omitempty"`
	Artifact  *Artifact   `json:"artifact,omitempty"`
	Kind      string      `json:"kind,omitempty"`
}

const kindInt = "int"

func newEnvelope(v Value) valueEnvelope {
	switch val := v.(type) {
	case *Artifact:
		return valueEnvelope{Artifact: val}
	case int, int32, int64:
		return valueEnvelope{Parameter: val, Kind: kindInt}
	default:
		return valueEnvelope{Parameter: v}
	}
}

// value returns the enveloped value. The envelope must have been decoded
// with json.Decoder.UseNumber.
func (env valueEnvelope) value() (Value, error) {
	if env.Artifact != nil {
		return env.Artifact, nil
	}
	if n, ok := env.Parameter.(json.Number); ok && env.Kind == kindInt {
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("invalid integer parameter %q: %w", n, err)
		}
		return int(i), nil
	}
	return fromNumbers(env.Parameter)
}

// fromNumbers turns every json.Number in v into a float64.
func fromNumbers(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case json.Number:
		return val.Float64()
	case map[string]interface{}:
		for k, item := range val {
			converted, err := fromNumbers(item)
			if err != nil {
				return nil, err
			}
			val[k] = converted
		}
		return val, nil
	case []interface{}:
		for i, item := range val {
			converted, err := fromNumbers(item)
			if err != nil {
				return nil, err
			}
			val[i] = converted
		}
		return val, nil
	default:
		return v, nil
	}
}

func decodeJSON(data []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// EncodeValue serialises a value for an external store.
func EncodeValue(v Value) ([]byte, error) {
	data, err := json.Marshal(newEnvelope(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return data, nil
}

// DecodeValue reverses EncodeValue. Integer parameters come back as int,
// every other number as float64.
func DecodeValue(data []byte) (Value, error) {
	var env valueEnvelope
	if err := decodeJSON(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	v, err := env.value()
	if err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}

// ValueMap is a set of named values that keeps artifacts typed through JSON.
type ValueMap map[string]Value

// MarshalJSON implements json.Marshaler.
func (m ValueMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	out := make(map[string]valueEnvelope, len(m))
	for k, v := range m {
		out[k] = newEnvelope(v)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *ValueMap) UnmarshalJSON(data []byte) error {
	var raw map[string]valueEnvelope
	if err := decodeJSON(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*m = nil
		return nil
	}
	out := make(ValueMap, len(raw))
	for k, env := range raw {
		v, err := env.value()
		if err != nil {
			return fmt.Errorf("value %q: %w", k, err)
		}
		out[k] = v
	}
	*m = out
	return nil
}
