package domain

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// Literal is a constant as written in a pipeline specification: a
// google.protobuf.Value. Converting it to a native value is the job of a
// ports.LiteralDecoder.
type Literal struct {
	value *structpb.Value
}

// NewLiteral wraps a native Go value.
func NewLiteral(v interface{}) (*Literal, error) {
	pv, err := structpb.NewValue(normalizeYAML(v))
	if err != nil {
		return nil, fmt.Errorf("failed to build literal: %w", err)
	}
	return &Literal{value: pv}, nil
}

// MustLiteral is NewLiteral for values known to be representable.
func MustLiteral(v interface{}) *Literal {
	lit, err := NewLiteral(v)
	if err != nil {
		panic(err)
	}
	return lit
}

// LiteralFromProto wraps an existing protobuf value.
func LiteralFromProto(v *structpb.Value) *Literal {
	return &Literal{value: v}
}

// Proto returns the underlying protobuf value. A nil literal yields a null value.
func (l *Literal) Proto() *structpb.Value {
	if l == nil || l.value == nil {
		return structpb.NewNullValue()
	}
	return l.value
}

// MarshalJSON implements json.Marshaler.
func (l *Literal) MarshalJSON() ([]byte, error) {
	return protojson.Marshal(l.Proto())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Literal) UnmarshalJSON(data []byte) error {
	pv := &structpb.Value{}
	if err := protojson.Unmarshal(data, pv); err != nil {
		return fmt.Errorf("failed to decode literal: %w", err)
	}
	l.value = pv
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l *Literal) MarshalYAML() (interface{}, error) {
	return l.Proto().AsInterface(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Literal) UnmarshalYAML(node *yaml.Node) error {
	var raw interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	pv, err := structpb.NewValue(normalizeYAML(raw))
	if err != nil {
		return fmt.Errorf("line %d: failed to decode literal: %w", node.Line, err)
	}
	l.value = pv
	return nil
}

// normalizeYAML rewrites the generic containers produced by the YAML decoder
// into the shapes structpb accepts.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalizeYAML(val)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = normalizeYAML(val)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, val := range t {
			s[i] = normalizeYAML(val)
		}
		return s
	default:
		return v
	}
}
