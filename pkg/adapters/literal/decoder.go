// Package literal converts specification literals (google.protobuf.Value)
// into native Go values.
package literal

import (
	"fmt"

	"github.com/aescanero/localdag/pkg/domain"
	"google.golang.org/protobuf/types/known/structpb"
)

// Decoder implements ports.LiteralDecoder on top of structpb.
type Decoder struct{}

// NewDecoder creates a literal decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode returns the native value of lit. Numbers decode to float64,
// lists to []interface{} and structs to map[string]interface{}.
// A nil literal decodes to nil.
func (d *Decoder) Decode(lit *domain.Literal) (domain.Value, error) {
	if lit == nil {
		return nil, nil
	}
	pv := lit.Proto()
	switch pv.GetKind().(type) {
	case *structpb.Value_NullValue, *structpb.Value_NumberValue, *structpb.Value_StringValue,
		*structpb.Value_BoolValue, *structpb.Value_StructValue, *structpb.Value_ListValue:
		return pv.AsInterface(), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported literal kind %T", pv.GetKind())
	}
}
