package domain

import (
	"errors"
	"fmt"
)

// Specification errors. They are fatal for a run and never reported as a
// task failure.
var (
	ErrUnsupportedFeature      = errors.New("unsupported feature")
	ErrMissingInputSource      = errors.New("missing input source")
	ErrAmbiguousInputSource    = errors.New("ambiguous input source")
	ErrInvalidArtifactSource   = errors.New("invalid artifact input source")
	ErrNonConstantRuntimeValue = errors.New("runtime value is not a constant")
	ErrInvalidExecutorSpec     = errors.New("invalid executor spec")
	ErrInvalidComponentSpec    = errors.New("invalid component spec")
	ErrInvalidRunnerStatus     = errors.New("invalid runner status")
	ErrInvalidOutputSpec       = errors.New("invalid output spec")
	ErrUnknownComponent        = errors.New("unknown component")
	ErrUnknownExecutor         = errors.New("unknown executor")
	ErrUnknownTask             = errors.New("unknown task")
	ErrCyclicDependency        = errors.New("cyclic dependency")
	ErrInvalidPipelineSpec     = errors.New("invalid pipeline spec")
	ErrInvalidArgument         = errors.New("invalid pipeline argument")
)

// Value store errors.
var (
	ErrMissingUpstreamOutput = errors.New("missing upstream output")
	ErrMissingParentInput    = errors.New("missing parent input")
	ErrValueAlreadySet       = errors.New("value already set")
)

// ErrRunNotFound is returned by run stores for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// Unsupported feature names carried by SpecError.Subject.
const (
	FeatureNestedDAG       = "nested_dag"
	FeatureImporter        = "importer"
	FeatureOneOf           = "one_of"
	FeatureTaskFinalStatus = "task_final_status"
	FeatureCondition       = "condition"
	FeatureLoop            = "loop"
)

// SpecError reports a malformed or unsupported pipeline definition.
type SpecError struct {
	// Err is one of the sentinel errors above.
	Err error
	// Subject names what the error is about: a feature, a task, an input.
	Subject string
	Detail  string
}

func (e *SpecError) Error() string {
	msg := e.Err.Error()
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *SpecError) Unwrap() error {
	return e.Err
}

// NewSpecError builds a SpecError with a formatted detail message.
func NewSpecError(err error, subject, format string, args ...interface{}) *SpecError {
	return &SpecError{
		Err:     err,
		Subject: subject,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// Unsupported returns the SpecError for a feature local execution rejects.
func Unsupported(feature, format string, args ...interface{}) *SpecError {
	return NewSpecError(ErrUnsupportedFeature, feature, format, args...)
}

// IsSpecError reports whether err carries a SpecError anywhere in its chain.
func IsSpecError(err error) bool {
	var se *SpecError
	return errors.As(err, &se)
}

// IsUnsupported reports whether err rejects the named feature.
func IsUnsupported(err error, feature string) bool {
	var se *SpecError
	if !errors.As(err, &se) {
		return false
	}
	return errors.Is(se.Err, ErrUnsupportedFeature) && se.Subject == feature
}

// SpecErrorKind returns a short label for a SpecError: the feature name for
// unsupported features, the sentinel's message otherwise.
func SpecErrorKind(err error) string {
	var se *SpecError
	if !errors.As(err, &se) {
		return "unknown"
	}
	if errors.Is(se.Err, ErrUnsupportedFeature) {
		return se.Subject
	}
	root := se.Err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return root.Error()
}
