package domain

// DAGOutputsSpec declares how each DAG-level output is sourced.
type DAGOutputsSpec struct {
	Parameters map[string]*DAGOutputParameterSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Artifacts  map[string]*DAGOutputArtifactSpec  `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// DAGOutputParameterSpec sources a DAG output parameter.
type DAGOutputParameterSpec struct {
	ValueFromParameter *ParameterFromTask      `json:"valueFromParameter,omitempty" yaml:"valueFromParameter,omitempty"`
	ValueFromOneof     *ParameterSelectorsSpec `json:"valueFromOneof,omitempty" yaml:"valueFromOneof,omitempty"`
}

// ParameterFromTask selects an output parameter of a subtask.
type ParameterFromTask struct {
	ProducerSubtask    string `json:"producerSubtask" yaml:"producerSubtask"`
	OutputParameterKey string `json:"outputParameterKey" yaml:"outputParameterKey"`
}

// ParameterSelectorsSpec lists candidate producers of a one-of output.
type ParameterSelectorsSpec struct {
	ParameterSelectors []ParameterFromTask `json:"parameterSelectors,omitempty" yaml:"parameterSelectors,omitempty"`
}

// DAGOutputArtifactSpec sources a DAG output artifact.
type DAGOutputArtifactSpec struct {
	ArtifactSelectors []ArtifactSelector `json:"artifactSelectors,omitempty" yaml:"artifactSelectors,omitempty"`
}

// ArtifactSelector selects an output artifact of a subtask.
type ArtifactSelector struct {
	ProducerSubtask   string `json:"producerSubtask" yaml:"producerSubtask"`
	OutputArtifactKey string `json:"outputArtifactKey" yaml:"outputArtifactKey"`
}

// OutputSelector is the sealed union of parameter output selectors.
type OutputSelector interface {
	outputSelector()
}

// FromTaskSelector reads a single producer's output.
type FromTaskSelector struct {
	ProducerTask string
	OutputKey    string
}

// OneOfSelector picks whichever candidate ran.
type OneOfSelector struct {
	Candidates []ParameterFromTask
}

func (FromTaskSelector) outputSelector() {}
func (OneOfSelector) outputSelector()    {}

// Selector returns the selector kind set on this output, or nil when the
// descriptor sets none or both.
func (p *DAGOutputParameterSpec) Selector() OutputSelector {
	switch {
	case p == nil:
		return nil
	case p.ValueFromParameter != nil && p.ValueFromOneof != nil:
		return nil
	case p.ValueFromParameter != nil:
		return FromTaskSelector{
			ProducerTask: p.ValueFromParameter.ProducerSubtask,
			OutputKey:    p.ValueFromParameter.OutputParameterKey,
		}
	case p.ValueFromOneof != nil:
		return OneOfSelector{Candidates: p.ValueFromOneof.ParameterSelectors}
	default:
		return nil
	}
}
