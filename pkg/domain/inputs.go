package domain

// TaskInputsSpec describes where each of a task's inputs comes from.
type TaskInputsSpec struct {
	Parameters map[string]*ParameterInputSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Artifacts  map[string]*ArtifactInputSpec  `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// ParameterInputSpec is the IR's parameter input descriptor. Exactly one of
// its source fields must be set.
type ParameterInputSpec struct {
	RuntimeValue            *RuntimeValue            `json:"runtimeValue,omitempty" yaml:"runtimeValue,omitempty"`
	TaskOutputParameter     *TaskOutputParameterSpec `json:"taskOutputParameter,omitempty" yaml:"taskOutputParameter,omitempty"`
	ComponentInputParameter string                   `json:"componentInputParameter,omitempty" yaml:"componentInputParameter,omitempty"`
	TaskFinalStatus         *TaskFinalStatusSpec     `json:"taskFinalStatus,omitempty" yaml:"taskFinalStatus,omitempty"`
}

// ArtifactInputSpec is the IR's artifact input descriptor. Only
// TaskOutputArtifact and ComponentInputArtifact are valid artifact sources;
// the remaining fields exist so that a misplaced tag is detected.
type ArtifactInputSpec struct {
	TaskOutputArtifact     *TaskOutputArtifactSpec `json:"taskOutputArtifact,omitempty" yaml:"taskOutputArtifact,omitempty"`
	ComponentInputArtifact string                  `json:"componentInputArtifact,omitempty" yaml:"componentInputArtifact,omitempty"`
	RuntimeValue           *RuntimeValue           `json:"runtimeValue,omitempty" yaml:"runtimeValue,omitempty"`
	TaskFinalStatus        *TaskFinalStatusSpec    `json:"taskFinalStatus,omitempty" yaml:"taskFinalStatus,omitempty"`
}

// RuntimeValue holds a constant.
type RuntimeValue struct {
	Constant *Literal `json:"constant,omitempty" yaml:"constant,omitempty"`
}

// TaskOutputParameterSpec references an upstream task's output parameter.
type TaskOutputParameterSpec struct {
	ProducerTask       string `json:"producerTask" yaml:"producerTask"`
	OutputParameterKey string `json:"outputParameterKey" yaml:"outputParameterKey"`
}

// TaskOutputArtifactSpec references an upstream task's output artifact.
type TaskOutputArtifactSpec struct {
	ProducerTask      string `json:"producerTask" yaml:"producerTask"`
	OutputArtifactKey string `json:"outputArtifactKey" yaml:"outputArtifactKey"`
}

// TaskFinalStatusSpec references the final status of an upstream task.
type TaskFinalStatusSpec struct {
	ProducerTask string `json:"producerTask" yaml:"producerTask"`
}

// InputSource is the sealed union of input sources.
type InputSource interface {
	inputSource()
}

// ConstantSource is a literal written in the specification. Value is nil
// when the runtime value carries no constant.
type ConstantSource struct {
	Value *Literal
}

// TaskOutputSource is an output of an upstream task.
type TaskOutputSource struct {
	ProducerTask string
	OutputKey    string
}

// ParentInputSource is an input of the enclosing DAG.
type ParentInputSource struct {
	InputName string
}

// FinalStatusSource is the final status of an upstream task.
type FinalStatusSource struct {
	ProducerTask string
}

func (ConstantSource) inputSource()    {}
func (TaskOutputSource) inputSource()  {}
func (ParentInputSource) inputSource() {}
func (FinalStatusSource) inputSource() {}

// Source returns the single source this descriptor names.
// It fails with ErrMissingInputSource when none is set and with
// ErrAmbiguousInputSource when more than one is.
func (p *ParameterInputSpec) Source() (InputSource, error) {
	var found []InputSource
	if p.RuntimeValue != nil {
		found = append(found, ConstantSource{Value: p.RuntimeValue.Constant})
	}
	if p.TaskOutputParameter != nil {
		found = append(found, TaskOutputSource{
			ProducerTask: p.TaskOutputParameter.ProducerTask,
			OutputKey:    p.TaskOutputParameter.OutputParameterKey,
		})
	}
	if p.ComponentInputParameter != "" {
		found = append(found, ParentInputSource{InputName: p.ComponentInputParameter})
	}
	if p.TaskFinalStatus != nil {
		found = append(found, FinalStatusSource{ProducerTask: p.TaskFinalStatus.ProducerTask})
	}
	return single(found)
}

// Source returns the single source this descriptor names.
func (a *ArtifactInputSpec) Source() (InputSource, error) {
	var found []InputSource
	if a.TaskOutputArtifact != nil {
		found = append(found, TaskOutputSource{
			ProducerTask: a.TaskOutputArtifact.ProducerTask,
			OutputKey:    a.TaskOutputArtifact.OutputArtifactKey,
		})
	}
	if a.ComponentInputArtifact != "" {
		found = append(found, ParentInputSource{InputName: a.ComponentInputArtifact})
	}
	if a.RuntimeValue != nil {
		found = append(found, ConstantSource{Value: a.RuntimeValue.Constant})
	}
	if a.TaskFinalStatus != nil {
		found = append(found, FinalStatusSource{ProducerTask: a.TaskFinalStatus.ProducerTask})
	}
	return single(found)
}

func single(found []InputSource) (InputSource, error) {
	switch len(found) {
	case 0:
		return nil, ErrMissingInputSource
	case 1:
		return found[0], nil
	default:
		return nil, ErrAmbiguousInputSource
	}
}

// Producers returns the upstream tasks whose outputs this task consumes.
func (t *TaskInputsSpec) Producers() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, p := range t.Parameters {
		if p != nil && p.TaskOutputParameter != nil {
			add(p.TaskOutputParameter.ProducerTask)
		}
		if p != nil && p.TaskFinalStatus != nil {
			add(p.TaskFinalStatus.ProducerTask)
		}
	}
	for _, a := range t.Artifacts {
		if a != nil && a.TaskOutputArtifact != nil {
			add(a.TaskOutputArtifact.ProducerTask)
		}
	}
	return out
}
