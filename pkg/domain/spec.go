package domain

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// PipelineSpec is a compiled pipeline: a root DAG component plus the
// components and executors it references.
type PipelineSpec struct {
	PipelineInfo   PipelineInfo              `json:"pipelineInfo" yaml:"pipelineInfo"`
	Root           *ComponentSpec            `json:"root" yaml:"root"`
	Components     map[string]*ComponentSpec `json:"components,omitempty" yaml:"components,omitempty"`
	DeploymentSpec DeploymentSpec            `json:"deploymentSpec" yaml:"deploymentSpec"`
	SchemaVersion  string                    `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
	SDKVersion     string                    `json:"sdkVersion,omitempty" yaml:"sdkVersion,omitempty"`
}

// PipelineInfo carries the pipeline's name.
type PipelineInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DeploymentSpec maps executor labels to executors.
type DeploymentSpec struct {
	Executors map[string]*ExecutorSpec `json:"executors,omitempty" yaml:"executors,omitempty"`
}

// ComponentSpec is either a leaf (ExecutorLabel set) or a DAG.
type ComponentSpec struct {
	InputDefinitions  *ComponentInputsSpec  `json:"inputDefinitions,omitempty" yaml:"inputDefinitions,omitempty"`
	OutputDefinitions *ComponentOutputsSpec `json:"outputDefinitions,omitempty" yaml:"outputDefinitions,omitempty"`
	ExecutorLabel     string                `json:"executorLabel,omitempty" yaml:"executorLabel,omitempty"`
	DAG               *DAGSpec              `json:"dag,omitempty" yaml:"dag,omitempty"`
}

// Implementation is the sealed union of component implementations.
type Implementation interface {
	implementation()
}

// LeafImplementation is a component backed by an executor.
type LeafImplementation struct {
	ExecutorLabel string
}

// DAGImplementation is a component that is itself a pipeline.
type DAGImplementation struct {
	DAG *DAGSpec
}

func (LeafImplementation) implementation() {}
func (DAGImplementation) implementation()  {}

// Implementation returns the component's implementation. Exactly one of
// executorLabel and dag must be set.
func (c *ComponentSpec) Implementation() (Implementation, error) {
	switch {
	case c.DAG != nil && c.ExecutorLabel != "":
		return nil, fmt.Errorf("%w: both executorLabel and dag are set", ErrInvalidComponentSpec)
	case c.DAG != nil:
		return DAGImplementation{DAG: c.DAG}, nil
	case c.ExecutorLabel != "":
		return LeafImplementation{ExecutorLabel: c.ExecutorLabel}, nil
	default:
		return nil, fmt.Errorf("%w: no implementation set", ErrInvalidComponentSpec)
	}
}

// ComponentInputsSpec declares a component's inputs.
type ComponentInputsSpec struct {
	Parameters map[string]*ParameterSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Artifacts  map[string]*ArtifactSpec  `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// ComponentOutputsSpec declares a component's outputs.
type ComponentOutputsSpec struct {
	Parameters map[string]*ParameterSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Artifacts  map[string]*ArtifactSpec  `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
}

// ParameterType names the declared type of a parameter.
type ParameterType string

const (
	ParameterTypeString  ParameterType = "STRING"
	ParameterTypeInteger ParameterType = "NUMBER_INTEGER"
	ParameterTypeDouble  ParameterType = "NUMBER_DOUBLE"
	ParameterTypeBoolean ParameterType = "BOOLEAN"
	ParameterTypeList    ParameterType = "LIST"
	ParameterTypeStruct  ParameterType = "STRUCT"
)

// ParameterSpec declares one parameter input or output.
type ParameterSpec struct {
	ParameterType ParameterType `json:"parameterType,omitempty" yaml:"parameterType,omitempty"`
	DefaultValue  *Literal      `json:"defaultValue,omitempty" yaml:"defaultValue,omitempty"`
	IsOptional    bool          `json:"isOptional,omitempty" yaml:"isOptional,omitempty"`
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// ArtifactSpec declares one artifact input or output.
type ArtifactSpec struct {
	ArtifactType   ArtifactTypeSchema `json:"artifactType" yaml:"artifactType"`
	IsArtifactList bool               `json:"isArtifactList,omitempty" yaml:"isArtifactList,omitempty"`
	IsOptional     bool               `json:"isOptional,omitempty" yaml:"isOptional,omitempty"`
}

// ArtifactTypeSchema identifies an artifact type, e.g. system.Dataset.
type ArtifactTypeSchema struct {
	SchemaTitle   string `json:"schemaTitle,omitempty" yaml:"schemaTitle,omitempty"`
	SchemaVersion string `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`
}

// DAGSpec is a set of tasks and the DAG's declared outputs.
type DAGSpec struct {
	Tasks   map[string]*TaskSpec `json:"tasks" yaml:"tasks"`
	Outputs *DAGOutputsSpec      `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// TaskSpec is one node of a DAG.
type TaskSpec struct {
	TaskInfo       TaskInfo        `json:"taskInfo" yaml:"taskInfo"`
	ComponentRef   ComponentRef    `json:"componentRef" yaml:"componentRef"`
	Inputs         *TaskInputsSpec `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	DependentTasks []string        `json:"dependentTasks,omitempty" yaml:"dependentTasks,omitempty"`
	CachingOptions *CachingOptions `json:"cachingOptions,omitempty" yaml:"cachingOptions,omitempty"`
	TriggerPolicy  *TriggerPolicy  `json:"triggerPolicy,omitempty" yaml:"triggerPolicy,omitempty"`

	// Iterators mark loop tasks. Their shape is not interpreted.
	ParameterIterator map[string]interface{} `json:"parameterIterator,omitempty" yaml:"parameterIterator,omitempty"`
	ArtifactIterator  map[string]interface{} `json:"artifactIterator,omitempty" yaml:"artifactIterator,omitempty"`
}

// TaskInfo carries the task's display name.
type TaskInfo struct {
	Name string `json:"name" yaml:"name"`
}

// ComponentRef names the component a task invokes.
type ComponentRef struct {
	Name string `json:"name" yaml:"name"`
}

// CachingOptions is accepted and ignored by local execution.
type CachingOptions struct {
	EnableCache bool `json:"enableCache,omitempty" yaml:"enableCache,omitempty"`
}

// TriggerPolicy holds the condition guarding a task.
type TriggerPolicy struct {
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Strategy  string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// LoadPipelineSpec decodes a pipeline specification from YAML or JSON.
func LoadPipelineSpec(r io.Reader) (*PipelineSpec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline spec: %w", err)
	}
	return ParsePipelineSpec(data)
}

// ParsePipelineSpec decodes a pipeline specification from YAML or JSON bytes.
func ParsePipelineSpec(data []byte) (*PipelineSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(false)

	var spec PipelineSpec
	if err := dec.Decode(&spec); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidPipelineSpec)
		}
		return nil, fmt.Errorf("failed to decode pipeline spec: %w", err)
	}
	if spec.Root == nil {
		return nil, fmt.Errorf("%w: root component is required", ErrInvalidPipelineSpec)
	}
	return &spec, nil
}

// Component looks up a component by name.
func (p *PipelineSpec) Component(name string) (*ComponentSpec, error) {
	c, ok := p.Components[name]
	if !ok || c == nil {
		return nil, NewSpecError(ErrUnknownComponent, name, "component is not defined in the pipeline")
	}
	return c, nil
}

// Executor looks up an executor by label.
func (p *PipelineSpec) Executor(label string) (*ExecutorSpec, error) {
	e, ok := p.DeploymentSpec.Executors[label]
	if !ok || e == nil {
		return nil, NewSpecError(ErrUnknownExecutor, label, "executor is not defined in the deployment spec")
	}
	return e, nil
}

// Dependencies maps each task to its upstream tasks: the declared
// dependentTasks plus every producer its inputs reference.
func (d *DAGSpec) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(d.Tasks))
	for name, task := range d.Tasks {
		var upstream []string
		if task != nil {
			upstream = append(upstream, task.DependentTasks...)
			upstream = append(upstream, task.Inputs.Producers()...)
		}
		deps[name] = upstream
	}
	return deps
}
