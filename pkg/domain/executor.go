package domain

// ExecutorSpec is the IR's executor descriptor. Exactly one field is set.
type ExecutorSpec struct {
	Container *ContainerSpec `json:"container,omitempty" yaml:"container,omitempty"`
	Importer  *ImporterSpec  `json:"importer,omitempty" yaml:"importer,omitempty"`
	Resolver  *ResolverSpec  `json:"resolver,omitempty" yaml:"resolver,omitempty"`
	CustomJob *CustomJobSpec `json:"customJob,omitempty" yaml:"customJob,omitempty"`
}

// ExecutorImpl is the sealed union of executor kinds.
type ExecutorImpl interface {
	executorImpl()
}

// ContainerSpec runs a command in a container image.
type ContainerSpec struct {
	Image   string   `json:"image" yaml:"image"`
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string `json:"args,omitempty" yaml:"args,omitempty"`
	Env     []EnvVar `json:"env,omitempty" yaml:"env,omitempty"`
}

// EnvVar is one environment variable of a container.
type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// ImporterSpec imports an existing artifact into the pipeline.
type ImporterSpec struct {
	ArtifactURI map[string]interface{} `json:"artifactUri,omitempty" yaml:"artifactUri,omitempty"`
	TypeSchema  ArtifactTypeSchema     `json:"typeSchema" yaml:"typeSchema"`
	Reimport    bool                   `json:"reimport,omitempty" yaml:"reimport,omitempty"`
}

// ResolverSpec resolves artifacts from metadata queries.
type ResolverSpec struct {
	OutputArtifactQueries map[string]interface{} `json:"outputArtifactQueries,omitempty" yaml:"outputArtifactQueries,omitempty"`
}

// CustomJobSpec runs a platform-specific job.
type CustomJobSpec struct {
	CustomJob map[string]interface{} `json:"customJob,omitempty" yaml:"customJob,omitempty"`
}

func (*ContainerSpec) executorImpl() {}
func (*ImporterSpec) executorImpl()  {}
func (*ResolverSpec) executorImpl()  {}
func (*CustomJobSpec) executorImpl() {}

// Impl returns the executor's single implementation, or nil when none or
// several are set.
func (e *ExecutorSpec) Impl() ExecutorImpl {
	if e == nil {
		return nil
	}
	var found []ExecutorImpl
	if e.Container != nil {
		found = append(found, e.Container)
	}
	if e.Importer != nil {
		found = append(found, e.Importer)
	}
	if e.Resolver != nil {
		found = append(found, e.Resolver)
	}
	if e.CustomJob != nil {
		found = append(found, e.CustomJob)
	}
	if len(found) != 1 {
		return nil
	}
	return found[0]
}
