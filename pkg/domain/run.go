package domain

import "time"

// Status is the outcome reported for a task or a DAG.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Result is the outcome of a DAG run. FailedTask is set only on FAILURE and
// Outputs only on SUCCESS.
type Result struct {
	Status     Status   `json:"status"`
	FailedTask string   `json:"failed_task,omitempty"`
	Outputs    ValueMap `json:"outputs,omitempty"`
}

// Succeeded reports whether the DAG finished with SUCCESS.
func (r *Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// RunState is the lifecycle state of a submitted run.
type RunState string

const (
	RunStatePending   RunState = "PENDING"
	RunStateRunning   RunState = "RUNNING"
	RunStateSucceeded RunState = "SUCCEEDED"
	RunStateFailed    RunState = "FAILED"
	RunStateErrored   RunState = "ERRORED"
	RunStateCancelled RunState = "CANCELLED"
)

// IsTerminal reports whether no further transition can happen.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed, RunStateErrored, RunStateCancelled:
		return true
	}
	return false
}

// RunRecord is the persisted view of a submitted run.
type RunRecord struct {
	ID           string     `json:"id"`
	PipelineName string     `json:"pipeline_name"`
	State        RunState   `json:"state"`
	FailedTask   string     `json:"failed_task,omitempty"`
	Error        string     `json:"error,omitempty"`
	Arguments    ValueMap   `json:"arguments,omitempty"`
	Outputs      ValueMap   `json:"outputs,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
