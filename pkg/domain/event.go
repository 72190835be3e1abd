package domain

import "time"

// EventType names a run lifecycle event.
type EventType string

const (
	EventTypeRunSubmitted  EventType = "run.submitted"
	EventTypeRunStarted    EventType = "run.started"
	EventTypeRunSucceeded  EventType = "run.succeeded"
	EventTypeRunFailed     EventType = "run.failed"
	EventTypeRunErrored    EventType = "run.errored"
	EventTypeRunCancelled  EventType = "run.cancelled"
	EventTypeTaskStarted   EventType = "task.started"
	EventTypeTaskSucceeded EventType = "task.succeeded"
	EventTypeTaskFailed    EventType = "task.failed"
)

// Event topics.
const (
	TopicRunEvents  = "run.events"
	TopicTaskEvents = "task.events"
)

// Event is published on the event bus as a run progresses.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	RunID     string                 `json:"run_id"`
	TaskName  string                 `json:"task_name,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}
