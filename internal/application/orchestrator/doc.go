// Package orchestrator runs compiled pipelines locally.
//
// The Orchestrator drives one DAG run:
//   - Merging user arguments with declared defaults and seeding the value store
//   - Ordering tasks so every task runs after the tasks it consumes
//   - Resolving each task's arguments and dispatching it to a TaskRunner
//   - Extracting the DAG's declared outputs once every task succeeded
//
// Specification problems are returned as *domain.SpecError and abort the
// run. A task that fails is reported through domain.Result instead.
//
// The Manager wraps the Orchestrator with asynchronous submission, run
// records, cancellation and lifecycle events.
package orchestrator
