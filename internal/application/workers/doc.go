// Package workers implements the worker pool that executes queued runs.
//
// The pool manages a fixed number of goroutines that:
//   - Take jobs from a bounded queue
//   - Execute each job with the pool's context, recovering from panics
//   - Report queue depth and worker status to the metrics collector
//
// The health monitor tracks worker status and logs metrics.
package workers
