// Package runner selects the TaskRunner that executes leaf tasks.
package runner
