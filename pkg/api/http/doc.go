// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Pipeline run submission, listing and cancellation
//   - Run status and result queries
//   - Worker pool status
//   - Health checks
//   - Prometheus metrics
package http
