// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/runs/:id/ws to receive the run and task
// events of one run as JSON messages. The stream closes after the run's
// terminal event.
package websocket
