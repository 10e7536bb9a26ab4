// Package api implements the HTTP API of the telemetry core.
//
// This package provides:
//   - realtime site subscription endpoints backed by the subscription registry
//   - live event streams over Server-Sent Events and WebSocket
//   - queue inspection and failed-job retry for operators
//   - rule, notification and history endpoints scoped to the caller's projects
//   - health, JSON system metrics and Prometheus exposition
//
// # Security
//
// Every route under /api/v1 except /health requires an HS256 access token,
// sent as a bearer token or, for EventSource and browser WebSocket clients
// that cannot set headers, as the access_token query parameter. Roles gate
// operator endpoints; project membership gates device data.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
