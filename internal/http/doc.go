// Package http provides HTTP handlers for the widget session service.
//
// This package implements all HTTP endpoints using the Gin framework:
// credential minting, widget presentation config, and health checks.
//
// Endpoints:
//   - Health: / and /health
//   - Sessions: /api/create-session
//   - Widget: /api/widget-preset
//
// The session endpoint resolves a durable anonymous identity from a
// cookie, mints a short-lived widget credential upstream, and records the
// outcome as an observability trace. Tracing is best-effort and never
// affects the response.
package http
