// Command server runs the ChatKit session service: anonymous identity
// resolution, credential minting against the hosted chat backend, and
// best-effort session tracing.
//
// Configuration is environment-driven; see internal/config for the full
// variable list. The service exposes REST endpoints for session creation
// and widget presentation, a WebSocket lifecycle signal stream, and
// Prometheus metrics.
package main
