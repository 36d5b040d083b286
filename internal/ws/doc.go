// Package ws streams widget lifecycle signals over a WebSocket.
//
// Each connection owns one session controller. Signals arrive as JSON
// frames and are dispatched to the controller sequentially in arrival
// order, which is what makes the session's state transitions and response
// timing deterministic. Outbound frames acknowledge state changes, minted
// credentials, and tool side effects.
//
// Signal types:
//   - scriptReady, mint, responseStart, responseEnd
//   - toolInvoked, threadChanged, resetRequested, error, ping
package ws
