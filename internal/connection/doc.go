// Package connection owns the push channel to the station backend.
//
// Two layers:
//   - Client: one physical WebSocket, no business logic
//   - Supervisor: exponential-backoff reconnection, heartbeat
//     bookkeeping, re-announcement of subscription interest after
//     reconnect, and the single dispatch path for inbound frames
package connection
