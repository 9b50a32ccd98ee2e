package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// Inbound wraps one raw frame with its receive timestamp.
type Inbound struct {
	Data       []byte
	ReceivedAt time.Time
}

// ClientConfig configures a single WebSocket transport.
type ClientConfig struct {
	URL          string        // e.g. ws://station-hub:8000/ws/batches
	PingTimeout  time.Duration // max silence before the connection is stale
	WriteTimeout time.Duration // write deadline for sends
	BufferSize   int           // inbound frame channel buffer
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// SupervisorConfig configures the Connection Supervisor.
type SupervisorConfig struct {
	ReconnectBaseDelay time.Duration // first retry delay
	ReconnectMaxDelay  time.Duration // backoff cap; attempts are unbounded
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
	}
}
