package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL            = "http://localhost:8000/api/v1"
	DefaultWSURL              = "ws://localhost:8000/ws/batches"
	DefaultAPITimeout         = 30 * time.Second
	DefaultMaxRetries         = 3
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultBufferSize         = 1024
	DefaultPollInterval       = 30 * time.Second
	DefaultFallbackInterval   = 3 * time.Second
	DefaultGracePeriod        = 10 * time.Second
	DefaultPollConcurrency    = 4
	DefaultPollTimeout        = 10 * time.Second
	DefaultLogLevel           = "info"
)

func (c *DashboardConfig) applyDefaults() {
	// Station defaults
	if c.Station.RestURL == "" {
		c.Station.RestURL = DefaultRestURL
	}
	if c.Station.WSURL == "" {
		c.Station.WSURL = DefaultWSURL
	}
	if c.Station.Timeout == 0 {
		c.Station.Timeout = DefaultAPITimeout
	}
	if c.Station.MaxRetries == 0 {
		c.Station.MaxRetries = DefaultMaxRetries
	}

	// Connection defaults
	if c.Connection.ReconnectBaseDelay == 0 {
		c.Connection.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connection.ReconnectMaxDelay == 0 {
		c.Connection.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.BufferSize == 0 {
		c.Connection.BufferSize = DefaultBufferSize
	}

	// Polling defaults
	if c.Polling.Interval == 0 {
		c.Polling.Interval = DefaultPollInterval
	}
	if c.Polling.FallbackInterval == 0 {
		c.Polling.FallbackInterval = DefaultFallbackInterval
	}
	if c.Polling.GracePeriod == 0 {
		c.Polling.GracePeriod = DefaultGracePeriod
	}
	if c.Polling.Concurrency == 0 {
		c.Polling.Concurrency = DefaultPollConcurrency
	}
	if c.Polling.Timeout == 0 {
		c.Polling.Timeout = DefaultPollTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
