package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *DashboardConfig) Validate() error {
	if c.Station.RestURL == "" {
		return errors.New("station.rest_url is required")
	}
	if c.Station.WSURL == "" {
		return errors.New("station.ws_url is required")
	}
	if !strings.HasPrefix(c.Station.WSURL, "ws://") && !strings.HasPrefix(c.Station.WSURL, "wss://") {
		return fmt.Errorf("station.ws_url must be a ws:// or wss:// URL, got %q", c.Station.WSURL)
	}

	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.ReconnectMaxDelay < c.Connection.ReconnectBaseDelay {
		return fmt.Errorf("connection.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			c.Connection.ReconnectMaxDelay, c.Connection.ReconnectBaseDelay)
	}
	if c.Connection.BufferSize < 1 {
		return errors.New("connection.buffer_size must be >= 1")
	}

	if c.Polling.Interval <= 0 {
		return errors.New("polling.interval must be > 0")
	}
	if c.Polling.FallbackInterval <= 0 {
		return errors.New("polling.fallback_interval must be > 0")
	}
	if c.Polling.FallbackInterval > c.Polling.Interval {
		return fmt.Errorf("polling.fallback_interval (%v) cannot exceed polling.interval (%v)",
			c.Polling.FallbackInterval, c.Polling.Interval)
	}
	if c.Polling.GracePeriod <= 0 {
		return errors.New("polling.grace_period must be > 0")
	}
	if c.Polling.Concurrency < 1 {
		return errors.New("polling.concurrency must be >= 1")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	return nil
}
