package config

import "time"

// DashboardConfig is the root configuration for the station sync core.
type DashboardConfig struct {
	Station    StationConfig    `yaml:"station"`
	Connection ConnectionConfig `yaml:"connection"`
	Polling    PollingConfig    `yaml:"polling"`
	Log        LogConfig        `yaml:"log"`
}

// StationConfig holds station hub endpoints.
type StationConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ConnectionConfig holds push channel supervisor settings.
type ConnectionConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// PollingConfig holds snapshot poll and fallback settings.
type PollingConfig struct {
	Interval         time.Duration `yaml:"interval"`
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	GracePeriod      time.Duration `yaml:"grace_period"`
	Concurrency      int           `yaml:"concurrency"`
	Timeout          time.Duration `yaml:"timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
