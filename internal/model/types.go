package model

import "time"

// BatchStatus is the lifecycle state of a batch execution slot.
type BatchStatus string

const (
	StatusIdle      BatchStatus = "idle"
	StatusStarting  BatchStatus = "starting"
	StatusRunning   BatchStatus = "running"
	StatusStopping  BatchStatus = "stopping"
	StatusCompleted BatchStatus = "completed"
	StatusError     BatchStatus = "error"
)

// IsValid returns true for a known batch status.
func (s BatchStatus) IsValid() bool {
	switch s {
	case StatusIdle, StatusStarting, StatusRunning, StatusStopping, StatusCompleted, StatusError:
		return true
	}
	return false
}

// IsActive returns true while a run is in flight. While active, push-derived
// fields take precedence over snapshot data.
func (s BatchStatus) IsActive() bool {
	return s == StatusStarting || s == StatusRunning || s == StatusStopping
}

// StepStatus is the state of a single sequence step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one entry of a batch's sequence, keyed by (Name, Order).
type Step struct {
	Order    int        `json:"order" yaml:"order"`
	Name     string     `json:"name" yaml:"name"`
	Status   StepStatus `json:"status" yaml:"status"`
	Pass     *bool      `json:"pass,omitempty" yaml:"pass,omitempty"`
	Duration float64    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Result   string     `json:"result,omitempty" yaml:"result,omitempty"`
}

// LogEntry is one line of a batch's execution log tail.
type LogEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// MaxLogEntries caps the per-batch log tail kept in memory.
const MaxLogEntries = 200

// Batch is one configured, repeatable test-execution slot on a station.
//
// Progress and StepIndex never decrease within one ExecutionID when driven
// by push events; snapshot merges follow precedence rules instead.
type Batch struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	Status      BatchStatus `json:"status"`
	Progress    float64     `json:"progress"`
	CurrentStep string      `json:"currentStep,omitempty"`
	StepIndex   int         `json:"stepIndex"`
	TotalSteps  int         `json:"totalSteps"`

	// ExecutionID scopes progress and step events to one concrete run.
	ExecutionID string `json:"executionId,omitempty"`

	Steps []Step `json:"steps,omitempty"`

	// LastRunPassed is the previous completed run's verdict, independent
	// of the current run. Nil until a run has completed.
	LastRunPassed *bool `json:"lastRunPassed,omitempty"`

	Elapsed   float64    `json:"elapsed"`
	Logs      []LogEntry `json:"-"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewBatch returns a placeholder batch for a newly observed id.
func NewBatch(id string) Batch {
	return Batch{
		ID:     id,
		Status: StatusIdle,
	}
}

// StepAt finds a step by (name, order) key. Returns the index or -1.
func (b *Batch) StepAt(name string, order int) int {
	for i := range b.Steps {
		if b.Steps[i].Name == name && b.Steps[i].Order == order {
			return i
		}
	}
	return -1
}

// AppendLog appends to the capped log tail, dropping the oldest entries.
func (b *Batch) AppendLog(entry LogEntry) {
	b.Logs = append(b.Logs, entry)
	if len(b.Logs) > MaxLogEntries {
		b.Logs = b.Logs[len(b.Logs)-MaxLogEntries:]
	}
}

// Clone returns a deep copy safe to hand to readers.
func (b Batch) Clone() Batch {
	out := b
	if b.Steps != nil {
		out.Steps = make([]Step, len(b.Steps))
		copy(out.Steps, b.Steps)
	}
	if b.Logs != nil {
		out.Logs = make([]LogEntry, len(b.Logs))
		copy(out.Logs, b.Logs)
	}
	if b.LastRunPassed != nil {
		v := *b.LastRunPassed
		out.LastRunPassed = &v
	}
	return out
}

// TransportStatus is the state of the push channel.
type TransportStatus string

const (
	TransportDisconnected TransportStatus = "disconnected"
	TransportConnecting   TransportStatus = "connecting"
	TransportConnected    TransportStatus = "connected"
	TransportError        TransportStatus = "error"
)

// ConnectionState is the session-wide view of the push channel, read by the
// UI's connection indicator and by the polling fallback controller.
type ConnectionState struct {
	TransportStatus       TransportStatus `json:"transportStatus"`
	LastHeartbeat         time.Time       `json:"lastHeartbeat"`
	ReconnectAttempts     int             `json:"reconnectAttempts"`
	PollingFallbackActive bool            `json:"pollingFallbackActive"`
}
