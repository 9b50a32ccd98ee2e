// Package wire defines the push-channel message set exchanged with the
// station backend. Inbound frames decode into a closed set of message
// types; the reconciler switches over the concrete types so every handled
// kind is visible at one boundary.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType marks an inbound frame whose discriminator is not part of
// the known message set. Callers drop these without failing the connection.
var ErrUnknownType = errors.New("unknown message type")

// Message is one decoded inbound frame. The set of implementations is
// closed; Decode is the only constructor.
type Message interface {
	isMessage()
}

// BatchStatusMsg reports a status transition for one batch.
type BatchStatusMsg struct {
	BatchID     string  `json:"batchId"`
	Status      string  `json:"status"`
	Progress    float64 `json:"progress"`
	HasProgress bool    `json:"-"`
	CurrentStep string  `json:"currentStep"`
	StepIndex   int     `json:"stepIndex"`
	TotalSteps  int     `json:"totalSteps"`
	ExecutionID string  `json:"executionId"`
}

// StepStartMsg reports a sequence step beginning.
type StepStartMsg struct {
	BatchID     string `json:"batchId"`
	Step        string `json:"step"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	ExecutionID string `json:"executionId"`
}

// StepCompleteMsg reports a sequence step finishing.
type StepCompleteMsg struct {
	BatchID     string  `json:"batchId"`
	Step        string  `json:"step"`
	Index       int     `json:"index"`
	Total       int     `json:"total"`
	Duration    float64 `json:"duration"`
	Pass        bool    `json:"pass"`
	Result      string  `json:"result"`
	ExecutionID string  `json:"executionId"`
}

// SequenceCompleteMsg reports a whole run finishing.
type SequenceCompleteMsg struct {
	BatchID     string `json:"batchId"`
	Passed      bool   `json:"passed"`
	ExecutionID string `json:"executionId"`
}

// LogMsg carries one execution log line.
type LogMsg struct {
	BatchID     string `json:"batchId"`
	Level       string `json:"level"`
	Message     string `json:"message"`
	ExecutionID string `json:"executionId"`
}

// ServerErrorMsg is an explicit server-reported error. It is surfaced as a
// notification and logged against the batch, but never changes status by
// itself.
type ServerErrorMsg struct {
	BatchID string `json:"batchId"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubscribedMsg acknowledges a subscribe call, listing the accepted ids.
// It keys the one-shot initial-push exemption in the reconciler.
type SubscribedMsg struct {
	BatchIDs []string `json:"batchIds"`
}

// UnsubscribedMsg acknowledges an unsubscribe call.
type UnsubscribedMsg struct {
	BatchIDs []string `json:"batchIds"`
}

// BatchCreatedMsg announces a batch new to the server.
type BatchCreatedMsg struct {
	BatchID string `json:"batchId"`
	Name    string `json:"name"`
}

// BatchDeletedMsg announces a batch removed on the server.
type BatchDeletedMsg struct {
	BatchID string `json:"batchId"`
}

func (BatchStatusMsg) isMessage()      {}
func (StepStartMsg) isMessage()        {}
func (StepCompleteMsg) isMessage()     {}
func (SequenceCompleteMsg) isMessage() {}
func (LogMsg) isMessage()              {}
func (ServerErrorMsg) isMessage()      {}
func (SubscribedMsg) isMessage()       {}
func (UnsubscribedMsg) isMessage()     {}
func (BatchCreatedMsg) isMessage()     {}
func (BatchDeletedMsg) isMessage()     {}

// envelope extracts the discriminator without committing to a payload shape.
type envelope struct {
	Type string `json:"type"`
}

// batchStatusWire mirrors BatchStatusMsg with an optional progress field so
// "progress absent" is distinguishable from "progress zero".
type batchStatusWire struct {
	BatchID     string   `json:"batchId"`
	Status      string   `json:"status"`
	Progress    *float64 `json:"progress"`
	CurrentStep string   `json:"currentStep"`
	StepIndex   int      `json:"stepIndex"`
	TotalSteps  int      `json:"totalSteps"`
	ExecutionID string   `json:"executionId"`
}

// Decode parses one inbound frame. Unknown discriminators return
// ErrUnknownType; any other error means a malformed payload.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case "batch_status":
		var w batchStatusWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("decode batch_status: %w", err)
		}
		msg := BatchStatusMsg{
			BatchID:     w.BatchID,
			Status:      w.Status,
			CurrentStep: w.CurrentStep,
			StepIndex:   w.StepIndex,
			TotalSteps:  w.TotalSteps,
			ExecutionID: w.ExecutionID,
		}
		if w.Progress != nil {
			msg.Progress = *w.Progress
			msg.HasProgress = true
		}
		return msg, nil

	case "step_start":
		var msg StepStartMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode step_start: %w", err)
		}
		return msg, nil

	case "step_complete":
		var msg StepCompleteMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode step_complete: %w", err)
		}
		return msg, nil

	case "sequence_complete":
		var msg SequenceCompleteMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode sequence_complete: %w", err)
		}
		return msg, nil

	case "log":
		var msg LogMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		return msg, nil

	case "error":
		var msg ServerErrorMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode error: %w", err)
		}
		return msg, nil

	case "subscribed":
		var msg SubscribedMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode subscribed: %w", err)
		}
		return msg, nil

	case "unsubscribed":
		var msg UnsubscribedMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode unsubscribed: %w", err)
		}
		return msg, nil

	case "batch_created":
		var msg BatchCreatedMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode batch_created: %w", err)
		}
		return msg, nil

	case "batch_deleted":
		var msg BatchDeletedMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode batch_deleted: %w", err)
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// command is the outbound frame shape.
type command struct {
	Type     string   `json:"type"`
	BatchIDs []string `json:"batchIds"`
}

// EncodeSubscribe builds a subscribe frame for the given batch ids.
func EncodeSubscribe(batchIDs []string) ([]byte, error) {
	return json.Marshal(command{Type: "subscribe", BatchIDs: batchIDs})
}

// EncodeUnsubscribe builds an unsubscribe frame for the given batch ids.
func EncodeUnsubscribe(batchIDs []string) ([]byte, error) {
	return json.Marshal(command{Type: "unsubscribe", BatchIDs: batchIDs})
}
