package events

import (
	"encoding/json"
	"time"
)

// Event type constants for kelindar/event.
const (
	TypeRelay uint32 = iota + 1
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Kind identifies a relay event.
type Kind string

// Relay event kinds.
const (
	KindStarted     Kind = "started"
	KindLog         Kind = "log"
	KindExited      Kind = "exited"
	KindSpawnFailed Kind = "spawn_failed"
)

// RelayEvent is a lifecycle or log event of one supervision session.
// Within a session events arrive as started, log*, then one terminal event;
// a session whose spawn failed emits only spawn_failed.
type RelayEvent struct {
	Kind      Kind
	SessionID string
	Seq       uint64
	Timestamp time.Time

	// Text is the diagnostic line of a log event.
	Text string
	// Dropped counts older log lines discarded before this one.
	Dropped uint64
	// Code is the exit code of an exited event, nil when killed by a signal.
	Code *int
	// Signal names the terminating signal of an exited event.
	Signal string
	// Reason describes a spawn failure.
	Reason string
}

// Type returns the event type identifier for RelayEvent.
func (e RelayEvent) Type() uint32 { return TypeRelay }

// Terminal reports whether the event ends its session.
func (e RelayEvent) Terminal() bool {
	return e.Kind == KindExited || e.Kind == KindSpawnFailed
}

// Message returns the wire representation of the event.
func (e RelayEvent) Message() any {
	base := MessageBase{
		Kind:      string(e.Kind),
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	switch e.Kind {
	case KindLog:
		return LogMessage{MessageBase: base, Text: e.Text, Dropped: e.Dropped}
	case KindExited:
		return ExitedMessage{MessageBase: base, Code: e.Code, Signal: e.Signal}
	case KindSpawnFailed:
		return SpawnFailedMessage{MessageBase: base, Reason: e.Reason}
	default:
		return StartedMessage{MessageBase: base}
	}
}

// MarshalJSON encodes the event in its wire form.
func (e RelayEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Message())
}

// MessageBase holds the fields shared by every relay event message.
type MessageBase struct {
	Kind      string `json:"kind" example:"log" doc:"Event kind"`
	SessionID string `json:"session_id" example:"3f1c2a7e-8d4b-4c55-9a0e-2b6f1d7c9e11" doc:"Supervision session identifier"`
	Seq       uint64 `json:"seq" example:"42" doc:"Per-session sequence number"`
	Timestamp string `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Event timestamp"`
}

// StartedMessage is sent once the worker process has been created.
type StartedMessage struct {
	MessageBase
}

// LogMessage carries one line of worker diagnostic output.
type LogMessage struct {
	MessageBase
	Text    string `json:"text" example:"Press [q] to stop, [?] for help" doc:"Diagnostic line without terminator"`
	Dropped uint64 `json:"dropped,omitempty" example:"0" doc:"Lines discarded before this one because the consumer fell behind"`
}

// ExitedMessage is sent once the worker has exited and its output was drained.
type ExitedMessage struct {
	MessageBase
	Code   *int   `json:"code" example:"0" doc:"Exit code, null when the worker was killed by a signal"`
	Signal string `json:"signal,omitempty" example:"killed" doc:"Terminating signal"`
}

// SpawnFailedMessage is sent when the worker could not be started.
type SpawnFailedMessage struct {
	MessageBase
	Reason string `json:"reason" example:"executable not found" doc:"Spawn failure reason"`
}
