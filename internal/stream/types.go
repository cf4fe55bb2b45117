// Package stream provides the in-process event log that carries run
// snapshots from the controller to dashboard clients (web and terminal).
package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType says what an event's payload holds.
type MessageType string

const (
	// MessageTypeState carries a loop.Snapshot published mid-run.
	MessageTypeState MessageType = "state"
	// MessageTypeResult carries the final loop.Snapshot of a run.
	MessageTypeResult MessageType = "result"
)

// Event is one entry in the hub. Events are immutable once appended.
type Event struct {
	Seq       uint64          `json:"seq,omitempty"` // assigned by Hub.Append
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent encodes data as the payload of a new, unsequenced event.
func NewEvent(msgType MessageType, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", msgType, err)
	}
	return &Event{Type: msgType, Timestamp: time.Now().UTC(), Data: raw}, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", e.Type, err)
	}
	return nil
}
