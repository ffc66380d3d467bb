package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Full dashboard refresh after any mutation
	MessageTypeStateChanged MessageType = "state_changed"

	// RUNNING <-> STOPPED transitions
	MessageTypeMachineState MessageType = "machine_state"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// StateChangedData carries the rendered state after a mutation
type StateChangedData struct {
	Seq   uint64      `json:"seq"`
	Kind  string      `json:"kind"`
	State interface{} `json:"state"`
}

// MachineStateData represents machine state change data
type MachineStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
	Reason   string `json:"reason,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewStateChangedMessage(seq uint64, kind string, state interface{}) Message {
	return NewMessage(MessageTypeStateChanged, StateChangedData{
		Seq:   seq,
		Kind:  kind,
		State: state,
	})
}

func NewMachineStateMessage(newState, previousState, reason string) Message {
	return NewMessage(MessageTypeMachineState, MachineStateData{
		State:    newState,
		Previous: previousState,
		Reason:   reason,
	})
}
