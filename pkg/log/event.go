package log

import "time"

// Event represents a hub log event. CBOR encoding uses integer keys for
// compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the observer connection, when the event is
	// tied to one (UUID string).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow for command and broadcast events.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// RemoteAddr is the peer address (IP:port), when known.
	RemoteAddr string `cbor:"5,keyasint,omitempty"`

	// DeviceID is the device the event concerns, when any.
	DeviceID string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	StateChange *StateChangeEvent `cbor:"7,keyasint,omitempty"`
	Command     *CommandEvent     `cbor:"8,keyasint,omitempty"`
	Broadcast   *BroadcastEvent   `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound message or command.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a connection or device state change.
	CategoryState Category = 0
	// CategoryCommand indicates a hub command being processed.
	CategoryCommand Category = 1
	// CategoryBroadcast indicates a fan-out to the observer set.
	CategoryBroadcast Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryCommand:
		return "COMMAND"
	case CategoryBroadcast:
		return "BROADCAST"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures connection and device lifecycle transitions.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates an observer connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityDevice indicates a device status change.
	StateEntityDevice StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// CommandEvent captures a hub command as it is processed.
type CommandEvent struct {
	// Verb names the command (CONNECT, DISCONNECT, ADDDEV, ALIVE, SWEEP).
	Verb string `cbor:"1,keyasint"`

	// Argument carries the command payload: the device name for ADDDEV,
	// the reported status token for ALIVE.
	Argument string `cbor:"2,keyasint,omitempty"`

	// Accepted indicates whether the command had any effect. Benign no-ops
	// (unknown device key, redundant status) are logged with Accepted false.
	Accepted bool `cbor:"3,keyasint"`
}

// BroadcastEvent captures a fan-out to the observer set.
type BroadcastEvent struct {
	// Message is the broadcast text.
	Message string `cbor:"1,keyasint"`

	// Observers is the number of observers targeted.
	Observers int `cbor:"2,keyasint"`
}

// ErrorEventData captures errors.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
