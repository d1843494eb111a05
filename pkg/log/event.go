package log

import (
	"time"

	"github.com/CorMazz/chronolab/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport endpoint (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Window is the label of the window that produced the event ("main", "plot").
	Window string `cbor:"6,keyasint,omitempty"`

	// Field is the session field involved, if any.
	Field string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Channel/viewport/connection state
	Stale       *StaleWriteEvent  `cbor:"13,keyasint,omitempty"` // Discarded fetch reply
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
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

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerChannel is the attribute channel layer.
	LayerChannel Layer = 2
	// LayerViewport is the viewport controller.
	LayerViewport Layer = 3
	// LayerHolder is the session state holder.
	LayerHolder Layer = 4
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerChannel:
		return "CHANNEL"
	case LayerViewport:
		return "VIEWPORT"
	case LayerHolder:
		return "HOLDER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, response, event or control message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryStale indicates a fetch reply discarded in favour of a newer
	// push or a newer read.
	CategoryStale Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryStale:
		return "STALE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	// Kind distinguishes request/response/event/control.
	Kind wire.Kind `cbor:"1,keyasint"`

	// MessageID correlates request/response pairs (0 for events).
	MessageID uint32 `cbor:"2,keyasint"`

	// For requests: the command.
	Command wire.Command `cbor:"3,keyasint,omitempty"`

	// For events and control messages: the event name.
	EventName string `cbor:"4,keyasint,omitempty"`

	// For responses: the status code.
	Status *wire.Status `cbor:"5,keyasint,omitempty"`

	// For control messages: subscribe or unsubscribe.
	ControlOp wire.ControlOp `cbor:"6,keyasint,omitempty"`

	// PayloadSize is the encoded payload length in bytes.
	PayloadSize int `cbor:"7,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send (response only).
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"8,keyasint,omitempty"`
}

// StateChangeEvent captures lifecycle and mode transitions.
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
	// StateEntityConnection indicates a transport connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntityChannel indicates an attribute channel lifecycle change.
	StateEntityChannel StateEntity = 1
	// StateEntityViewport indicates a follow/manual mode change.
	StateEntityViewport StateEntity = 2
	// StateEntityPlayhead indicates a media attach/detach.
	StateEntityPlayhead StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityViewport:
		return "VIEWPORT"
	case StateEntityPlayhead:
		return "PLAYHEAD"
	default:
		return "UNKNOWN"
	}
}

// StaleWriteEvent records a fetch reply that was discarded because a
// newer value had already been applied, or the channel was closed.
type StaleWriteEvent struct {
	// Reason is "superseded-by-push", "superseded-by-read" or
	// "channel-closed".
	Reason string `cbor:"1,keyasint"`

	// PushesSinceFetch counts pushes applied while the fetch was in flight.
	PushesSinceFetch uint64 `cbor:"2,keyasint,omitempty"`
}

// Stale write reasons.
const (
	StaleSupersededByPush = "superseded-by-push"
	StaleSupersededByRead = "superseded-by-read"
	StaleChannelClosed    = "channel-closed"
)

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
