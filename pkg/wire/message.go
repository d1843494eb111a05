package wire

import (
	"errors"
	"fmt"
)

// CBOR map keys shared by every message kind.
const (
	KeyMessageID = 1
	KeyKind      = 2
	KeyName      = 3 // Command (request) or event name (event/control)
	KeyStatus    = 4
	KeyPayload   = 5
	KeyMessage   = 6
	KeyControlOp = 7
)

// MessageID 0 is reserved for events and control messages.
const NotificationMessageID uint32 = 0

// Wire errors.
var (
	ErrWrongKind      = errors.New("unexpected message kind")
	ErrEmptyEventName = errors.New("event name is empty")
)

// Kind identifies the type of a wire message.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindRequest
	KindResponse
	KindEvent
	KindControl
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindEvent:
		return "EVENT"
	case KindControl:
		return "CONTROL"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for the four known kinds.
func (k Kind) IsValid() bool {
	return k >= KindRequest && k <= KindControl
}

// Request represents a command sent from a window to the holder.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, never 0
//	  2: 1,            // kind = request
//	  3: command,      // text
//	  5: payload       // command-specific data
//	}
type Request struct {
	MessageID uint32
	Command   Command
	Payload   RawMessage
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == NotificationMessageID {
		return fmt.Errorf("messageId 0 is reserved for events")
	}
	if r.Command == "" {
		return fmt.Errorf("command is empty")
	}
	return nil
}

// Response represents the holder's single reply to a request.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // matches request
//	  2: 2,            // kind = response
//	  4: status,       // uint8: 0=success, or error code
//	  5: payload,      // command-specific result (if success)
//	  6: message       // human readable error detail (if failure)
//	}
type Response struct {
	MessageID uint32
	Status    Status
	Payload   RawMessage
	Message   string
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Event represents an unsolicited push from the holder.
//
// CBOR encoding:
//
//	{
//	  1: 0,            // messageId 0 = event
//	  2: 3,            // kind = event
//	  3: name,         // event name, e.g. "state-change--csv-file-path"
//	  5: payload
//	}
type Event struct {
	Name    string
	Payload RawMessage
}

// ControlOp is a subscription control operation.
type ControlOp uint8

const (
	// ControlSubscribe asks the holder to forward an event name.
	ControlSubscribe ControlOp = 1

	// ControlUnsubscribe stops forwarding an event name.
	ControlUnsubscribe ControlOp = 2
)

// String returns the control op name.
func (o ControlOp) String() string {
	switch o {
	case ControlSubscribe:
		return "SUBSCRIBE"
	case ControlUnsubscribe:
		return "UNSUBSCRIBE"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true for known control ops.
func (o ControlOp) IsValid() bool {
	return o == ControlSubscribe || o == ControlUnsubscribe
}

// Control tells the holder which events a stream connection wants.
type Control struct {
	Op   ControlOp
	Name string
}

// Frame layouts. Each kind sets key 2 so PeekKind can dispatch.
type requestFrame struct {
	MessageID uint32     `cbor:"1,keyasint"`
	Kind      Kind       `cbor:"2,keyasint"`
	Command   Command    `cbor:"3,keyasint"`
	Payload   RawMessage `cbor:"5,keyasint,omitempty"`
}

type responseFrame struct {
	MessageID uint32     `cbor:"1,keyasint"`
	Kind      Kind       `cbor:"2,keyasint"`
	Status    Status     `cbor:"4,keyasint"`
	Payload   RawMessage `cbor:"5,keyasint,omitempty"`
	Message   string     `cbor:"6,keyasint,omitempty"`
}

type eventFrame struct {
	MessageID uint32     `cbor:"1,keyasint"`
	Kind      Kind       `cbor:"2,keyasint"`
	Name      string     `cbor:"3,keyasint"`
	Payload   RawMessage `cbor:"5,keyasint,omitempty"`
}

type controlFrame struct {
	MessageID uint32    `cbor:"1,keyasint"`
	Kind      Kind      `cbor:"2,keyasint"`
	Name      string    `cbor:"3,keyasint"`
	Op        ControlOp `cbor:"7,keyasint"`
}

// FieldPayload is the payload of get/set field requests.
// Value is absent for reads.
type FieldPayload struct {
	Field string     `cbor:"1,keyasint"`
	Value RawMessage `cbor:"2,keyasint,omitempty"`
}

// LoadPayload is the payload of a load-from-file request.
type LoadPayload struct {
	Path string `cbor:"1,keyasint"`
}
