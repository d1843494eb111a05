package wire

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// RawMessage is an encoded CBOR value whose decoding is deferred to the
// consumer that knows its type.
type RawMessage = cbor.RawMessage

// encMode is the CBOR encoder mode for wire messages.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for wire messages.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
		// Timestamps and other text types travel as CBOR text strings.
		TextMarshaler: cbor.TextMarshalerTextString,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler:   cbor.TextUnmarshalerTextString,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeValue encodes an arbitrary payload value into a RawMessage.
func EncodeValue(v any) (RawMessage, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return RawMessage(data), nil
}

// DecodeValue decodes a RawMessage into a value of type T. An empty
// message decodes to the zero value of T.
func DecodeValue[T any](raw RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(requestFrame{
		MessageID: req.MessageID,
		Kind:      KindRequest,
		Command:   req.Command,
		Payload:   req.Payload,
	})
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var f requestFrame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if f.Kind != KindRequest {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, f.Kind, KindRequest)
	}
	req := &Request{MessageID: f.MessageID, Command: f.Command, Payload: f.Payload}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(responseFrame{
		MessageID: resp.MessageID,
		Kind:      KindResponse,
		Status:    resp.Status,
		Payload:   resp.Payload,
		Message:   resp.Message,
	})
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var f responseFrame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if f.Kind != KindResponse {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, f.Kind, KindResponse)
	}
	return &Response{
		MessageID: f.MessageID,
		Status:    f.Status,
		Payload:   f.Payload,
		Message:   f.Message,
	}, nil
}

// EncodeEvent encodes a push event to CBOR bytes.
// Events have messageId=0 which is set automatically.
func EncodeEvent(ev *Event) ([]byte, error) {
	if ev.Name == "" {
		return nil, ErrEmptyEventName
	}
	return Marshal(eventFrame{
		MessageID: NotificationMessageID,
		Kind:      KindEvent,
		Name:      ev.Name,
		Payload:   ev.Payload,
	})
}

// DecodeEvent decodes CBOR bytes into a push event.
func DecodeEvent(data []byte) (*Event, error) {
	var f eventFrame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	if f.Kind != KindEvent {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, f.Kind, KindEvent)
	}
	if f.MessageID != NotificationMessageID {
		return nil, fmt.Errorf("not an event message: messageId=%d", f.MessageID)
	}
	return &Event{Name: f.Name, Payload: f.Payload}, nil
}

// EncodeControl encodes a subscription control message to CBOR bytes.
func EncodeControl(ctl *Control) ([]byte, error) {
	if !ctl.Op.IsValid() {
		return nil, fmt.Errorf("invalid control op: %d", ctl.Op)
	}
	return Marshal(controlFrame{
		MessageID: NotificationMessageID,
		Kind:      KindControl,
		Name:      ctl.Name,
		Op:        ctl.Op,
	})
}

// DecodeControl decodes CBOR bytes into a control message.
func DecodeControl(data []byte) (*Control, error) {
	var f controlFrame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode control message: %w", err)
	}
	if f.Kind != KindControl {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrWrongKind, f.Kind, KindControl)
	}
	return &Control{Op: f.Op, Name: f.Name}, nil
}

// PeekKind examines CBOR data to determine the message kind without
// decoding the payload.
func PeekKind(data []byte) (Kind, error) {
	var head struct {
		Kind Kind `cbor:"2,keyasint"`
	}
	if err := Unmarshal(data, &head); err != nil {
		return KindUnknown, fmt.Errorf("failed to peek message kind: %w", err)
	}
	if !head.Kind.IsValid() {
		return KindUnknown, fmt.Errorf("unknown message kind: %d", head.Kind)
	}
	return head.Kind, nil
}
