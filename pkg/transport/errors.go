package transport

import (
	"errors"
	"fmt"

	"github.com/CorMazz/chronolab/pkg/wire"
)

// ErrTransportFailure is matched by every error that means a request did
// not complete: timeouts, closed transports and rejected commands.
var ErrTransportFailure = errors.New("transport failure")

// Transport errors.
var (
	ErrRequestTimeout  = fmt.Errorf("%w: request timed out", ErrTransportFailure)
	ErrClosed          = fmt.Errorf("%w: transport is closed", ErrTransportFailure)
	ErrNoHandler       = fmt.Errorf("%w: no request handler", ErrTransportFailure)
	ErrUnexpectedReply = errors.New("unexpected reply")
)

// StatusError is returned when the holder rejects a command.
type StatusError struct {
	Command wire.Command
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Command, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Status)
}

// Is makes every StatusError match ErrTransportFailure.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransportFailure
}

// resultOf turns a response into the Request return values.
func resultOf(cmd wire.Command, resp *wire.Response) (wire.RawMessage, error) {
	if !resp.IsSuccess() {
		return nil, &StatusError{Command: cmd, Status: resp.Status, Message: resp.Message}
	}
	return resp.Payload, nil
}
