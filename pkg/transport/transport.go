package transport

import (
	"context"
	"errors"
	"time"

	"github.com/CorMazz/chronolab/pkg/wire"
)

// Transport is the substrate every window uses to reach the holder.
type Transport interface {
	// Request sends a command and waits for its single reply. The reply
	// payload is returned undecoded. Failures satisfy
	// errors.Is(err, ErrTransportFailure) unless ctx ended first.
	Request(ctx context.Context, cmd wire.Command, payload any) (wire.RawMessage, error)

	// Emit publishes an event to all current subscribers.
	Emit(ctx context.Context, name string, payload any) error

	// Subscribe registers handler for pushes named name. The returned
	// function removes the registration and is safe to call more than once.
	Subscribe(name string, handler Handler) (unsubscribe func())
}

// Handler receives the payload of one push event.
type Handler func(payload wire.RawMessage)

// RequestHandler serves commands. The holder implements it.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *wire.Request) *wire.Response
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, req *wire.Request) *wire.Response

// HandleRequest calls f.
func (f RequestHandlerFunc) HandleRequest(ctx context.Context, req *wire.Request) *wire.Response {
	return f(ctx, req)
}

// Broadcaster delivers an event to every subscriber it knows about.
type Broadcaster interface {
	Broadcast(name string, payload any) error
}

// Broadcasters fans one broadcast out to several broadcasters, e.g. the
// in-process Hub and a stream Server.
type Broadcasters []Broadcaster

// Broadcast sends to every member and joins their errors.
func (bs Broadcasters) Broadcast(name string, payload any) error {
	var errs []error
	for _, b := range bs {
		if b == nil {
			continue
		}
		if err := b.Broadcast(name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Default values.
const (
	DefaultRequestTimeout = 5 * time.Second
)

// ClientConfig configures the requesting side of a transport.
type ClientConfig struct {
	// RequestTimeout bounds how long Request waits for a reply.
	RequestTimeout time.Duration

	// MaxMessageSize limits frame size on stream connections.
	MaxMessageSize uint32
}

// DefaultClientConfig returns a ClientConfig with default values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: DefaultRequestTimeout,
		MaxMessageSize: DefaultMaxMessageSize,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	return c
}
