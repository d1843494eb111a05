package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// Client is a window's connection to a holder Server. It implements
// Transport.
type Client struct {
	conn   net.Conn
	framer *Framer
	config ClientConfig
	log    messageLog

	nextID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan *wire.Response

	subs     *subscriptions
	dispatch *dispatcher

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// Dial connects to a holder server and starts the client.
func Dial(ctx context.Context, network, address, window string, config ClientConfig, logger log.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransportFailure, address, err)
	}
	return NewClient(conn, window, config, logger), nil
}

// NewClient starts a client over an established connection.
func NewClient(conn net.Conn, window string, config ClientConfig, logger log.Logger) *Client {
	config = config.withDefaults()
	logger = log.OrNoop(logger)
	connID := uuid.NewString()

	framer := NewFramer(conn, config.MaxMessageSize)
	framer.SetLogger(logger, connID, window)

	c := &Client{
		conn:     conn,
		framer:   framer,
		config:   config,
		log:      messageLog{logger: logger, connID: connID, window: window},
		pending:  make(map[uint32]chan *wire.Response),
		subs:     newSubscriptions(),
		dispatch: newDispatcher(),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	c.log.state(log.StateEntityConnection, "", "CONNECTED", remoteString(conn))
	go c.readLoop()
	return c
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// SubscriptionCount returns the number of registered push handlers.
func (c *Client) SubscriptionCount() int { return c.subs.count() }

// Request sends a command and waits for the reply.
func (c *Client) Request(ctx context.Context, cmd wire.Command, payload any) (wire.RawMessage, error) {
	select {
	case <-c.closing:
		return nil, ErrClosed
	default:
	}

	req, err := newRequest(c.nextMessageID(), cmd, payload)
	if err != nil {
		return nil, err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	c.pending[req.MessageID] = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.MessageID)
		c.pendingMu.Unlock()
	}()

	start := time.Now()
	if err := c.framer.WriteFrame(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	c.log.request(log.DirectionOut, req)

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		c.log.error(log.LayerWire, ErrRequestTimeout, string(cmd))
		return nil, ErrRequestTimeout
	case <-c.closing:
		return nil, ErrClosed
	case resp := <-respCh:
		c.log.response(log.DirectionIn, cmd, resp, time.Since(start))
		return resultOf(cmd, resp)
	}
}

// Emit sends an event to the server, which rebroadcasts it.
func (c *Client) Emit(_ context.Context, name string, payload any) error {
	raw, err := wire.EncodeValue(payload)
	if err != nil {
		return err
	}
	data, err := wire.EncodeEvent(&wire.Event{Name: name, Payload: raw})
	if err != nil {
		return err
	}
	if err := c.framer.WriteFrame(data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportFailure, err)
	}
	c.log.event(log.DirectionOut, name, raw)
	return nil
}

// Subscribe registers a push handler. The server is told to forward the
// event when its first handler registers and told to stop when its last
// one is removed.
func (c *Client) Subscribe(name string, handler Handler) func() {
	return c.subs.subscribe(name, handler,
		func(name string) { c.sendControl(wire.ControlSubscribe, name) },
		func(name string) { c.sendControl(wire.ControlUnsubscribe, name) },
	)
}

// Close closes the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		c.subs.clear()
		c.dispatch.stop()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) sendControl(op wire.ControlOp, name string) {
	select {
	case <-c.closing:
		return
	default:
	}
	ctl := &wire.Control{Op: op, Name: name}
	data, err := wire.EncodeControl(ctl)
	if err != nil {
		c.log.error(log.LayerWire, err, "encode control")
		return
	}
	if err := c.framer.WriteFrame(data); err != nil {
		c.log.error(log.LayerTransport, err, "send control")
		return
	}
	c.log.control(log.DirectionOut, ctl)
}

func (c *Client) nextMessageID() uint32 {
	for {
		if id := c.nextID.Add(1); id != wire.NotificationMessageID {
			return id
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.log.state(log.StateEntityConnection, "CONNECTED", "DISCONNECTED", "")
	defer c.Close()

	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closing:
			default:
				if !errors.Is(err, io.EOF) {
					c.log.error(log.LayerTransport, err, "read")
				}
			}
			return
		}

		kind, err := wire.PeekKind(data)
		if err != nil {
			c.log.error(log.LayerWire, err, "peek")
			continue
		}

		switch kind {
		case wire.KindResponse:
			c.handleResponse(data)
		case wire.KindEvent:
			c.handleEvent(data)
		default:
			c.log.error(log.LayerWire, fmt.Errorf("%w: %s", wire.ErrWrongKind, kind), "dispatch")
		}
	}
}

func (c *Client) handleResponse(data []byte) {
	resp, err := wire.DecodeResponse(data)
	if err != nil {
		c.log.error(log.LayerWire, err, "decode response")
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[resp.MessageID]
	c.pendingMu.Unlock()
	if !ok {
		c.log.error(log.LayerWire, fmt.Errorf("%w: message %d", ErrUnexpectedReply, resp.MessageID), "response")
		return
	}

	select {
	case ch <- resp:
	default:
	}
}

func (c *Client) handleEvent(data []byte) {
	ev, err := wire.DecodeEvent(data)
	if err != nil {
		c.log.error(log.LayerWire, err, "decode event")
		return
	}
	if !c.subs.has(ev.Name) {
		return
	}
	c.dispatch.enqueue(func() {
		handlers := c.subs.handlers(ev.Name)
		if len(handlers) == 0 {
			return
		}
		c.log.event(log.DirectionIn, ev.Name, ev.Payload)
		for _, h := range handlers {
			h(ev.Payload)
		}
	})
}

var _ Transport = (*Client)(nil)
