package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// HubConfig configures an in-process Hub.
type HubConfig struct {
	// Handler serves requests from every endpoint. It may also be set
	// later with SetHandler, which the holder needs because it broadcasts
	// through the hub it serves.
	Handler RequestHandler

	// Client applies to every endpoint's requests.
	Client ClientConfig

	// Logger for protocol logging (optional).
	Logger log.Logger
}

// Hub is an in-process message bus between the holder and its windows.
type Hub struct {
	config HubConfig
	logger log.Logger

	mu        sync.RWMutex
	handler   RequestHandler
	fanout    Broadcaster
	endpoints map[string]*Endpoint
	closed    bool
}

// NewHub creates a hub.
func NewHub(config HubConfig) *Hub {
	config.Client = config.Client.withDefaults()
	return &Hub{
		config:    config,
		logger:    log.OrNoop(config.Logger),
		handler:   config.Handler,
		endpoints: make(map[string]*Endpoint),
	}
}

// SetHandler replaces the request handler.
func (h *Hub) SetHandler(handler RequestHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// SetFanout routes endpoint Emit calls through b instead of only this
// hub, so events reach windows attached by other means as well.
func (h *Hub) SetFanout(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fanout = b
}

// Connect attaches a new endpoint labelled window.
func (h *Hub) Connect(window string) (*Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}

	ep := &Endpoint{
		id:       uuid.NewString(),
		window:   window,
		hub:      h,
		timeout:  h.config.Client.RequestTimeout,
		subs:     newSubscriptions(),
		dispatch: newDispatcher(),
		closing:  make(chan struct{}),
	}
	ep.log = messageLog{logger: h.logger, connID: ep.id, window: window}
	h.endpoints[ep.id] = ep
	ep.log.state(log.StateEntityConnection, "", "CONNECTED", "")
	return ep, nil
}

// EndpointCount returns the number of attached endpoints.
func (h *Hub) EndpointCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.endpoints)
}

// Broadcast delivers an event to every attached endpoint.
func (h *Hub) Broadcast(name string, payload any) error {
	if name == "" {
		return wire.ErrEmptyEventName
	}
	raw, err := wire.EncodeValue(payload)
	if err != nil {
		return err
	}
	return h.broadcastRaw(name, raw)
}

func (h *Hub) broadcastRaw(name string, raw wire.RawMessage) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*Endpoint, 0, len(h.endpoints))
	for _, ep := range h.endpoints {
		targets = append(targets, ep)
	}
	h.mu.RUnlock()

	for _, ep := range targets {
		ep.deliver(name, raw)
	}
	return nil
}

// Close detaches every endpoint.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	eps := make([]*Endpoint, 0, len(h.endpoints))
	for _, ep := range h.endpoints {
		eps = append(eps, ep)
	}
	h.mu.Unlock()

	for _, ep := range eps {
		ep.Close()
	}
	return nil
}

func (h *Hub) emit(name string, payload any) error {
	h.mu.RLock()
	fanout := h.fanout
	h.mu.RUnlock()
	if fanout != nil {
		return fanout.Broadcast(name, payload)
	}
	return h.Broadcast(name, payload)
}

func (h *Hub) remove(ep *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.endpoints, ep.id)
}

func (h *Hub) requestHandler() RequestHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// Endpoint is one window's attachment to a Hub. It implements Transport.
type Endpoint struct {
	id     string
	window string
	hub    *Hub
	log    messageLog

	timeout time.Duration
	nextID  atomic.Uint32

	subs     *subscriptions
	dispatch *dispatcher

	closeOnce sync.Once
	closing   chan struct{}
}

// ID returns the endpoint's unique identifier.
func (ep *Endpoint) ID() string { return ep.id }

// Window returns the label given at Connect.
func (ep *Endpoint) Window() string { return ep.window }

// SubscriptionCount returns the number of registered push handlers.
func (ep *Endpoint) SubscriptionCount() int { return ep.subs.count() }

// Request sends a command through the codec to the hub's handler.
func (ep *Endpoint) Request(ctx context.Context, cmd wire.Command, payload any) (wire.RawMessage, error) {
	select {
	case <-ep.closing:
		return nil, ErrClosed
	default:
	}

	handler := ep.hub.requestHandler()
	if handler == nil {
		return nil, ErrNoHandler
	}

	req, err := newRequest(ep.nextMessageID(), cmd, payload)
	if err != nil {
		return nil, err
	}
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	ep.log.request(log.DirectionOut, req)

	reqCtx, cancel := context.WithTimeout(ctx, ep.timeout)
	defer cancel()

	start := time.Now()
	respCh := make(chan *wire.Response, 1)
	go func() {
		respCh <- serve(reqCtx, handler, data)
	}()

	select {
	case resp := <-respCh:
		ep.log.response(log.DirectionIn, cmd, resp, time.Since(start))
		return resultOf(cmd, resp)
	case <-ep.closing:
		return nil, ErrClosed
	case <-reqCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ep.log.error(log.LayerWire, ErrRequestTimeout, string(cmd))
		return nil, ErrRequestTimeout
	}
}

// Emit publishes an event to every subscriber, this endpoint included.
func (ep *Endpoint) Emit(_ context.Context, name string, payload any) error {
	select {
	case <-ep.closing:
		return ErrClosed
	default:
	}
	return ep.hub.emit(name, payload)
}

// Subscribe registers a push handler.
func (ep *Endpoint) Subscribe(name string, handler Handler) func() {
	return ep.subs.subscribe(name, handler, nil, nil)
}

// Close detaches the endpoint. Pending requests fail with ErrClosed and
// queued pushes are dropped.
func (ep *Endpoint) Close() error {
	ep.closeOnce.Do(func() {
		close(ep.closing)
		ep.subs.clear()
		ep.dispatch.stop()
		ep.hub.remove(ep)
		ep.log.state(log.StateEntityConnection, "CONNECTED", "DISCONNECTED", "")
	})
	return nil
}

func (ep *Endpoint) nextMessageID() uint32 {
	for {
		if id := ep.nextID.Add(1); id != wire.NotificationMessageID {
			return id
		}
	}
}

// deliver queues a push. Handlers are looked up when the push is
// dispatched, so a handler removed in the meantime is not called.
func (ep *Endpoint) deliver(name string, raw wire.RawMessage) {
	if !ep.subs.has(name) {
		return
	}
	ep.dispatch.enqueue(func() {
		handlers := ep.subs.handlers(name)
		if len(handlers) == 0 {
			return
		}
		ep.log.event(log.DirectionIn, name, raw)
		for _, h := range handlers {
			h(raw)
		}
	})
}

// newRequest encodes payload into a request. A nil payload is sent empty.
func newRequest(id uint32, cmd wire.Command, payload any) (*wire.Request, error) {
	req := &wire.Request{MessageID: id, Command: cmd}
	if payload != nil {
		raw, err := wire.EncodeValue(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", cmd, err)
		}
		req.Payload = raw
	}
	return req, nil
}

// serve decodes an encoded request, runs the handler and returns the
// response after a codec round trip.
func serve(ctx context.Context, handler RequestHandler, data []byte) *wire.Response {
	req, err := wire.DecodeRequest(data)
	if err != nil {
		return &wire.Response{Status: wire.StatusInvalidCommand, Message: err.Error()}
	}
	resp := handler.HandleRequest(ctx, req)
	if resp == nil {
		resp = &wire.Response{Status: wire.StatusInternal, Message: "no response"}
	}
	resp.MessageID = req.MessageID

	encoded, err := wire.EncodeResponse(resp)
	if err != nil {
		return &wire.Response{MessageID: req.MessageID, Status: wire.StatusInternal, Message: err.Error()}
	}
	decoded, err := wire.DecodeResponse(encoded)
	if err != nil {
		return &wire.Response{MessageID: req.MessageID, Status: wire.StatusInternal, Message: err.Error()}
	}
	return decoded
}

var (
	_ Transport   = (*Endpoint)(nil)
	_ Broadcaster = (*Hub)(nil)
)
