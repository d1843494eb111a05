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

// ServerConfig configures a stream Server.
type ServerConfig struct {
	// Handler serves requests from every connection. Required.
	Handler RequestHandler

	// Fanout receives events emitted by connected clients. Defaults to
	// the server itself; set it to a Broadcasters that includes the
	// in-process Hub when both are in use.
	Fanout Broadcaster

	// MaxMessageSize is the maximum frame size (default: 64KB).
	MaxMessageSize uint32

	// Logger for protocol logging (optional).
	Logger log.Logger

	// OnConnect is called when a new connection is established.
	OnConnect func(conn *ServerConn)

	// OnDisconnect is called when a connection is closed.
	OnDisconnect func(conn *ServerConn)

	// OnError is called when a connection fails.
	OnError func(conn *ServerConn, err error)
}

// Server accepts window connections for a holder over a stream listener.
type Server struct {
	config   ServerConfig
	logger   log.Logger
	listener net.Listener

	conns   map[*ServerConn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a new server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("server: Handler is required")
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	s := &Server{
		config: config,
		logger: log.OrNoop(config.Logger),
		conns:  make(map[*ServerConn]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start listens on network/address (e.g. "unix", "/tmp/chronolab.sock")
// and accepts connections until Stop is called or ctx ends.
func (s *Server) Start(ctx context.Context, network, address string) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, network, address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.ctx.Done():
		}
	}()
	return nil
}

// Stop closes the listener and every connection.
func (s *Server) Stop() error {
	s.cancel()
	if s.running.Swap(false) && s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

// Broadcast sends an event to every connection subscribed to name.
func (s *Server) Broadcast(name string, payload any) error {
	raw, err := wire.EncodeValue(payload)
	if err != nil {
		return err
	}
	data, err := wire.EncodeEvent(&wire.Event{Name: name, Payload: raw})
	if err != nil {
		return err
	}

	s.connsMu.RLock()
	targets := make([]*ServerConn, 0, len(s.conns))
	for conn := range s.conns {
		if conn.isSubscribed(name) {
			targets = append(targets, conn)
		}
	}
	s.connsMu.RUnlock()

	var errs []error
	for _, conn := range targets {
		if err := conn.Send(data); err != nil {
			errs = append(errs, fmt.Errorf("conn %s: %w", conn.connID, err))
			continue
		}
		conn.log.event(log.DirectionOut, name, raw)
	}
	return errors.Join(errs...)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			if s.config.OnError != nil {
				s.config.OnError(nil, fmt.Errorf("accept: %w", err))
			}
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// ServeConn serves one already established connection and returns when
// it closes.
func (s *Server) ServeConn(conn net.Conn) {
	connID := uuid.NewString()
	framer := NewFramer(conn, s.config.MaxMessageSize)
	framer.SetLogger(s.logger, connID, "")

	sconn := &ServerConn{
		conn:       conn,
		framer:     framer,
		server:     s,
		closeCh:    make(chan struct{}),
		connID:     connID,
		subscribed: make(map[string]struct{}),
		log:        messageLog{logger: s.logger, connID: connID},
	}

	s.connsMu.Lock()
	s.conns[sconn] = struct{}{}
	s.connsMu.Unlock()

	sconn.log.state(log.StateEntityConnection, "", "CONNECTED", remoteString(conn))
	if s.config.OnConnect != nil {
		s.config.OnConnect(sconn)
	}

	sconn.readLoop()
	sconn.Close()

	s.connsMu.Lock()
	delete(s.conns, sconn)
	s.connsMu.Unlock()

	sconn.log.state(log.StateEntityConnection, "CONNECTED", "DISCONNECTED", "")
	if s.config.OnDisconnect != nil {
		s.config.OnDisconnect(sconn)
	}
}

func (s *Server) fanout() Broadcaster {
	if s.config.Fanout != nil {
		return s.config.Fanout
	}
	return s
}

// ServerConn is one window connected to the server.
type ServerConn struct {
	conn      net.Conn
	framer    *Framer
	server    *Server
	closeCh   chan struct{}
	closeOnce sync.Once
	connID    string
	log       messageLog

	subMu      sync.RWMutex
	subscribed map[string]struct{}
}

// ConnID returns the unique connection identifier.
func (c *ServerConn) ConnID() string { return c.connID }

// Send writes one encoded message.
func (c *ServerConn) Send(data []byte) error {
	return c.framer.WriteFrame(data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

// Subscriptions returns the event names the peer asked for.
func (c *ServerConn) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.subscribed))
	for name := range c.subscribed {
		out = append(out, name)
	}
	return out
}

func (c *ServerConn) isSubscribed(name string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscribed[name]
	return ok
}

func (c *ServerConn) readLoop() {
	for {
		data, err := c.framer.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if !errors.Is(err, io.EOF) && c.server.config.OnError != nil {
					c.server.config.OnError(c, err)
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
		case wire.KindRequest:
			c.handleRequest(data)
		case wire.KindControl:
			c.handleControl(data)
		case wire.KindEvent:
			c.handleEvent(data)
		default:
			c.log.error(log.LayerWire, fmt.Errorf("%w: %s", wire.ErrWrongKind, kind), "dispatch")
		}
	}
}

// handleRequest serves requests in arrival order so writes from one
// window reach the holder in the order they were sent.
func (c *ServerConn) handleRequest(data []byte) {
	start := time.Now()
	req, err := wire.DecodeRequest(data)
	if err != nil {
		c.log.error(log.LayerWire, err, "decode request")
		return
	}
	c.log.request(log.DirectionIn, req)

	resp := c.server.config.Handler.HandleRequest(c.server.ctx, req)
	if resp == nil {
		resp = &wire.Response{Status: wire.StatusInternal, Message: "no response"}
	}
	resp.MessageID = req.MessageID

	out, err := wire.EncodeResponse(resp)
	if err != nil {
		c.log.error(log.LayerWire, err, "encode response")
		return
	}
	if err := c.Send(out); err != nil {
		c.log.error(log.LayerTransport, err, "send response")
		return
	}
	c.log.response(log.DirectionOut, req.Command, resp, time.Since(start))
}

func (c *ServerConn) handleControl(data []byte) {
	ctl, err := wire.DecodeControl(data)
	if err != nil {
		c.log.error(log.LayerWire, err, "decode control")
		return
	}
	c.log.control(log.DirectionIn, ctl)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	switch ctl.Op {
	case wire.ControlSubscribe:
		c.subscribed[ctl.Name] = struct{}{}
	case wire.ControlUnsubscribe:
		delete(c.subscribed, ctl.Name)
	}
}

func (c *ServerConn) handleEvent(data []byte) {
	ev, err := wire.DecodeEvent(data)
	if err != nil {
		c.log.error(log.LayerWire, err, "decode event")
		return
	}
	c.log.event(log.DirectionIn, ev.Name, ev.Payload)

	if err := c.server.fanout().Broadcast(ev.Name, ev.Payload); err != nil {
		c.log.error(log.LayerTransport, err, "rebroadcast "+ev.Name)
	}
}

func remoteString(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

var _ Broadcaster = (*Server)(nil)
