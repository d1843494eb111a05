package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/clock"
)

// Connection errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// DefaultConnectTimeout bounds a single reconnect attempt.
const DefaultConnectTimeout = 5 * time.Second

// State is the link state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes the link. On success it returns a channel
// that is closed when the link is lost.
type ConnectFunc func(ctx context.Context) (lost <-chan struct{}, err error)

// Config configures a Manager.
type Config struct {
	Backoff BackoffConfig

	// ConnectTimeout bounds each reconnect attempt.
	ConnectTimeout time.Duration

	// Clock times the backoff delays. Defaults to the real clock.
	Clock clock.Clock

	// OnStateChange is called after every state transition.
	OnStateChange func(from, to State)

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Manager reconnects a link whenever it is lost.
type Manager struct {
	connect ConnectFunc
	config  Config
	backoff *Backoff

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	state State
}

// NewManager creates a manager for connect.
func NewManager(connect ConnectFunc, config Config) *Manager {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	m := &Manager{
		connect: connect,
		config:  config,
		backoff: NewBackoff(config.Backoff),
		state:   StateDisconnected,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempts returns the reconnect attempts since the last success.
func (m *Manager) Attempts() int { return m.backoff.Attempts() }

// Connect makes the first connection. Later losses are handled in the
// background until Close.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateDisconnected:
	default:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	m.setState(StateConnecting)
	lost, err := m.connect(ctx)
	if err != nil {
		m.setState(StateDisconnected)
		return err
	}
	m.connected(lost)
	return nil
}

// Close stops reconnecting and waits for the background loop.
func (m *Manager) Close() {
	if m.setState(StateClosed) {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) connected(lost <-chan struct{}) {
	m.backoff.Reset()
	if !m.setState(StateConnected) {
		return
	}
	m.wg.Add(1)
	go m.watch(lost)
}

// watch waits for the link to drop, then reconnects.
func (m *Manager) watch(lost <-chan struct{}) {
	defer m.wg.Done()

	select {
	case <-m.ctx.Done():
		return
	case <-lost:
	}
	if !m.setState(StateReconnecting) {
		return
	}

	for {
		delay := m.backoff.Next()
		m.debugLog("reconnecting", "attempt", m.backoff.Attempts(), "delay", delay)
		if !m.sleep(delay) {
			return
		}

		ctx, cancel := context.WithTimeout(m.ctx, m.config.ConnectTimeout)
		next, err := m.connect(ctx)
		cancel()
		if err == nil {
			m.connected(next)
			return
		}
		m.debugLog("reconnect failed", "error", err)
	}
}

func (m *Manager) sleep(d time.Duration) bool {
	fired := make(chan struct{})
	t := m.config.Clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-m.ctx.Done():
		t.Stop()
		return false
	}
}

// setState moves to state unless the manager is closed, and reports
// whether it did.
func (m *Manager) setState(state State) bool {
	m.mu.Lock()
	from := m.state
	if from == StateClosed {
		m.mu.Unlock()
		return false
	}
	m.state = state
	m.mu.Unlock()

	if from != state && m.config.OnStateChange != nil {
		m.config.OnStateChange(from, state)
	}
	return true
}

func (m *Manager) debugLog(msg string, args ...any) {
	if m.config.Logger != nil {
		m.config.Logger.Debug(msg, args...)
	}
}
