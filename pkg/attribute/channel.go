package attribute

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// Channel errors.
var (
	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("attribute channel is closed")

	// ErrStaleWrite marks a read reply that lost to a newer push. It is
	// logged, never returned to callers.
	ErrStaleWrite = errors.New("stale read reply ignored")
)

// Options configures a Channel.
type Options struct {
	// Subscribe registers for the field's push event.
	Subscribe bool

	// Window labels log events.
	Window string

	// Logger receives stale-write and error events (optional).
	Logger log.Logger

	// OnError is called with read failures and undecodable pushes
	// (optional).
	OnError func(error)
}

// Channel is one window's read-through cache of a single field.
type Channel[T any] struct {
	desc   model.Descriptor[T]
	tr     transport.Transport
	opts   Options
	logger log.Logger

	mu          sync.Mutex
	value       T
	err         error
	closed      bool
	outstanding int
	pushes      uint64
	reads       uint64
	applied     uint64
	stale       uint64
	observers   map[int]func(T)
	nextObs     int
	cancelRead  context.CancelFunc
	unsubscribe func()

	opened     chan struct{}
	openedOnce sync.Once
}

// Open starts a channel for desc. It returns immediately with the
// descriptor's default value and Loading true; the initial read runs in
// the background and is cancelled by Close or by ctx ending.
func Open[T any](ctx context.Context, tr transport.Transport, desc model.Descriptor[T], opts Options) *Channel[T] {
	c := &Channel[T]{
		desc:      desc,
		tr:        tr,
		opts:      opts,
		logger:    log.OrNoop(opts.Logger),
		value:     desc.Default,
		observers: make(map[int]func(T)),
		opened:    make(chan struct{}),
	}

	// Subscribe before reading so no push between the read being served
	// and its reply arriving can be missed.
	if opts.Subscribe {
		c.unsubscribe = tr.Subscribe(desc.ChangeEvent(), c.handlePush)
	}

	readCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelRead = cancel
	r := c.beginRead()
	c.mu.Unlock()

	go func() {
		defer cancel()
		c.fetch(readCtx, r)
		c.markOpened()
	}()
	return c
}

// Name returns the field name.
func (c *Channel[T]) Name() string { return c.desc.Name() }

// Value returns the current value.
func (c *Channel[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Loading reports whether a read is outstanding.
func (c *Channel[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outstanding > 0
}

// Err returns the most recent read or push failure, or nil. It is
// cleared by the next value that is applied.
func (c *Channel[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// StaleDiscards returns how many read replies lost to a newer push or
// a newer read.
func (c *Channel[T]) StaleDiscards() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// Wait blocks until the initial read has resolved and returns its error.
// A read made stale by a push counts as resolved without error.
func (c *Channel[T]) Wait(ctx context.Context) error {
	select {
	case <-c.opened:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return ErrClosed
		}
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Set asks the holder to store v. It returns once the holder has
// acknowledged the write; the channel's value changes only when the
// resulting push arrives. On failure the value is left as it was.
func (c *Channel[T]) Set(ctx context.Context, v T) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	raw, err := wire.EncodeValue(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.desc.Field, err)
	}
	_, err = c.tr.Request(ctx, wire.CmdSetField, wire.FieldPayload{Field: c.desc.Name(), Value: raw})
	if err != nil {
		c.logError(err, "set")
		return fmt.Errorf("set %s: %w", c.desc.Field, err)
	}
	return nil
}

// Refresh issues a fresh read and applies it unless a push, or the reply
// to a read issued later, arrives first.
func (c *Channel[T]) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	r := c.beginRead()
	c.mu.Unlock()

	return c.fetch(ctx, r)
}

// OnChange registers fn to be called with every new value. The returned
// function removes it.
func (c *Channel[T]) OnChange(fn func(T)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Close removes the push subscription and cancels an outstanding read.
// Replies arriving afterwards are ignored. Close is idempotent.
func (c *Channel[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.observers = make(map[int]func(T))
	unsubscribe, cancel := c.unsubscribe, c.cancelRead
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	cancel()
	c.markOpened()
	return nil
}

// readMark identifies one read: the push count when it was issued and
// its position among reads.
type readMark struct {
	pushes uint64
	seq    uint64
}

// beginRead records an outstanding read. Must be called with c.mu held.
func (c *Channel[T]) beginRead() readMark {
	c.outstanding++
	c.reads++
	return readMark{pushes: c.pushes, seq: c.reads}
}

// fetch reads the field and applies the reply.
func (c *Channel[T]) fetch(ctx context.Context, mark readMark) error {
	raw, err := c.tr.Request(ctx, wire.CmdGetField, wire.FieldPayload{Field: c.desc.Name()})

	var v T
	if err == nil {
		v, err = c.desc.Decode(raw)
	}

	err = c.applyRead(mark, v, err)
	switch {
	case errors.Is(err, ErrStaleWrite):
		return nil
	case err != nil:
		c.logError(err, "read")
		c.reportError(err)
		return fmt.Errorf("read %s: %w", c.desc.Field, err)
	}
	return nil
}

// applyRead stores a read result unless the channel closed, a push was
// applied after mark was taken, or a later read was already applied. In
// those cases it returns ErrStaleWrite. A failed read leaves the value
// unchanged.
func (c *Channel[T]) applyRead(mark readMark, v T, readErr error) error {
	c.mu.Lock()
	c.outstanding--

	if c.closed {
		c.mu.Unlock()
		c.logStale(log.StaleChannelClosed, 0)
		return ErrStaleWrite
	}
	if c.pushes > mark.pushes {
		c.stale++
		since := c.pushes - mark.pushes
		c.mu.Unlock()
		c.logStale(log.StaleSupersededByPush, since)
		return ErrStaleWrite
	}
	if c.applied > mark.seq {
		c.stale++
		c.mu.Unlock()
		c.logStale(log.StaleSupersededByRead, 0)
		return ErrStaleWrite
	}
	c.applied = mark.seq
	if readErr != nil {
		c.err = readErr
		c.mu.Unlock()
		return readErr
	}

	c.value = v
	c.err = nil
	observers := c.snapshotObservers()
	c.mu.Unlock()

	notify(observers, v)
	return nil
}

func (c *Channel[T]) handlePush(raw wire.RawMessage) {
	v, err := c.desc.Decode(raw)
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		if !closed {
			c.err = err
		}
		c.mu.Unlock()
		if !closed {
			c.logError(err, "push")
			c.reportError(err)
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.err = nil
	c.pushes++
	observers := c.snapshotObservers()
	c.mu.Unlock()

	notify(observers, v)
}

// snapshotObservers copies the observer list. Must be called with c.mu held.
func (c *Channel[T]) snapshotObservers() []func(T) {
	if len(c.observers) == 0 {
		return nil
	}
	out := make([]func(T), 0, len(c.observers))
	for id := 0; id < c.nextObs; id++ {
		if fn, ok := c.observers[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify[T any](observers []func(T), v T) {
	for _, fn := range observers {
		fn(v)
	}
}

func (c *Channel[T]) markOpened() {
	c.openedOnce.Do(func() { close(c.opened) })
}

func (c *Channel[T]) reportError(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(fmt.Errorf("%s: %w", c.desc.Field, err))
	}
}

func (c *Channel[T]) logStale(reason string, pushes uint64) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Window:    c.opts.Window,
		Field:     c.desc.Name(),
		Layer:     log.LayerChannel,
		Category:  log.CategoryStale,
		Stale: &log.StaleWriteEvent{
			Reason:           reason,
			PushesSinceFetch: pushes,
		},
	})
}

func (c *Channel[T]) logError(err error, op string) {
	c.logger.Log(log.Event{
		Timestamp: time.Now(),
		Window:    c.opts.Window,
		Field:     c.desc.Name(),
		Layer:     log.LayerChannel,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerChannel,
			Message: err.Error(),
			Context: op,
		},
	})
}
