package attribute

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// call is one request seen by fakeTransport, waiting for the test to
// answer it.
type call struct {
	cmd     wire.Command
	payload wire.FieldPayload
	reply   chan reply
}

type reply struct {
	raw wire.RawMessage
	err error
}

func (c *call) respond(t *testing.T, v any) {
	t.Helper()
	raw, err := wire.EncodeValue(v)
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	c.reply <- reply{raw: raw}
}

func (c *call) fail(err error) {
	c.reply <- reply{err: err}
}

// fakeTransport hands every request to the test and delivers pushes
// synchronously.
type fakeTransport struct {
	calls chan *call

	mu       sync.Mutex
	nextID   int
	handlers map[string]map[int]transport.Handler
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		calls:    make(chan *call, 16),
		handlers: make(map[string]map[int]transport.Handler),
	}
}

func (f *fakeTransport) Request(ctx context.Context, cmd wire.Command, payload any) (wire.RawMessage, error) {
	c := &call{cmd: cmd, reply: make(chan reply, 1)}
	if p, ok := payload.(wire.FieldPayload); ok {
		c.payload = p
	}
	f.calls <- c

	select {
	case r := <-c.reply:
		return r.raw, r.err
	case <-ctx.Done():
		// Let a late reply from the test complete without blocking.
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Emit(context.Context, string, any) error { return nil }

func (f *fakeTransport) Subscribe(name string, h transport.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.handlers[name] == nil {
		f.handlers[name] = make(map[int]transport.Handler)
	}
	f.handlers[name][id] = h
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.handlers[name], id)
	}
}

func (f *fakeTransport) subscriberCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[name])
}

// push delivers v to every handler for name.
func (f *fakeTransport) push(t *testing.T, name string, v any) {
	t.Helper()
	raw, err := wire.EncodeValue(v)
	if err != nil {
		t.Fatalf("encode push: %v", err)
	}
	f.mu.Lock()
	var hs []transport.Handler
	for _, h := range f.handlers[name] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(raw)
	}
}

// next returns the next request, failing the test if none arrives.
func (f *fakeTransport) next(t *testing.T) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no request issued")
		return nil
	}
}

// none asserts that no request is pending.
func (f *fakeTransport) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected %s request", c.cmd)
	case <-time.After(20 * time.Millisecond):
	}
}
