package waiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// ErrCancelled is returned by Result after Cancel.
var ErrCancelled = errors.New("wait cancelled")

// Subscriber is the part of a transport.Transport the waiter needs.
type Subscriber interface {
	Subscribe(name string, handler transport.Handler) func()
}

// Pending is one outstanding wait.
type Pending struct {
	name string

	mu          sync.Mutex
	payload     wire.RawMessage
	err         error
	resolved    bool
	unsubscribe func()

	done chan struct{}
	once sync.Once
}

// Await registers for the next push of name.
func Await(sub Subscriber, name string) *Pending {
	p := &Pending{
		name: name,
		done: make(chan struct{}),
	}

	unsubscribe := sub.Subscribe(name, func(raw wire.RawMessage) {
		p.resolve(raw, nil)
	})

	p.mu.Lock()
	resolved := p.resolved
	if !resolved {
		p.unsubscribe = unsubscribe
	}
	p.mu.Unlock()

	// The push may already have been delivered by a synchronous transport.
	if resolved {
		unsubscribe()
	}
	return p
}

// Name returns the awaited event name.
func (p *Pending) Name() string { return p.name }

// Done is closed once the wait has resolved or been cancelled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result blocks until the push arrives, the wait is cancelled, or ctx
// ends. A ctx ending also cancels the wait.
func (p *Pending) Result(ctx context.Context) (wire.RawMessage, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.resolve(nil, ctx.Err())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.payload, p.err
}

// Cancel deregisters the handler and fails Result with ErrCancelled. It
// has no effect once the wait has resolved.
func (p *Pending) Cancel() {
	p.resolve(nil, ErrCancelled)
}

func (p *Pending) resolve(raw wire.RawMessage, err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.payload, p.err = raw, err
		p.resolved = true
		unsubscribe := p.unsubscribe
		p.unsubscribe = nil
		p.mu.Unlock()

		// Deregister before waking Result so no subscription outlives it.
		if unsubscribe != nil {
			unsubscribe()
		}
		close(p.done)
	})
}

// Value waits for p and decodes its payload with desc.
func Value[T any](ctx context.Context, p *Pending, desc model.Descriptor[T]) (T, error) {
	raw, err := p.Result(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := desc.Decode(raw)
	if err != nil {
		return v, fmt.Errorf("await %s: %w", desc.Field, err)
	}
	return v, nil
}
