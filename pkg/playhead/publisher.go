package playhead

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/clock"
)

// DefaultInterval is the default sampling interval.
const DefaultInterval = 500 * time.Millisecond

// ErrMediaUnavailable is returned by a MediaSource with nothing loaded.
// The Publisher skips such ticks.
var ErrMediaUnavailable = errors.New("media source unavailable")

// MediaSource exposes the playback position of a player.
type MediaSource interface {
	// CurrentTime returns elapsed playback seconds.
	CurrentTime() (float64, error)
}

// Sample is one published playback position.
type Sample struct {
	ElapsedSeconds float64
	SampledAt      time.Time
}

// Sink receives published samples.
type Sink interface {
	Publish(ctx context.Context, s Sample) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, s Sample) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, s Sample) error { return f(ctx, s) }

// Config configures a Publisher.
type Config struct {
	// Interval between samples. Defaults to DefaultInterval.
	Interval time.Duration

	// Clock schedules ticks. Defaults to the real clock.
	Clock clock.Clock

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the default publisher configuration.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval}
}

// Publisher polls an attached MediaSource.
type Publisher struct {
	sink     Sink
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	source     MediaSource
	timer      *clock.Timer
	generation uint64
	last       float64
	hasLast    bool
	published  uint64
	closed     bool
}

// New creates a Publisher that hands samples to sink.
func New(sink Sink, config Config) *Publisher {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		sink:     sink,
		interval: config.Interval,
		clock:    config.Clock,
		logger:   config.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Attach starts sampling src, replacing any attached source. The first
// successful reading is always published.
func (p *Publisher) Attach(src MediaSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.stopLocked()
	p.source = src
	p.hasLast = false
	p.generation++
	p.scheduleLocked(p.generation)
	p.debugLog("media attached", "interval", p.interval)
}

// Detach stops sampling and releases the timer.
func (p *Publisher) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source == nil {
		return
	}
	p.stopLocked()
	p.debugLog("media detached")
}

// Close detaches and stops the publisher for good. It cancels a Publish
// call in progress.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()
	p.cancel()
}

// Attached reports whether a source is being sampled.
func (p *Publisher) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source != nil
}

// Published returns the number of samples handed to the sink.
func (p *Publisher) Published() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// stopLocked cancels the pending tick. Must be called with p.mu held.
func (p *Publisher) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.source = nil
	p.generation++
}

// scheduleLocked arms the next tick. Must be called with p.mu held.
func (p *Publisher) scheduleLocked(gen uint64) {
	p.timer = p.clock.AfterFunc(p.interval, func() { p.tick(gen) })
}

// tick samples once and re-arms. A tick from an earlier attachment is
// ignored.
func (p *Publisher) tick(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.source == nil {
		p.mu.Unlock()
		return
	}
	src := p.source
	p.mu.Unlock()

	p.sample(gen, src)

	p.mu.Lock()
	if gen == p.generation && p.source != nil {
		p.scheduleLocked(gen)
	}
	p.mu.Unlock()
}

func (p *Publisher) sample(gen uint64, src MediaSource) {
	seconds, err := src.CurrentTime()
	if err != nil {
		if !errors.Is(err, ErrMediaUnavailable) && p.logger != nil {
			p.logger.Warn("playhead: read current time", "error", err)
		}
		return
	}

	p.mu.Lock()
	if gen != p.generation || (p.hasLast && seconds == p.last) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	s := Sample{ElapsedSeconds: seconds, SampledAt: p.clock.Now()}
	if err := p.sink.Publish(p.ctx, s); err != nil {
		// Leave last unchanged so the next tick retries.
		if p.logger != nil {
			p.logger.Warn("playhead: publish sample", "seconds", seconds, "error", err)
		}
		return
	}

	p.mu.Lock()
	if gen == p.generation {
		p.last = seconds
		p.hasLast = true
		p.published++
	}
	p.mu.Unlock()
}

func (p *Publisher) debugLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug("playhead: "+msg, args...)
	}
}
