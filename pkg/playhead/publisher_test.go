package playhead

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CorMazz/chronolab/pkg/clock"
)

// fakeMedia is a MediaSource whose position the test sets.
type fakeMedia struct {
	mu      sync.Mutex
	seconds float64
	err     error
	reads   int
}

func (m *fakeMedia) CurrentTime() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return m.seconds, m.err
}

func (m *fakeMedia) set(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seconds = seconds
}

type recordingSink struct {
	mu      sync.Mutex
	samples []Sample
	err     error
}

func (s *recordingSink) Publish(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.samples = append(s.samples, sample)
	return nil
}

func (s *recordingSink) seconds() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.samples))
	for i, sample := range s.samples {
		out[i] = sample.ElapsedSeconds
	}
	return out
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newPublisher(sink Sink) (*Publisher, *clock.FakeClock) {
	clk := clock.Fake(t0)
	p := New(sink, Config{Interval: DefaultInterval, Clock: clk})
	return p, clk
}

func TestPublishesOnlyChanges(t *testing.T) {
	sink := &recordingSink{}
	p, clk := newPublisher(sink)
	defer p.Close()
	media := &fakeMedia{seconds: 0}

	p.Attach(media)
	clk.Advance(DefaultInterval)
	require.Equal(t, []float64{0}, sink.seconds(), "first reading is published")

	clk.Advance(3 * DefaultInterval)
	assert.Equal(t, []float64{0}, sink.seconds(), "three unchanged ticks publish nothing")
	assert.Equal(t, 4, media.reads)

	media.set(1.5)
	clk.Advance(DefaultInterval)
	media.set(1.5)
	clk.Advance(DefaultInterval)
	media.set(1.25)
	clk.Advance(DefaultInterval)

	assert.Equal(t, []float64{0, 1.5, 1.25}, sink.seconds())
	assert.Equal(t, uint64(3), p.Published())
}

func TestSampleTimestamp(t *testing.T) {
	sink := &recordingSink{}
	p, clk := newPublisher(sink)
	defer p.Close()

	p.Attach(&fakeMedia{seconds: 2})
	clk.Advance(2 * time.Second)

	require.Len(t, sink.samples, 1)
	assert.Equal(t, t0.Add(DefaultInterval), sink.samples[0].SampledAt)
}

func TestDetachStopsSampling(t *testing.T) {
	sink := &recordingSink{}
	p, clk := newPublisher(sink)
	defer p.Close()
	media := &fakeMedia{seconds: 1}

	p.Attach(media)
	clk.Advance(DefaultInterval)
	assert.True(t, p.Attached())

	p.Detach()
	assert.False(t, p.Attached())
	assert.Equal(t, 0, clk.PendingCount(), "timer released")

	media.set(9)
	clk.Advance(5 * DefaultInterval)
	assert.Equal(t, []float64{1}, sink.seconds())
	assert.Equal(t, 1, media.reads)
}

func TestReattachPublishesAgain(t *testing.T) {
	sink := &recordingSink{}
	p, clk := newPublisher(sink)
	defer p.Close()

	p.Attach(&fakeMedia{seconds: 3})
	clk.Advance(DefaultInterval)
	p.Attach(&fakeMedia{seconds: 3})
	clk.Advance(DefaultInterval)

	assert.Equal(t, []float64{3, 3}, sink.seconds())
	assert.Equal(t, 1, clk.PendingCount())
}

func TestCloseReleasesTimer(t *testing.T) {
	sink := &recordingSink{}
	p, clk := newPublisher(sink)

	p.Attach(&fakeMedia{seconds: 1})
	p.Close()
	assert.Equal(t, 0, clk.PendingCount())

	p.Attach(&fakeMedia{seconds: 2})
	clk.Advance(time.Second)
	assert.Empty(t, sink.seconds(), "attach after close is ignored")
}

func TestUnavailableMediaIsSkipped(t *testing.T) {
	sink := &recordingSink{}
	p, clk := newPublisher(sink)
	defer p.Close()
	media := &fakeMedia{err: ErrMediaUnavailable}

	p.Attach(media)
	clk.Advance(3 * DefaultInterval)
	assert.Empty(t, sink.seconds())
	assert.True(t, p.Attached(), "keeps polling until media is available")

	media.mu.Lock()
	media.err = nil
	media.seconds = 0.5
	media.mu.Unlock()
	clk.Advance(DefaultInterval)
	assert.Equal(t, []float64{0.5}, sink.seconds())
}

func TestFailedPublishIsRetried(t *testing.T) {
	sink := &recordingSink{err: errors.New("holder gone")}
	p, clk := newPublisher(sink)
	defer p.Close()

	p.Attach(&fakeMedia{seconds: 4})
	clk.Advance(2 * DefaultInterval)
	assert.Equal(t, uint64(0), p.Published())

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()
	clk.Advance(DefaultInterval)
	assert.Equal(t, []float64{4}, sink.seconds())
}

func TestDefaultConfig(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, DefaultConfig().Interval)

	p := New(SinkFunc(func(context.Context, Sample) error { return nil }), Config{})
	defer p.Close()
	assert.Equal(t, DefaultInterval, p.interval)
}
