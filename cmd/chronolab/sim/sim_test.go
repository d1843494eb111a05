package sim

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CorMazz/chronolab/pkg/clock"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/playhead"
	"github.com/CorMazz/chronolab/pkg/viewport"
)

func TestPlayerClock(t *testing.T) {
	clk := clock.Fake(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	p := NewPlayer(clk)

	_, err := p.CurrentTime()
	assert.ErrorIs(t, err, playhead.ErrMediaUnavailable)
	assert.ErrorIs(t, p.Play(), playhead.ErrMediaUnavailable)

	src, err := p.Open("/media/Run.MP4")
	require.NoError(t, err)
	assert.Same(t, p, src)

	clk.Advance(time.Second)
	sec, err := p.CurrentTime()
	require.NoError(t, err)
	assert.Equal(t, 0.0, sec, "paused after open")

	require.NoError(t, p.Play())
	clk.Advance(1500 * time.Millisecond)
	sec, _ = p.CurrentTime()
	assert.Equal(t, 1.5, sec)

	p.Pause()
	clk.Advance(time.Second)
	sec, _ = p.CurrentTime()
	assert.Equal(t, 1.5, sec)

	require.NoError(t, p.Seek(30))
	require.NoError(t, p.Play())
	clk.Advance(2 * time.Second)
	sec, _ = p.CurrentTime()
	assert.Equal(t, 32.0, sec)

	assert.Error(t, p.Seek(-1))
	p.Close()
	_, err = p.CurrentTime()
	assert.ErrorIs(t, err, playhead.ErrMediaUnavailable)
}

func TestPlayerRejectsNonVideo(t *testing.T) {
	_, err := NewPlayer(nil).Open("/data/run.csv")
	assert.ErrorIs(t, err, ErrUnsupportedVideo)
}

func TestTextChartEchoesTags(t *testing.T) {
	var out bytes.Buffer
	chart := NewTextChart(&out)
	var changes []viewport.RangeChange
	chart.OnRangeChange(func(ev viewport.RangeChange) { changes = append(changes, ev) })

	t0 := model.MustParseTimestamp("2024-03-01T12:00:00.000").Time()
	r := viewport.Range{Start: t0, End: t0.Add(20 * time.Second)}
	require.NoError(t, chart.SetVisibleRange(viewport.Command{Range: r, Transition: time.Second, Tag: 7}))
	chart.Pan(time.Minute)

	require.Len(t, changes, 2)
	assert.Equal(t, uint64(7), changes[0].Tag)
	assert.Equal(t, uint64(0), changes[1].Tag)
	assert.Equal(t, t0.Add(time.Minute), chart.Current().Start)
	assert.Contains(t, out.String(), "[2024-03-01T12:00:00.000, 2024-03-01T12:00:20.000] (1s transition)")
	assert.Contains(t, out.String(), "(user pan)")
}

func TestTextChartDrivesController(t *testing.T) {
	chart := NewTextChart(&bytes.Buffer{})
	c, err := viewport.New(chart, viewport.DefaultConfig())
	require.NoError(t, err)
	chart.OnRangeChange(c.HandleRangeChange)

	anchor := model.MustParseTimestamp("2024-03-01T12:00:00.000")
	require.NoError(t, c.SetAnchor(&anchor))
	require.NoError(t, c.HandleSample(5))
	assert.Equal(t, viewport.ModeFollowing, c.Mode(), "own commands do not switch mode")

	chart.Pan(-time.Minute)
	assert.Equal(t, viewport.ModeManual, c.Mode())
}
