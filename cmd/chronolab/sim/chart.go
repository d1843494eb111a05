package sim

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/viewport"
)

// TextChart prints every range it is asked to show and reports range
// changes the way an interactive chart does.
type TextChart struct {
	out io.Writer

	mu       sync.Mutex
	current  viewport.Range
	onChange func(viewport.RangeChange)
}

// NewTextChart returns a chart printing to out.
func NewTextChart(out io.Writer) *TextChart {
	return &TextChart{out: out}
}

// OnRangeChange sets the range-change callback.
func (c *TextChart) OnRangeChange(fn func(viewport.RangeChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// SetVisibleRange implements viewport.Chart.
func (c *TextChart) SetVisibleRange(cmd viewport.Command) error {
	c.show(cmd.Range, cmd.Tag, fmt.Sprintf("(%s transition)", cmd.Transition))
	return nil
}

// Pan shifts the visible range by d as a user drag would.
func (c *TextChart) Pan(d time.Duration) {
	c.mu.Lock()
	r := viewport.Range{Start: c.current.Start.Add(d), End: c.current.End.Add(d)}
	c.mu.Unlock()
	c.show(r, 0, "(user pan)")
}

// Current returns the displayed range.
func (c *TextChart) Current() viewport.Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *TextChart) show(r viewport.Range, tag uint64, note string) {
	c.mu.Lock()
	c.current = r
	fn := c.onChange
	c.mu.Unlock()

	fmt.Fprintf(c.out, "chart: %s %s\n", r, note)
	if fn != nil {
		fn(viewport.RangeChange{Range: r, Tag: tag})
	}
}
