package viewport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/model"
)

// Default configuration values.
const (
	DefaultBefore     = 10 * time.Second
	DefaultAfter      = 10 * time.Second
	DefaultTransition = 1000 * time.Millisecond
)

// ErrInvalidWindow is returned by New for a zero-width window.
var ErrInvalidWindow = errors.New("viewport: Before+After must be positive")

// Mode is the controller state.
type Mode uint8

const (
	// ModeFollowing moves the chart with every playback sample.
	ModeFollowing Mode = iota
	// ModeManual leaves the chart where the user put it.
	ModeManual
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeFollowing:
		return "FOLLOWING"
	case ModeManual:
		return "MANUAL"
	default:
		return "UNKNOWN"
	}
}

// Range is a visible time range. Times are UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

// String formats the range with millisecond precision.
func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", model.NewTimestamp(r.Start), model.NewTimestamp(r.End))
}

// Command asks the chart to show a range.
type Command struct {
	Range
	Transition time.Duration

	// Tag identifies the command. The chart reports it back in the
	// RangeChange events the command causes.
	Tag uint64
}

// RangeChange is reported by the chart whenever its displayed range
// changes, whoever caused it.
type RangeChange struct {
	// Range is the new explicit range. It is zero when the change only
	// switched autoranging.
	Range Range

	// AutorangeDisabled is set when the change turned autoranging off.
	AutorangeDisabled bool

	// Tag is the Command.Tag that caused the change, or zero.
	Tag uint64
}

// Chart is the chart adapter the controller drives.
type Chart interface {
	SetVisibleRange(cmd Command) error
}

// Config configures a Controller.
type Config struct {
	// Before and After set the window around the playhead.
	Before time.Duration
	After  time.Duration

	// Transition is the animation length passed with each range command.
	Transition time.Duration

	// Window labels log events.
	Window string

	// EventLogger receives mode changes (optional).
	EventLogger log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// OnModeChange is called after every mode transition (optional).
	OnModeChange func(Mode)
}

// DefaultConfig returns a symmetric 20 second window with a one second
// transition.
func DefaultConfig() Config {
	return Config{
		Before:     DefaultBefore,
		After:      DefaultAfter,
		Transition: DefaultTransition,
	}
}

// Controller maps playback samples onto chart range commands.
type Controller struct {
	chart  Chart
	config Config
	events log.Logger

	mu      sync.Mutex
	mode    Mode
	anchor  *model.Timestamp
	elapsed float64
	sampled bool
	current Range
	lastTag uint64
	issued  uint64
}

// New creates a Controller in ModeFollowing with no anchor.
func New(chart Chart, config Config) (*Controller, error) {
	if config.Before < 0 || config.After < 0 || config.Before+config.After <= 0 {
		return nil, ErrInvalidWindow
	}
	return &Controller{
		chart:  chart,
		config: config,
		events: log.OrNoop(config.EventLogger),
		mode:   ModeFollowing,
	}, nil
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Anchor returns the anchor time, or nil when unset.
func (c *Controller) Anchor() *model.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor
}

// Current returns the last range commanded or reported.
func (c *Controller) Current() Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Issued returns the number of range commands sent to the chart.
func (c *Controller) Issued() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued
}

// SetAnchor sets the wall-clock time at elapsed zero. A nil anchor stops
// synchronization. While following, the chart moves to the last sample
// under the new anchor.
func (c *Controller) SetAnchor(anchor *model.Timestamp) error {
	c.mu.Lock()
	if anchor != nil && anchor.IsZero() {
		anchor = nil
	}
	c.anchor = anchor
	c.debugLog("anchor set", "anchor", anchor)
	cmd, ok := c.followLocked()
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.send(cmd)
}

// HandleSample moves the chart to elapsedSeconds when following with an
// anchor set. Otherwise the sample is only remembered.
func (c *Controller) HandleSample(elapsedSeconds float64) error {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}

	c.mu.Lock()
	c.elapsed = elapsedSeconds
	c.sampled = true
	cmd, ok := c.followLocked()
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return c.send(cmd)
}

// HandleRangeChange is the chart's range-change callback. A change not
// caused by one of the controller's commands switches to ModeManual.
func (c *Controller) HandleRangeChange(ev RangeChange) {
	c.mu.Lock()
	if c.selfIssuedLocked(ev.Tag) {
		c.mu.Unlock()
		return
	}
	if !ev.Range.Start.IsZero() || !ev.Range.End.IsZero() {
		c.current = normalize(ev.Range)
	}
	if ev.Range.Start.IsZero() && ev.Range.End.IsZero() && !ev.AutorangeDisabled {
		// Autorange switched back on: not an explicit range.
		c.mu.Unlock()
		return
	}
	changed := c.setModeLocked(ModeManual, "user range change")
	c.mu.Unlock()

	c.notify(changed, ModeManual)
}

// SetFollow is the explicit follow toggle. Turning follow on moves the
// chart to the last sample immediately.
func (c *Controller) SetFollow(follow bool) error {
	mode := ModeManual
	if follow {
		mode = ModeFollowing
	}

	c.mu.Lock()
	changed := c.setModeLocked(mode, "user toggle")
	var (
		cmd Command
		ok  bool
	)
	if follow {
		cmd, ok = c.followLocked()
	}
	c.mu.Unlock()

	c.notify(changed, mode)
	if !ok {
		return nil
	}
	return c.send(cmd)
}

// Following reports whether the controller is in ModeFollowing.
func (c *Controller) Following() bool { return c.Mode() == ModeFollowing }

// TimeWindow reports the current range and whether it follows playback.
func (c *Controller) TimeWindow() (Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.mode == ModeFollowing
}

// RangeAt computes the following range for elapsedSeconds under anchor.
func (c *Controller) RangeAt(anchor model.Timestamp, elapsedSeconds float64) Range {
	at := anchor.Time().Add(time.Duration(elapsedSeconds * float64(time.Second)))
	return Range{
		Start: at.Add(-c.config.Before),
		End:   at.Add(c.config.After),
	}
}

// followLocked builds the command for the last sample if the controller
// is following with an anchor and a sample. Must be called with c.mu held.
func (c *Controller) followLocked() (Command, bool) {
	if c.mode != ModeFollowing || c.anchor == nil || !c.sampled {
		return Command{}, false
	}
	c.lastTag++
	r := c.RangeAt(*c.anchor, c.elapsed)
	c.current = r
	c.issued++
	return Command{Range: r, Transition: c.config.Transition, Tag: c.lastTag}, true
}

// selfIssuedLocked reports whether tag belongs to a command this
// controller sent. Must be called with c.mu held.
func (c *Controller) selfIssuedLocked(tag uint64) bool {
	return tag != 0 && tag <= c.lastTag
}

// setModeLocked changes mode and logs the transition. Must be called with
// c.mu held.
func (c *Controller) setModeLocked(mode Mode, reason string) bool {
	if c.mode == mode {
		return false
	}
	old := c.mode
	c.mode = mode
	c.events.Log(log.Event{
		Timestamp: time.Now(),
		Window:    c.config.Window,
		Layer:     log.LayerViewport,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityViewport,
			OldState: old.String(),
			NewState: mode.String(),
			Reason:   reason,
		},
	})
	c.debugLog("mode changed", "from", old, "to", mode, "reason", reason)
	return true
}

func (c *Controller) send(cmd Command) error {
	if err := c.chart.SetVisibleRange(cmd); err != nil {
		c.events.Log(log.Event{
			Timestamp: time.Now(),
			Window:    c.config.Window,
			Layer:     log.LayerViewport,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerViewport,
				Message: err.Error(),
				Context: "set visible range",
			},
		})
		return fmt.Errorf("set visible range %s: %w", cmd.Range, err)
	}
	return nil
}

func (c *Controller) notify(changed bool, mode Mode) {
	if changed && c.config.OnModeChange != nil {
		c.config.OnModeChange(mode)
	}
}

func (c *Controller) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug("viewport: "+msg, args...)
	}
}

func normalize(r Range) Range {
	return Range{Start: r.Start.UTC(), End: r.End.UTC()}
}
