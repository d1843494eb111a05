// Package interactive provides the command console of the chronolab
// binary.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/CorMazz/chronolab/cmd/chronolab/sim"
	"github.com/CorMazz/chronolab/pkg/appstate"
	"github.com/CorMazz/chronolab/pkg/attribute"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/window"
)

// ErrUnavailable is returned for commands the current window cannot run.
var ErrUnavailable = errors.New("not available in this window")

// Session is what the console drives. Main and Player are nil for a
// plot window attached to a remote holder.
type Session interface {
	Main() *window.Main
	Plot() *window.Plot
	Player() *sim.Player
	Chart() *sim.TextChart
}

// PromptFunc reads one line after showing prompt.
type PromptFunc func(prompt string) (string, error)

// Console handles interactive mode. It also serves as the file picker,
// discard confirmer and notifier of the windows it drives.
type Console struct {
	rl     *readline.Instance
	out    io.Writer
	prompt PromptFunc

	mu      sync.Mutex
	session Session
}

// New creates a console reading from the terminal.
func New(prompt string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{rl: rl, out: rl.Stdout()}
	c.prompt = func(p string) (string, error) {
		old := rl.Config.Prompt
		rl.SetPrompt(p)
		defer rl.SetPrompt(old)
		return rl.Readline()
	}
	return c, nil
}

// NewScripted creates a console without a terminal. Prompts are
// answered by prompt and output goes to out.
func NewScripted(out io.Writer, prompt PromptFunc) *Console {
	return &Console{out: out, prompt: prompt}
}

// Bind sets the session the commands act on.
func (c *Console) Bind(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// Stdout returns a writer that properly coordinates with the readline input.
func (c *Console) Stdout() io.Writer { return c.out }

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	if c.rl != nil {
		return c.rl.Stderr()
	}
	return c.out
}

// Close releases the terminal.
func (c *Console) Close() error {
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Execute(ctx, line) {
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should
// exit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.cmdStatus()
	case "get", "g":
		err = c.cmdGet(args)
	case "set":
		err = c.cmdSet(ctx, args)
	case "csv":
		err = c.withMain(func(m *window.Main) error { return m.SelectCSV(ctx) })
	case "video":
		err = c.withMain(func(m *window.Main) error { return m.SelectVideo(ctx) })
	case "play":
		err = c.withPlayer(func(p *sim.Player) error { return p.Play() })
	case "pause":
		err = c.withPlayer(func(p *sim.Player) error { p.Pause(); return nil })
	case "seek":
		err = c.cmdSeek(args)
	case "anchor":
		err = c.cmdAnchor(ctx, args)
	case "follow":
		err = c.cmdFollow(args)
	case "pan":
		err = c.cmdPan(args)
	case "multiwindow":
		err = c.cmdMultiwindow(ctx, args)
	case "new":
		err = c.withMain(func(m *window.Main) error { return m.New(ctx) })
	case "open":
		err = c.withMain(func(m *window.Main) error { return m.Open(ctx) })
	case "save":
		err = c.withMain(func(m *window.Main) error { return m.Save(ctx) })
	case "saveas":
		err = c.withMain(func(m *window.Main) error { return m.SaveAs(ctx) })
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	// Window operations report through Notify; the rest print here.
	if err != nil && !reported(cmd) {
		fmt.Fprintf(c.out, "Error: %v\n", err)
	}
	return false
}

func reported(cmd string) bool {
	switch cmd {
	case "csv", "video", "new", "open", "save", "saveas":
		return true
	}
	return false
}

// OpenFile implements window.Picker.
func (c *Console) OpenFile(_ context.Context, kind window.FileKind) (string, error) {
	return c.ask(fmt.Sprintf("open %s (%s)> ", kind, strings.Join(kind.Extensions(), ", ")))
}

// SaveFile implements window.Picker.
func (c *Console) SaveFile(_ context.Context, kind window.FileKind) (string, error) {
	return c.ask(fmt.Sprintf("save %s as> ", kind))
}

func (c *Console) ask(prompt string) (string, error) {
	line, err := c.prompt(prompt)
	if err != nil {
		return "", window.ErrCancelled
	}
	return strings.TrimSpace(line), nil
}

// ConfirmDiscard implements window.Confirmer.
func (c *Console) ConfirmDiscard(context.Context) (bool, error) {
	line, err := c.prompt("Unsaved changes will be lost. Continue? [y/N] ")
	if err != nil {
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Notify implements window.Notifier.
func (c *Console) Notify(level window.Level, message string) {
	fmt.Fprintf(c.out, "[%s] %s\n", level, message)
}

func (c *Console) current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Console) withMain(fn func(*window.Main) error) error {
	s := c.current()
	if s == nil || s.Main() == nil {
		return ErrUnavailable
	}
	return fn(s.Main())
}

func (c *Console) withPlayer(fn func(*sim.Player) error) error {
	s := c.current()
	if s == nil || s.Player() == nil {
		return ErrUnavailable
	}
	return fn(s.Player())
}

func (c *Console) withPlot(fn func(*window.Plot) error) error {
	s := c.current()
	if s == nil || s.Plot() == nil {
		return ErrUnavailable
	}
	return fn(s.Plot())
}

// state returns the facade of the main window, or of the plot window
// when there is no main window.
func (c *Console) state() (*appstate.Facade, error) {
	s := c.current()
	switch {
	case s == nil:
		return nil, ErrUnavailable
	case s.Main() != nil:
		return s.Main().State(), nil
	case s.Plot() != nil:
		return s.Plot().State(), nil
	}
	return nil, ErrUnavailable
}

func (c *Console) cmdGet(args []string) error {
	state, err := c.state()
	if err != nil {
		return err
	}
	fields := model.Fields()
	if len(args) > 0 {
		f, err := model.ParseField(args[0])
		if err != nil {
			return err
		}
		fields = []model.Field{f}
	}
	for _, f := range fields {
		if !state.Enabled(f) {
			if len(args) > 0 {
				return fmt.Errorf("%s: %w", f, appstate.ErrFieldDisabled)
			}
			continue
		}
		fmt.Fprintf(c.out, "  %-24s %s\n", f, FormatField(state, f))
	}
	return nil
}

func (c *Console) cmdSet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: set <field> <value>")
	}
	f, err := model.ParseField(args[0])
	if err != nil {
		return err
	}
	state, err := c.state()
	if err != nil {
		return err
	}
	return SetField(ctx, state, f, strings.Join(args[1:], " "))
}

func (c *Console) cmdSeek(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: seek <seconds>")
	}
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid position %q", args[0])
	}
	return c.withPlayer(func(p *sim.Player) error { return p.Seek(seconds) })
}

func (c *Console) cmdAnchor(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: anchor <YYYY-MM-DDTHH:MM:SS[.fff]|none>")
	}
	ts, err := parseTimestamp(args[0])
	if err != nil {
		return err
	}
	return c.withPlot(func(p *window.Plot) error { return p.SetAnchor(ctx, ts) })
}

func (c *Console) cmdFollow(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: follow on|off")
	}
	on, err := parseSwitch(args[0])
	if err != nil {
		return err
	}
	return c.withPlot(func(p *window.Plot) error { return p.SetFollow(on) })
}

func (c *Console) cmdPan(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: pan <duration>, e.g. pan -5s")
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return err
	}
	s := c.current()
	if s == nil || s.Chart() == nil {
		return ErrUnavailable
	}
	s.Chart().Pan(d)
	return nil
}

func (c *Console) cmdMultiwindow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: multiwindow on|off")
	}
	on, err := parseSwitch(args[0])
	if err != nil {
		return err
	}
	return c.withMain(func(m *window.Main) error { return m.SetMultiwindow(ctx, on) })
}

func (c *Console) cmdStatus() {
	s := c.current()
	if s == nil {
		fmt.Fprintln(c.out, "No session.")
		return
	}

	if p := s.Player(); p != nil {
		pos, err := p.CurrentTime()
		switch {
		case err != nil:
			fmt.Fprintln(c.out, "Video:    none")
		case p.Playing():
			fmt.Fprintf(c.out, "Video:    %s playing at %.3fs\n", p.Path(), pos)
		default:
			fmt.Fprintf(c.out, "Video:    %s paused at %.3fs\n", p.Path(), pos)
		}
	}

	if plot := s.Plot(); plot != nil {
		vp := plot.Viewport()
		fmt.Fprintf(c.out, "Viewport: %s\n", vp.Mode())
		if a := vp.Anchor(); a != nil {
			fmt.Fprintf(c.out, "Anchor:   %s\n", a)
		} else {
			fmt.Fprintln(c.out, "Anchor:   none")
		}
		if cur := vp.Current(); !cur.Start.IsZero() {
			fmt.Fprintf(c.out, "Range:    %s\n", cur)
		}
	}

	if state, err := c.state(); err == nil {
		if state.Enabled(model.FieldIsModifiedSinceLastSave) {
			fmt.Fprintf(c.out, "Modified: %s\n", FormatField(state, model.FieldIsModifiedSinceLastSave))
		}
		if state.Loading() {
			fmt.Fprintln(c.out, "Loading:  yes")
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  get [field]            Show one or all fields
  set <field> <value>    Set a field (none clears a path or time)
  csv | video            Choose the CSV or video file
  play | pause           Control the video
  seek <seconds>         Jump to a position
  anchor <time|none>     Set the video start time
  follow on|off          Follow the playhead on the chart
  pan <duration>         Drag the chart, e.g. pan -5s
  multiwindow on|off     Show the chart in its own window
  new | open             Start a new session or open a session file
  save | saveas          Save the session
  status                 Show player and chart state
  quit                   Exit`)
}

// FormatField renders the current value of f.
func FormatField(state *appstate.Facade, f model.Field) string {
	switch f {
	case model.FieldSaveFilePath:
		return formatValue(state.SaveFilePath, formatPath)
	case model.FieldCSVFilePath:
		return formatValue(state.CSVFilePath, formatPath)
	case model.FieldLoadCSVSettings:
		return formatValue(state.LoadCSVSettings, formatSettings)
	case model.FieldVideoFilePath:
		return formatValue(state.VideoFilePath, formatPath)
	case model.FieldIsMultiwindow:
		return formatValue(state.IsMultiwindow, strconv.FormatBool)
	case model.FieldVideoStartTime:
		return formatValue(state.VideoStartTime, formatTimestamp)
	case model.FieldIsModifiedSinceLastSave:
		return formatValue(state.IsModifiedSinceLastSave, strconv.FormatBool)
	}
	return "?"
}

func formatValue[T any](ch *attribute.Channel[T], format func(T) string) string {
	if ch == nil {
		return "(disabled)"
	}
	if ch.Loading() {
		return "(loading)"
	}
	if err := ch.Err(); err != nil {
		return fmt.Sprintf("(error: %v)", err)
	}
	return format(ch.Value())
}

func formatPath(p *string) string {
	if p == nil {
		return "none"
	}
	return *p
}

func formatTimestamp(ts *model.Timestamp) string {
	if ts == nil || ts.IsZero() {
		return "none"
	}
	return ts.String()
}

func formatSettings(s *model.LoadCSVSettings) string {
	if s == nil {
		return "none"
	}
	out := fmt.Sprintf("index=%s cols=%s", s.IndexColumn, strings.Join(s.LoadCols, ","))
	if s.ParseFormat != "" {
		out += " format=" + s.ParseFormat
	}
	if b := s.TimeBounds; b != nil {
		out += fmt.Sprintf(" from=%s to=%s", formatTimestamp(b.StartTime), formatTimestamp(b.EndTime))
	}
	return out
}
