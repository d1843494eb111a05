// Command chronolab runs a video-synced chart session: the state holder,
// the main window with its video player, and the plot window whose
// chart follows the video playhead.
//
// Usage:
//
//	chronolab [run] [flags]
//	chronolab attach [flags] <socket>
//	chronolab log view [flags] <file.clog>
//
// Examples:
//
//	# Run everything in one process with the interactive console
//	chronolab
//
//	# Open a saved session and let other windows connect
//	chronolab run --session flight.crm --listen /tmp/chronolab.sock
//
//	# Attach a second plot window to the running session
//	chronolab attach /tmp/chronolab.sock
//
//	# Capture protocol events and read them back
//	chronolab run --protocol-log session.clog
//	chronolab log view --category stale session.clog
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/CorMazz/chronolab/cmd/chronolab/commands"
	"github.com/CorMazz/chronolab/cmd/chronolab/interactive"
	"github.com/CorMazz/chronolab/cmd/chronolab/sim"
	"github.com/CorMazz/chronolab/pkg/connection"
	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/window"
)

const usage = `chronolab - video-synced chart

Usage:
  chronolab [run] [flags]              Run holder, main window and plot window
  chronolab attach [flags] <socket>    Attach a plot window to a running holder
  chronolab log view [flags] <file>    View a protocol capture

Use "chronolab <command> --help" for more information about a command.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chronolab: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return runApp(nil)
	}

	switch args[0] {
	case "run":
		return runApp(args[1:])
	case "attach":
		return runAttach(args[1:])
	case "log":
		return runLog(args[1:])
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return nil
	default:
		if len(args[0]) > 0 && args[0][0] == '-' {
			return runApp(args)
		}
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseFlags(fs *pflag.FlagSet, args []string) (help bool, err error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

func runApp(args []string) error {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags := addConfigFlags(fs)
	fs.StringVar(&flags.values.Listen, "listen", "", "also serve windows on this unix socket")
	fs.StringVar(&flags.values.Session, "session", "", "open this session file at startup")
	fs.DurationVar(&flags.values.Playhead.Interval, "interval", flags.values.Playhead.Interval, "playhead sampling interval")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	cfg, err := flags.resolve(fs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var console *interactive.Console
	logOut := io.Writer(os.Stderr)
	chartOut := io.Writer(os.Stdout)
	if cfg.Interactive {
		console, err = interactive.New("chronolab> ")
		if err != nil {
			return err
		}
		defer console.Close()
		logOut = console.Stderr()
		chartOut = console.Stdout()
	}

	logger, events, closeLog, err := setupLogging(cfg, logOut)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := AppOptions{ChartOut: chartOut, Events: events, Logger: logger}
	if console != nil {
		opts.Picker = console
		opts.Confirmer = console
		opts.Notifier = console
	}
	app, err := NewApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Listen != "" {
		logger.Info("accepting windows", "socket", cfg.Listen)
	}
	return runUntilDone(ctx, console, app)
}

func runAttach(args []string) error {
	fs := pflag.NewFlagSet("attach", pflag.ContinueOnError)
	flags := addConfigFlags(fs)
	name := fs.String("name", "plot", "window label reported to the holder")
	if help, err := parseFlags(fs, args); help || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: chronolab attach [flags] <socket>")
	}
	cfg, err := flags.resolve(fs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var console *interactive.Console
	logOut := io.Writer(os.Stderr)
	chartOut := io.Writer(os.Stdout)
	if cfg.Interactive {
		console, err = interactive.New(*name + "> ")
		if err != nil {
			return err
		}
		defer console.Close()
		logOut = console.Stderr()
		chartOut = console.Stdout()
	}

	logger, events, closeLog, err := setupLogging(cfg, logOut)
	if err != nil {
		return err
	}
	defer closeLog()

	var notifier window.Notifier = window.LogNotifier{Logger: logger}
	if console != nil {
		notifier = console
	}
	socket := fs.Arg(0)
	session, link := attachLink(socket, *name, cfg, attachOptions{
		ChartOut: chartOut,
		Notifier: notifier,
		Events:   events,
		Logger:   logger,
	})
	defer session.close()
	defer link.Close()
	if err := link.Connect(ctx); err != nil {
		return err
	}

	return runUntilDone(ctx, console, session)
}

// attachOptions carries the collaborators of an attached plot window.
type attachOptions struct {
	ChartOut io.Writer
	Notifier window.Notifier
	Events   log.Logger
	Logger   *slog.Logger
}

// attachLink returns the session of a plot window on the holder at
// socket and the manager that keeps it connected. Nothing is dialled
// until the manager's Connect.
func attachLink(socket, name string, cfg Config, opts attachOptions) (*attached, *connection.Manager) {
	if opts.ChartOut == nil {
		opts.ChartOut = io.Discard
	}
	session := &attached{chart: sim.NewTextChart(opts.ChartOut)}

	connect := func(ctx context.Context) (<-chan struct{}, error) {
		session.close()
		client, err := transport.Dial(ctx, "unix", socket, name,
			transport.ClientConfig{RequestTimeout: cfg.RequestTimeout}, opts.Events)
		if err != nil {
			return nil, err
		}
		plot, err := window.OpenPlot(ctx, window.PlotConfig{
			Transport:   client,
			Chart:       session.chart,
			Viewport:    cfg.viewport(),
			Name:        name,
			Notifier:    opts.Notifier,
			EventLogger: opts.Events,
			Logger:      opts.Logger,
		})
		if err != nil {
			client.Close()
			return nil, err
		}
		session.set(client, plot)
		return client.Done(), nil
	}

	link := connection.NewManager(connect, connection.Config{
		Logger: opts.Logger,
		OnStateChange: func(_, to connection.State) {
			if opts.Logger != nil {
				opts.Logger.Info("holder link", "socket", socket, "state", to)
			}
		},
	})
	return session, link
}

// runUntilDone drives the console, if any, until the user quits or a
// signal arrives.
func runUntilDone(ctx context.Context, console *interactive.Console, session interactive.Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if console != nil {
		console.Bind(session)
		g.Go(func() error {
			console.Run(gctx, cancel)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return console.Close()
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// attached is the session of a plot window connected to a holder in
// another process. The plot window is replaced on every reconnect.
type attached struct {
	chart *sim.TextChart

	mu     sync.Mutex
	client *transport.Client
	plot   *window.Plot
}

func (a *attached) set(client *transport.Client, plot *window.Plot) {
	a.mu.Lock()
	a.client, a.plot = client, plot
	a.mu.Unlock()
	a.chart.OnRangeChange(plot.HandleRangeChange)
}

func (a *attached) close() {
	a.mu.Lock()
	client, plot := a.client, a.plot
	a.client, a.plot = nil, nil
	a.mu.Unlock()

	if plot != nil {
		plot.Close()
	}
	if client != nil {
		client.Close()
	}
}

func (a *attached) Main() *window.Main    { return nil }
func (a *attached) Player() *sim.Player   { return nil }
func (a *attached) Chart() *sim.TextChart { return a.chart }

func (a *attached) Plot() *window.Plot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plot
}

// setupLogging builds the operational logger and the protocol event
// logger. The returned func closes the capture file.
func setupLogging(cfg Config, out io.Writer) (*slog.Logger, log.Logger, func(), error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	var sinks []log.Logger
	closeFn := func() {}
	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open protocol log: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() { fl.Close() }
	}
	if level <= slog.LevelDebug {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}

	var events log.Logger
	switch len(sinks) {
	case 0:
	case 1:
		events = sinks[0]
	default:
		events = log.NewMultiLogger(sinks...)
	}
	return logger, events, closeFn, nil
}

func runLog(args []string) error {
	if len(args) == 0 || args[0] != "view" {
		return errors.New("usage: chronolab log view [flags] <file.clog>")
	}

	fs := pflag.NewFlagSet("log view", pflag.ContinueOnError)
	var opts commands.ViewOptions
	fs.StringVar(&opts.Window, "window", "", "only events of this window")
	fs.StringVar(&opts.Field, "field", "", "only events about this field")
	fs.StringVar(&opts.Layer, "layer", "", "layer: transport, wire, channel, viewport, holder")
	fs.StringVar(&opts.Category, "category", "", "category: message, state, stale, error")
	fs.StringVar(&opts.Since, "since", "", "only events at or after this RFC3339 time")
	fs.StringVar(&opts.Until, "until", "", "only events before this RFC3339 time")
	if help, err := parseFlags(fs, args[1:]); help || err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: chronolab log view [flags] <file.clog>")
	}
	return commands.RunView(fs.Arg(0), opts, os.Stdout)
}
