package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/CorMazz/chronolab/cmd/chronolab/sim"
	"github.com/CorMazz/chronolab/pkg/clock"
	"github.com/CorMazz/chronolab/pkg/holder"
	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/playhead"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/window"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// Window labels used on the hub.
const (
	mainWindow     = "main"
	embeddedPlot   = "main/plot"
	standalonePlot = "plot"
)

// AppOptions carries the collaborators the console provides.
type AppOptions struct {
	Picker    window.Picker
	Confirmer window.Confirmer
	Notifier  window.Notifier
	Clock     clock.Clock
	ChartOut  io.Writer
	Events    log.Logger
	Logger    *slog.Logger
}

// App runs the holder together with the main and plot windows.
type App struct {
	cfg    Config
	opts   AppOptions
	logger *slog.Logger

	hub    *transport.Hub
	holder *holder.Holder
	server *transport.Server

	player *sim.Player
	chart  *sim.TextChart
	main   *window.Main
	mainEP *transport.Endpoint

	ctx    context.Context
	cancel context.CancelFunc

	reopens sync.WaitGroup

	mu          sync.Mutex
	plot        *window.Plot
	plotEP      *transport.Endpoint
	plotLabel   string
	removeWatch func()
}

// NewApp wires the holder, hub, optional socket server and windows.
func NewApp(ctx context.Context, cfg Config, opts AppOptions) (*App, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ChartOut == nil {
		opts.ChartOut = io.Discard
	}
	events := log.OrNoop(opts.Events)

	a := &App{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
		player: sim.NewPlayer(opts.Clock),
		chart:  sim.NewTextChart(opts.ChartOut),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.hub = transport.NewHub(transport.HubConfig{
		Client: transport.ClientConfig{RequestTimeout: cfg.RequestTimeout},
		Logger: events,
	})

	var broadcaster transport.Broadcaster = a.hub
	if cfg.Listen != "" {
		server, err := transport.NewServer(transport.ServerConfig{
			Handler: transport.RequestHandlerFunc(a.handleRequest),
			Logger:  events,
			OnConnect: func(conn *transport.ServerConn) {
				a.debugLog("window attached", "conn", conn.ConnID())
			},
			OnDisconnect: func(conn *transport.ServerConn) {
				a.debugLog("window detached", "conn", conn.ConnID())
			},
		})
		if err != nil {
			return nil, err
		}
		fanout := transport.Broadcasters{a.hub, server}
		a.server = server
		a.hub.SetFanout(fanout)
		broadcaster = fanout
	}

	h, err := holder.New(holder.Config{Broadcaster: broadcaster, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	a.holder = h
	a.hub.SetHandler(h)

	if err := a.start(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) start(ctx context.Context) error {
	if a.server != nil {
		if err := a.server.Start(a.ctx, "unix", a.cfg.Listen); err != nil {
			return err
		}
		a.debugLog("listening", "socket", a.cfg.Listen)
	}

	if a.cfg.Session != "" {
		if err := a.holder.Load(a.cfg.Session); err != nil {
			return fmt.Errorf("load session %s: %w", a.cfg.Session, err)
		}
	}

	ep, err := a.hub.Connect(mainWindow)
	if err != nil {
		return err
	}
	a.mainEP = ep
	a.main, err = window.OpenMain(ctx, window.MainConfig{
		Transport: ep,
		Picker:    a.opts.Picker,
		Confirmer: a.opts.Confirmer,
		Notifier:  a.opts.Notifier,
		Media:     a.player,
		Playhead: playhead.Config{
			Interval: a.cfg.Playhead.Interval,
			Clock:    a.opts.Clock,
		},
		EventLogger: a.opts.Events,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	if err := a.openPlot(ctx, a.main.State().IsMultiwindow.Value()); err != nil {
		return err
	}
	a.removeWatch = a.main.State().IsMultiwindow.OnChange(a.multiwindowChanged)
	return nil
}

// handleRequest serves socket windows through the holder.
func (a *App) handleRequest(ctx context.Context, req *wire.Request) *wire.Response {
	return a.holder.HandleRequest(ctx, req)
}

// openPlot opens the plot window, on its own endpoint when detached.
func (a *App) openPlot(ctx context.Context, detached bool) error {
	label := embeddedPlot
	if detached {
		label = standalonePlot
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.plot != nil && a.plotLabel == label {
		return nil
	}
	a.closePlotLocked()

	ep, err := a.hub.Connect(label)
	if err != nil {
		return err
	}
	plot, err := window.OpenPlot(ctx, window.PlotConfig{
		Transport:   ep,
		Chart:       a.chart,
		Viewport:    a.cfg.viewport(),
		Name:        label,
		Notifier:    a.opts.Notifier,
		EventLogger: a.opts.Events,
		Logger:      a.logger,
	})
	if err != nil {
		ep.Close()
		return err
	}
	a.chart.OnRangeChange(plot.HandleRangeChange)
	a.plot = plot
	a.plotEP = ep
	a.plotLabel = label
	a.debugLog("plot window opened", "window", label)
	return nil
}

// multiwindowChanged runs on the main window's event goroutine, so the
// reopen happens elsewhere.
func (a *App) multiwindowChanged(detached bool) {
	a.reopens.Add(1)
	go func() {
		defer a.reopens.Done()
		if err := a.openPlot(a.ctx, detached); err != nil && !errors.Is(err, context.Canceled) {
			if a.logger != nil {
				a.logger.Warn("reopen plot window failed", "error", err)
			}
		}
	}()
}

// Main returns the main window.
func (a *App) Main() *window.Main { return a.main }

// Plot returns the current plot window.
func (a *App) Plot() *window.Plot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plot
}

// PlotLabel returns the window label of the current plot window.
func (a *App) PlotLabel() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plotLabel
}

// Player returns the simulated video player.
func (a *App) Player() *sim.Player { return a.player }

// Chart returns the text chart.
func (a *App) Chart() *sim.TextChart { return a.chart }

// Holder returns the holder.
func (a *App) Holder() *holder.Holder { return a.holder }

// Hub returns the in-process hub.
func (a *App) Hub() *transport.Hub { return a.hub }

// Server returns the socket server, or nil without --listen.
func (a *App) Server() *transport.Server { return a.server }

// Close tears down windows, server and hub.
func (a *App) Close() error {
	a.cancel()

	a.mu.Lock()
	if a.removeWatch != nil {
		a.removeWatch()
	}
	a.mu.Unlock()
	a.reopens.Wait()

	var errs []error
	a.mu.Lock()
	errs = append(errs, a.closePlotLocked())
	a.mu.Unlock()
	if a.main != nil {
		errs = append(errs, a.main.Close())
	}
	if a.mainEP != nil {
		errs = append(errs, a.mainEP.Close())
	}
	a.player.Close()
	if a.server != nil {
		errs = append(errs, a.server.Stop())
	}
	errs = append(errs, a.hub.Close())
	return errors.Join(errs...)
}

// closePlotLocked must be called with a.mu held.
func (a *App) closePlotLocked() error {
	if a.plot == nil {
		return nil
	}
	err := errors.Join(a.plot.Close(), a.plotEP.Close())
	a.plot, a.plotEP = nil, nil
	return err
}

func (a *App) debugLog(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
