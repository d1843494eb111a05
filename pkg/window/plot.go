package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CorMazz/chronolab/pkg/appstate"
	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/viewport"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// PlotConfig configures a plot window.
type PlotConfig struct {
	// Transport connects the window to the holder. Required.
	Transport transport.Transport

	// Chart draws the visible range. Required.
	Chart viewport.Chart

	// Viewport configures the follow window. Zero means
	// viewport.DefaultConfig.
	Viewport viewport.Config

	// Name labels log events. Defaults to "plot".
	Name string

	// Notifier reports errors. Defaults to a LogNotifier.
	Notifier Notifier

	// EventLogger receives protocol events (optional).
	EventLogger log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Plot is a chart window that follows the playhead.
type Plot struct {
	state      *appstate.Facade
	controller *viewport.Controller
	notifier   Notifier

	mu      sync.Mutex
	cleanup []func()
	closed  bool
}

// OpenPlot opens a plot window and waits for its initial reads.
func OpenPlot(ctx context.Context, config PlotConfig) (*Plot, error) {
	if config.Transport == nil || config.Chart == nil {
		return nil, errors.New("window: Transport and Chart are required")
	}
	if config.Name == "" {
		config.Name = "plot"
	}
	if config.Notifier == nil {
		config.Notifier = LogNotifier{Logger: config.Logger}
	}
	vc := config.Viewport
	if vc.Before == 0 && vc.After == 0 {
		defaults := viewport.DefaultConfig()
		vc.Before, vc.After = defaults.Before, defaults.After
		if vc.Transition == 0 {
			vc.Transition = defaults.Transition
		}
	}
	if vc.Window == "" {
		vc.Window = config.Name
	}
	if vc.EventLogger == nil {
		vc.EventLogger = config.EventLogger
	}
	if vc.Logger == nil {
		vc.Logger = config.Logger
	}
	controller, err := viewport.New(config.Chart, vc)
	if err != nil {
		return nil, err
	}

	p := &Plot{controller: controller, notifier: config.Notifier}
	p.state = appstate.Open(ctx, config.Transport, appstate.Config{
		CSVFilePath:     appstate.Subscribed,
		LoadCSVSettings: appstate.Subscribed,
		VideoStartTime:  appstate.Subscribed,
		Window:          config.Name,
		Logger:          config.EventLogger,
		OnError: func(err error) {
			p.notifier.Notify(LevelError, fmt.Sprintf("Error reading state: %v", err))
		},
	})

	p.cleanup = append(p.cleanup,
		p.state.VideoStartTime.OnChange(func(anchor *model.Timestamp) {
			p.report("setting anchor", controller.SetAnchor(anchor))
		}),
		config.Transport.Subscribe(wire.VideoTimeChangeEvent, p.handleVideoTime),
	)

	if err := p.state.Wait(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("open %s window: %w", config.Name, err)
	}
	if err := controller.SetAnchor(p.state.VideoStartTime.Value()); err != nil {
		p.report("setting anchor", err)
	}
	return p, nil
}

// State returns the window's view of the session state.
func (p *Plot) State() *appstate.Facade { return p.state }

// Viewport returns the viewport controller.
func (p *Plot) Viewport() *viewport.Controller { return p.controller }

// HandleRangeChange is the chart's range-change callback.
func (p *Plot) HandleRangeChange(ev viewport.RangeChange) {
	p.controller.HandleRangeChange(ev)
}

// SetFollow is the follow toggle.
func (p *Plot) SetFollow(follow bool) error {
	return p.report("following playhead", p.controller.SetFollow(follow))
}

// SetAnchor stores the recording start time. The viewport picks it up
// from the resulting push.
func (p *Plot) SetAnchor(ctx context.Context, anchor *model.Timestamp) error {
	return notifyErr(p.notifier, "setting video start time", p.state.VideoStartTime.Set(ctx, anchor))
}

// SetCSVSettings stores new column-load settings after validating them.
func (p *Plot) SetCSVSettings(ctx context.Context, s *model.LoadCSVSettings) error {
	if s != nil {
		if err := s.Validate(); err != nil {
			return notifyErr(p.notifier, "saving settings", err)
		}
	}
	return notifyErr(p.notifier, "saving settings", p.state.LoadCSVSettings.Set(ctx, s))
}

// Close removes every subscription.
func (p *Plot) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	cleanup := p.cleanup
	p.cleanup = nil
	p.mu.Unlock()

	for _, fn := range cleanup {
		fn()
	}
	return p.state.Close()
}

func (p *Plot) handleVideoTime(raw wire.RawMessage) {
	seconds, err := wire.DecodeValue[float64](raw)
	if err != nil {
		p.report("reading playhead", err)
		return
	}
	p.report("moving chart", p.controller.HandleSample(seconds))
}

func (p *Plot) report(action string, err error) error {
	if err == nil {
		return nil
	}
	p.notifier.Notify(LevelError, fmt.Sprintf("Error %s: %v", action, err))
	return err
}
