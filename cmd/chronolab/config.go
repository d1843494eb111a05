package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/CorMazz/chronolab/pkg/playhead"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/viewport"
)

// Config holds the application configuration. It is read from an
// optional YAML file and then overridden by command-line flags.
type Config struct {
	LogLevel       string        `yaml:"log_level"`
	Listen         string        `yaml:"listen"`
	ProtocolLog    string        `yaml:"protocol_log"`
	Session        string        `yaml:"session"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Interactive    bool          `yaml:"interactive"`

	Playhead PlayheadConfig `yaml:"playhead"`
	Viewport ViewportConfig `yaml:"viewport"`
}

// PlayheadConfig configures sampling of the video position.
type PlayheadConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ViewportConfig configures the chart follow window.
type ViewportConfig struct {
	Before     time.Duration `yaml:"before"`
	After      time.Duration `yaml:"after"`
	Transition time.Duration `yaml:"transition"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	vp := viewport.DefaultConfig()
	return Config{
		LogLevel:       "info",
		RequestTimeout: transport.DefaultRequestTimeout,
		Interactive:    true,
		Playhead:       PlayheadConfig{Interval: playhead.DefaultInterval},
		Viewport: ViewportConfig{
			Before:     vp.Before,
			After:      vp.After,
			Transition: vp.Transition,
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.Playhead.Interval <= 0 {
		return errors.New("playhead.interval must be positive")
	}
	if c.Viewport.Before < 0 || c.Viewport.After < 0 || c.Viewport.Before+c.Viewport.After <= 0 {
		return errors.New("viewport.before + viewport.after must be positive")
	}
	return nil
}

// viewport returns the controller configuration.
func (c Config) viewport() viewport.Config {
	return viewport.Config{
		Before:     c.Viewport.Before,
		After:      c.Viewport.After,
		Transition: c.Viewport.Transition,
	}
}

// configFlags binds the configuration flags shared by run and attach.
type configFlags struct {
	path   string
	values Config
}

func addConfigFlags(fs *pflag.FlagSet) *configFlags {
	f := &configFlags{values: DefaultConfig()}
	fs.StringVar(&f.path, "config", "", "YAML configuration file")
	fs.StringVar(&f.values.LogLevel, "log-level", f.values.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&f.values.ProtocolLog, "protocol-log", "", "write protocol events to this .clog file")
	fs.DurationVar(&f.values.RequestTimeout, "request-timeout", f.values.RequestTimeout, "timeout for holder requests")
	fs.BoolVarP(&f.values.Interactive, "interactive", "i", f.values.Interactive, "run the interactive console")
	fs.DurationVar(&f.values.Viewport.Before, "before", f.values.Viewport.Before, "chart window before the playhead")
	fs.DurationVar(&f.values.Viewport.After, "after", f.values.Viewport.After, "chart window after the playhead")
	fs.DurationVar(&f.values.Viewport.Transition, "transition", f.values.Viewport.Transition, "chart range transition")
	return f
}

// resolve loads the config file, if any, and applies the flags the user
// set explicitly on top of it.
func (f *configFlags) resolve(fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()
	if f.path != "" {
		loaded, err := LoadConfig(f.path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	overrides := map[string]func(){
		"log-level":       func() { cfg.LogLevel = f.values.LogLevel },
		"protocol-log":    func() { cfg.ProtocolLog = f.values.ProtocolLog },
		"request-timeout": func() { cfg.RequestTimeout = f.values.RequestTimeout },
		"interactive":     func() { cfg.Interactive = f.values.Interactive },
		"before":          func() { cfg.Viewport.Before = f.values.Viewport.Before },
		"after":           func() { cfg.Viewport.After = f.values.Viewport.After },
		"transition":      func() { cfg.Viewport.Transition = f.values.Viewport.Transition },
		"listen":          func() { cfg.Listen = f.values.Listen },
		"session":         func() { cfg.Session = f.values.Session },
		"interval":        func() { cfg.Playhead.Interval = f.values.Playhead.Interval },
	}
	fs.Visit(func(flag *pflag.Flag) {
		if apply, ok := overrides[flag.Name]; ok {
			apply()
		}
	})
	return cfg, cfg.Validate()
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q (use debug, info, warn, error)", s)
	}
}
