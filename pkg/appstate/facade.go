package appstate

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/CorMazz/chronolab/pkg/attribute"
	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/transport"
)

// FieldConfig selects whether a field is opened and whether it follows
// pushes.
type FieldConfig struct {
	Enabled   bool
	Subscribe bool
}

// Config selects the fields a facade opens.
type Config struct {
	SaveFilePath            FieldConfig
	CSVFilePath             FieldConfig
	LoadCSVSettings         FieldConfig
	VideoFilePath           FieldConfig
	IsMultiwindow           FieldConfig
	VideoStartTime          FieldConfig
	IsModifiedSinceLastSave FieldConfig

	// Window labels log events.
	Window string

	// Logger receives protocol events from every channel (optional).
	Logger log.Logger

	// OnError is called with read failures from any channel (optional).
	OnError func(error)
}

// Subscribed enables and subscribes a field.
var Subscribed = FieldConfig{Enabled: true, Subscribe: true}

// AllFields returns a Config with every field enabled and subscribed.
func AllFields() Config {
	return Config{
		SaveFilePath:            Subscribed,
		CSVFilePath:             Subscribed,
		LoadCSVSettings:         Subscribed,
		VideoFilePath:           Subscribed,
		IsMultiwindow:           Subscribed,
		VideoStartTime:          Subscribed,
		IsModifiedSinceLastSave: Subscribed,
	}
}

// Field returns the configuration for f.
func (c Config) Field(f model.Field) FieldConfig {
	switch f {
	case model.FieldSaveFilePath:
		return c.SaveFilePath
	case model.FieldCSVFilePath:
		return c.CSVFilePath
	case model.FieldLoadCSVSettings:
		return c.LoadCSVSettings
	case model.FieldVideoFilePath:
		return c.VideoFilePath
	case model.FieldIsMultiwindow:
		return c.IsMultiwindow
	case model.FieldVideoStartTime:
		return c.VideoStartTime
	case model.FieldIsModifiedSinceLastSave:
		return c.IsModifiedSinceLastSave
	}
	return FieldConfig{}
}

// ErrFieldDisabled is returned when a facade is asked for a field its
// Config did not enable.
var ErrFieldDisabled = errors.New("field not enabled")

// channel is the untyped view of an attribute.Channel.
type channel interface {
	Name() string
	Loading() bool
	Wait(ctx context.Context) error
	Close() error
}

// Facade holds one channel per enabled field. Channels of disabled
// fields are nil.
type Facade struct {
	SaveFilePath            *attribute.Channel[*string]
	CSVFilePath             *attribute.Channel[*string]
	LoadCSVSettings         *attribute.Channel[*model.LoadCSVSettings]
	VideoFilePath           *attribute.Channel[*string]
	IsMultiwindow           *attribute.Channel[bool]
	VideoStartTime          *attribute.Channel[*model.Timestamp]
	IsModifiedSinceLastSave *attribute.Channel[bool]

	channels map[model.Field]channel
}

// Open opens a channel for every enabled field in config. Initial reads
// run in the background; use Wait to block until they resolve.
func Open(ctx context.Context, tr transport.Transport, config Config) *Facade {
	f := &Facade{channels: make(map[model.Field]channel)}

	f.SaveFilePath = openField(ctx, f, tr, config, model.SaveFilePath)
	f.CSVFilePath = openField(ctx, f, tr, config, model.CSVFilePath)
	f.LoadCSVSettings = openField(ctx, f, tr, config, model.CSVSettings)
	f.VideoFilePath = openField(ctx, f, tr, config, model.VideoFilePath)
	f.IsMultiwindow = openField(ctx, f, tr, config, model.IsMultiwindow)
	f.VideoStartTime = openField(ctx, f, tr, config, model.VideoStartTime)
	f.IsModifiedSinceLastSave = openField(ctx, f, tr, config, model.IsModifiedSinceLastSave)
	return f
}

func openField[T any](ctx context.Context, f *Facade, tr transport.Transport, config Config, desc model.Descriptor[T]) *attribute.Channel[T] {
	fc := config.Field(desc.Field)
	if !fc.Enabled {
		return nil
	}
	ch := attribute.Open(ctx, tr, desc, attribute.Options{
		Subscribe: fc.Subscribe,
		Window:    config.Window,
		Logger:    config.Logger,
		OnError:   config.OnError,
	})
	f.channels[desc.Field] = ch
	return ch
}

// Enabled reports whether field was opened.
func (f *Facade) Enabled(field model.Field) bool {
	_, ok := f.channels[field]
	return ok
}

// Fields returns the opened fields in catalog order.
func (f *Facade) Fields() []model.Field {
	var out []model.Field
	for _, field := range model.Fields() {
		if f.Enabled(field) {
			out = append(out, field)
		}
	}
	return out
}

// Loading reports whether any channel has a read outstanding.
func (f *Facade) Loading() bool {
	for _, ch := range f.channels {
		if ch.Loading() {
			return true
		}
	}
	return false
}

// FieldLoading reports whether field has a read outstanding.
func (f *Facade) FieldLoading(field model.Field) (bool, error) {
	ch, ok := f.channels[field]
	if !ok {
		return false, ErrFieldDisabled
	}
	return ch.Loading(), nil
}

// Wait blocks until every initial read has resolved and returns the
// first failure.
func (f *Facade) Wait(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range f.channels {
		g.Go(func() error { return ch.Wait(ctx) })
	}
	return g.Wait()
}

// Close closes every channel.
func (f *Facade) Close() error {
	var errs []error
	for _, ch := range f.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
