package holder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CorMazz/chronolab/pkg/model"
	"github.com/CorMazz/chronolab/pkg/persistence"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// Holder errors.
var (
	ErrNoSavePath   = errors.New("save file path is not specified")
	ErrInvalidValue = errors.New("invalid value")
)

// SessionStore persists the state to session files.
// Implemented by persistence.SessionStore.
type SessionStore interface {
	Save(path string, state *model.State) error
	Load(path string) (*model.State, error)
}

// Config configures a Holder.
type Config struct {
	// Store reads and writes session files. Defaults to a
	// persistence.SessionStore.
	Store SessionStore

	// Broadcaster delivers push events to windows. Required.
	Broadcaster transport.Broadcaster

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Holder owns SharedSessionState and serves window requests.
type Holder struct {
	store       SessionStore
	broadcaster transport.Broadcaster
	logger      *slog.Logger

	// mu also orders pushes: every change is broadcast before the next
	// change is applied, so all windows see changes in the same order.
	mu    sync.Mutex
	state model.State
}

// New creates a holder with default state.
func New(config Config) (*Holder, error) {
	if config.Broadcaster == nil {
		return nil, errors.New("holder: Broadcaster is required")
	}
	if config.Store == nil {
		config.Store = persistence.NewSessionStore()
	}
	return &Holder{
		store:       config.Store,
		broadcaster: config.Broadcaster,
		logger:      config.Logger,
	}, nil
}

// Snapshot returns a copy of the current state.
func (h *Holder) Snapshot() *model.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone()
}

// Get returns the current value of one field.
func (h *Holder) Get(f model.Field) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Get(f)
}

// Set decodes and stores one field, then pushes it. Any field other
// than the modified flag also marks the state modified.
func (h *Holder) Set(f model.Field, raw wire.RawMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !f.IsValid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownField, f)
	}
	if err := h.state.Set(f, raw); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidValue, f, err)
	}
	h.debugLog("field set", "field", f)
	h.push(f)

	if f != model.FieldIsModifiedSinceLastSave {
		h.setModified(true)
	}
	return nil
}

// Clear resets the state to defaults and pushes every field.
func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = model.State{}
	h.debugLog("state cleared")
	h.pushAll()
}

// Save writes the state to the current save path.
func (h *Holder) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.SaveFilePath == nil || *h.state.SaveFilePath == "" {
		return ErrNoSavePath
	}
	path := *h.state.SaveFilePath

	// The file records the state as it will be once saved.
	saved := h.state.Clone()
	saved.IsModifiedSinceLastSave = false
	if err := h.store.Save(path, saved); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	h.debugLog("state saved", "path", path)
	h.setModified(false)
	return nil
}

// Load replaces the state with the session at path. The save path is
// set to path so a moved file saves back to where it was opened from.
func (h *Holder) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	loaded, err := h.store.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	// Windows reject settings that fail validation, so the holder must too.
	if s := loaded.LoadCSVSettings; s != nil {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("load %s: %w: %s: %w", path, ErrInvalidValue, model.FieldLoadCSVSettings, err)
		}
	}
	loaded.SaveFilePath = &path
	loaded.IsModifiedSinceLastSave = false
	h.state = *loaded

	h.debugLog("state loaded", "path", path)
	h.pushAll()
	return nil
}

// EmitVideoTime broadcasts a playhead sample to every window.
func (h *Holder) EmitVideoTime(seconds float64) error {
	return h.broadcaster.Broadcast(wire.VideoTimeChangeEvent, seconds)
}

func (h *Holder) setModified(modified bool) {
	h.state.IsModifiedSinceLastSave = modified
	h.push(model.FieldIsModifiedSinceLastSave)
}

// push broadcasts one field's current value. Must be called with h.mu held.
func (h *Holder) push(f model.Field) {
	value, err := h.state.Get(f)
	if err != nil {
		return
	}
	if err := h.broadcaster.Broadcast(f.ChangeEvent(), value); err != nil && h.logger != nil {
		h.logger.Warn("push failed", "field", f, "error", err)
	}
}

// pushAll broadcasts every field. Must be called with h.mu held.
func (h *Holder) pushAll() {
	for _, f := range model.Fields() {
		h.push(f)
	}
}

func (h *Holder) debugLog(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

// HandleRequest implements transport.RequestHandler.
func (h *Holder) HandleRequest(_ context.Context, req *wire.Request) *wire.Response {
	switch req.Command {
	case wire.CmdGetField:
		return h.handleGet(req)
	case wire.CmdSetField:
		return h.handleSet(req)
	case wire.CmdClear:
		h.Clear()
		return ok(nil)
	case wire.CmdSave:
		return result(h.Save())
	case wire.CmdLoad:
		p, err := wire.DecodeValue[wire.LoadPayload](req.Payload)
		if err != nil || p.Path == "" {
			return fail(wire.StatusInvalidValue, "load requires a path")
		}
		return result(h.Load(p.Path))
	case wire.CmdEmitVideoTime:
		seconds, err := wire.DecodeValue[float64](req.Payload)
		if err != nil {
			return fail(wire.StatusInvalidValue, err.Error())
		}
		if err := h.EmitVideoTime(seconds); err != nil {
			return fail(wire.StatusInternal, err.Error())
		}
		return ok(nil)
	}
	return fail(wire.StatusInvalidCommand, fmt.Sprintf("unknown command %q", req.Command))
}

func (h *Holder) handleGet(req *wire.Request) *wire.Response {
	p, err := wire.DecodeValue[wire.FieldPayload](req.Payload)
	if err != nil {
		return fail(wire.StatusInvalidValue, err.Error())
	}
	value, err := h.Get(model.Field(p.Field))
	if err != nil {
		return fail(wire.StatusInvalidField, err.Error())
	}
	raw, err := wire.EncodeValue(value)
	if err != nil {
		return fail(wire.StatusInternal, err.Error())
	}
	return ok(raw)
}

func (h *Holder) handleSet(req *wire.Request) *wire.Response {
	p, err := wire.DecodeValue[wire.FieldPayload](req.Payload)
	if err != nil {
		return fail(wire.StatusInvalidValue, err.Error())
	}
	return result(h.Set(model.Field(p.Field), p.Value))
}

func ok(payload wire.RawMessage) *wire.Response {
	return &wire.Response{Status: wire.StatusSuccess, Payload: payload}
}

func fail(status wire.Status, msg string) *wire.Response {
	return &wire.Response{Status: status, Message: msg}
}

// result maps a holder error onto a response status.
func result(err error) *wire.Response {
	switch {
	case err == nil:
		return ok(nil)
	case errors.Is(err, model.ErrUnknownField):
		return fail(wire.StatusInvalidField, err.Error())
	case errors.Is(err, ErrInvalidValue):
		return fail(wire.StatusInvalidValue, err.Error())
	case errors.Is(err, ErrNoSavePath):
		return fail(wire.StatusNoSavePath, err.Error())
	case errors.Is(err, persistence.ErrSessionNotFound):
		return fail(wire.StatusIOError, err.Error())
	}
	return fail(wire.StatusIOError, err.Error())
}

var _ transport.RequestHandler = (*Holder)(nil)
