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
	"github.com/CorMazz/chronolab/pkg/playhead"
	"github.com/CorMazz/chronolab/pkg/transport"
	"github.com/CorMazz/chronolab/pkg/waiter"
	"github.com/CorMazz/chronolab/pkg/wire"
)

// MainConfig configures the main window.
type MainConfig struct {
	// Transport connects the window to the holder. Required.
	Transport transport.Transport

	// Picker chooses files. Required for the file operations.
	Picker Picker

	// Confirmer guards New and Open when the session is modified. When
	// nil, changes are discarded without asking.
	Confirmer Confirmer

	// Notifier reports results. Defaults to a LogNotifier.
	Notifier Notifier

	// Media loads videos. When nil no playhead samples are published.
	Media MediaOpener

	// Playhead configures the sampling of the attached video.
	Playhead playhead.Config

	// EventLogger receives protocol events (optional).
	EventLogger log.Logger

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Main is the main window: video player and file operations.
type Main struct {
	tr        transport.Transport
	state     *appstate.Facade
	publisher *playhead.Publisher
	picker    Picker
	confirmer Confirmer
	notifier  Notifier
	media     MediaOpener
	logger    *slog.Logger

	mu          sync.Mutex
	videoPath   string
	removeWatch func()
	closed      bool
}

// OpenMain opens the main window and waits for its initial reads.
func OpenMain(ctx context.Context, config MainConfig) (*Main, error) {
	if config.Transport == nil {
		return nil, errors.New("window: Transport is required")
	}
	if config.Notifier == nil {
		config.Notifier = LogNotifier{Logger: config.Logger}
	}
	if config.Playhead.Logger == nil {
		config.Playhead.Logger = config.Logger
	}

	m := &Main{
		tr:        config.Transport,
		picker:    config.Picker,
		confirmer: config.Confirmer,
		notifier:  config.Notifier,
		media:     config.Media,
		logger:    config.Logger,
	}
	m.publisher = playhead.New(playhead.SinkFunc(m.publishSample), config.Playhead)

	stateConfig := appstate.AllFields()
	stateConfig.Window = "main"
	stateConfig.Logger = config.EventLogger
	stateConfig.OnError = func(err error) {
		m.notifier.Notify(LevelError, fmt.Sprintf("Error reading state: %v", err))
	}
	m.state = appstate.Open(ctx, config.Transport, stateConfig)

	m.removeWatch = m.state.VideoFilePath.OnChange(func(path *string) {
		m.playVideo(path)
	})
	if err := m.state.Wait(ctx); err != nil {
		m.Close()
		return nil, fmt.Errorf("open main window: %w", err)
	}
	m.playVideo(m.state.VideoFilePath.Value())
	return m, nil
}

// State returns the window's view of the session state.
func (m *Main) State() *appstate.Facade { return m.state }

// Publisher returns the playhead publisher.
func (m *Main) Publisher() *playhead.Publisher { return m.publisher }

// Close detaches the video and closes every channel.
func (m *Main) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	remove := m.removeWatch
	m.mu.Unlock()

	if remove != nil {
		remove()
	}
	m.publisher.Close()
	return m.state.Close()
}

// playVideo attaches the video at path, or detaches when path is nil.
func (m *Main) playVideo(path *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	next := ""
	if path != nil {
		next = *path
	}
	if next == m.videoPath {
		return
	}
	m.videoPath = next

	if next == "" || m.media == nil {
		m.publisher.Detach()
		return
	}
	src, err := m.media.Open(next)
	if err != nil {
		m.publisher.Detach()
		m.notifier.Notify(LevelError, fmt.Sprintf("Error opening video: %v", err))
		return
	}
	m.publisher.Attach(src)
	m.debugLog("video attached", "path", next)
}

func (m *Main) publishSample(ctx context.Context, s playhead.Sample) error {
	_, err := m.tr.Request(ctx, wire.CmdEmitVideoTime, s.ElapsedSeconds)
	return err
}

// SelectCSV asks for a CSV file and stores its path.
func (m *Main) SelectCSV(ctx context.Context) error {
	return notifyErr(m.notifier, "selecting CSV file", m.selectInto(ctx, FileCSV, m.state.CSVFilePath.Set, "CSV file selected successfully"))
}

// SelectVideo asks for a video file and stores its path.
func (m *Main) SelectVideo(ctx context.Context) error {
	return notifyErr(m.notifier, "selecting video file", m.selectInto(ctx, FileVideo, m.state.VideoFilePath.Set, "Video file selected successfully"))
}

func (m *Main) selectInto(ctx context.Context, kind FileKind, set func(context.Context, *string) error, done string) error {
	path, err := m.pick(ctx, kind, false)
	if err != nil {
		return err
	}
	if err := set(ctx, &path); err != nil {
		return err
	}
	m.notifier.Notify(LevelSuccess, done)
	return nil
}

// SetMultiwindow toggles the detached plot window.
func (m *Main) SetMultiwindow(ctx context.Context, on bool) error {
	return notifyErr(m.notifier, "toggling plot window", m.state.IsMultiwindow.Set(ctx, on))
}

// New resets the session after confirming that unsaved changes may be
// discarded.
func (m *Main) New(ctx context.Context) error {
	err := m.confirmDiscard(ctx)
	if err == nil {
		_, err = m.tr.Request(ctx, wire.CmdClear, nil)
	}
	return notifyErr(m.notifier, "creating new file", err)
}

// Open loads a session file chosen by the user.
func (m *Main) Open(ctx context.Context) error {
	err := m.open(ctx)
	if err == nil {
		m.notifier.Notify(LevelSuccess, "File loaded successfully")
	}
	return notifyErr(m.notifier, "loading file", err)
}

func (m *Main) open(ctx context.Context) error {
	if err := m.confirmDiscard(ctx); err != nil {
		return err
	}
	path, err := m.pick(ctx, FileSession, false)
	if err != nil {
		return err
	}
	_, err = m.tr.Request(ctx, wire.CmdLoad, wire.LoadPayload{Path: path})
	return err
}

// Save writes the session to its save path, asking for one first when
// none is set.
func (m *Main) Save(ctx context.Context) error {
	if m.state.SaveFilePath.Value() == nil {
		return m.SaveAs(ctx)
	}
	_, err := m.tr.Request(ctx, wire.CmdSave, nil)
	if err == nil {
		m.notifier.Notify(LevelSuccess, "File saved")
	}
	return notifyErr(m.notifier, "saving file", err)
}

// SaveAs asks for a save path, waits until the holder has broadcast it,
// then saves.
func (m *Main) SaveAs(ctx context.Context) error {
	err := m.saveAs(ctx)
	if err == nil {
		m.notifier.Notify(LevelSuccess, "File saved")
	}
	return notifyErr(m.notifier, "saving file", err)
}

func (m *Main) saveAs(ctx context.Context) error {
	// Register before setting so the push cannot be missed.
	pending := waiter.Await(m.tr, model.SaveFilePath.ChangeEvent())
	defer pending.Cancel()

	path, err := m.pick(ctx, FileSession, true)
	if err != nil {
		return err
	}
	if err := m.state.SaveFilePath.Set(ctx, &path); err != nil {
		return err
	}
	if _, err := pending.Result(ctx); err != nil {
		return fmt.Errorf("wait for save path: %w", err)
	}
	_, err = m.tr.Request(ctx, wire.CmdSave, nil)
	return err
}

func (m *Main) pick(ctx context.Context, kind FileKind, save bool) (string, error) {
	if m.picker == nil {
		return "", errors.New("no file picker")
	}
	var (
		path string
		err  error
	)
	if save {
		path, err = m.picker.SaveFile(ctx, kind)
	} else {
		path, err = m.picker.OpenFile(ctx, kind)
	}
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", ErrCancelled
	}
	return path, nil
}

func (m *Main) confirmDiscard(ctx context.Context) error {
	if m.confirmer == nil || !m.state.IsModifiedSinceLastSave.Value() {
		return nil
	}
	ok, err := m.confirmer.ConfirmDiscard(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCancelled
	}
	return nil
}

func (m *Main) debugLog(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug("main window: "+msg, args...)
	}
}
