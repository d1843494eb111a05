package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CorMazz/chronolab/pkg/playhead"
)

// ErrCancelled is returned when the user backs out of an operation.
var ErrCancelled = errors.New("cancelled by user")

// FileKind selects the file filter for a Picker.
type FileKind uint8

const (
	FileCSV FileKind = iota
	FileVideo
	FileSession
)

var extensions = map[FileKind][]string{
	FileCSV:     {"csv"},
	FileVideo:   {"mp4", "mkv", "mov", "avi", "wmv", "flv", "f4v", "webm", "avchd", "ogv", "m4v"},
	FileSession: {"crm"},
}

// String returns the kind's display name.
func (k FileKind) String() string {
	switch k {
	case FileCSV:
		return "CSV File"
	case FileVideo:
		return "Video File"
	case FileSession:
		return "Chronolab Save File"
	default:
		return fmt.Sprintf("FileKind(%d)", k)
	}
}

// Extensions returns the file extensions offered for the kind.
func (k FileKind) Extensions() []string {
	return append([]string(nil), extensions[k]...)
}

// Picker chooses files. An empty path with a nil error means the user
// cancelled.
type Picker interface {
	OpenFile(ctx context.Context, kind FileKind) (string, error)
	SaveFile(ctx context.Context, kind FileKind) (string, error)
}

// Confirmer asks the user whether unsaved changes may be discarded.
type Confirmer interface {
	ConfirmDiscard(ctx context.Context) (bool, error)
}

// MediaOpener loads a video for playback.
type MediaOpener interface {
	Open(path string) (playhead.MediaSource, error)
}

// Level is the severity of a notification.
type Level uint8

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

// Notify calls f.
func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// LogNotifier writes notifications to a slog.Logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs message at a level matching l.
func (n LogNotifier) Notify(l Level, message string) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if l == LevelError {
		logger.Error(message)
		return
	}
	logger.Info(message, "level", l.String())
}

// notifyErr reports err unless it is ErrCancelled, and returns it.
func notifyErr(n Notifier, action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) {
		n.Notify(LevelInfo, action+" cancelled")
		return err
	}
	n.Notify(LevelError, fmt.Sprintf("Error %s: %v", action, err))
	return err
}
