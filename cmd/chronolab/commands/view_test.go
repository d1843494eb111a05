package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CorMazz/chronolab/pkg/log"
	"github.com/CorMazz/chronolab/pkg/wire"
)

var ts = time.Date(2026, 1, 28, 10, 15, 32, 123456000, time.UTC)

func TestFormatMessageEvent(t *testing.T) {
	status := wire.StatusNoSavePath
	processing := 1500 * time.Microsecond
	event := log.Event{
		Timestamp:    ts,
		ConnectionID: "abc12345-6789-0123-4567-890abcdef012",
		Direction:    log.DirectionIn,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Window:       "main",
		Message: &log.MessageEvent{
			Kind:           wire.KindResponse,
			MessageID:      42,
			Status:         &status,
			ProcessingTime: &processing,
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:15:32.123456Z",
		"[main/abc12345]",
		"IN  WIRE RESPONSE",
		"MessageID: 42",
		"Status: NO_SAVE_PATH (4)",
		"Duration: 1.500ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatStaleEvent(t *testing.T) {
	event := log.Event{
		Timestamp: ts,
		Window:    "plot",
		Field:     "csvFilePath",
		Layer:     log.LayerChannel,
		Category:  log.CategoryStale,
		Stale:     &log.StaleWriteEvent{Reason: log.StaleSupersededByPush, PushesSinceFetch: 2},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	for _, want := range []string{"CHANNEL StaleWrite", "Field: csvFilePath", "Reason: superseded-by-push", "Pushes since fetch: 2"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	event := log.Event{
		Timestamp: ts,
		Layer:     log.LayerViewport,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityViewport,
			OldState: "FOLLOWING",
			NewState: "MANUAL",
			Reason:   "user range change",
		},
	}

	var buf bytes.Buffer
	formatEvent(&buf, event)
	output := buf.String()

	if !strings.Contains(output, "FOLLOWING -> MANUAL") {
		t.Errorf("expected transition, got: %s", output)
	}
	if !strings.Contains(output, "Reason: user range change") {
		t.Errorf("expected reason, got: %s", output)
	}
}

func TestRunViewFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.clog")
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Log(log.Event{Timestamp: ts, Window: "main", Layer: log.LayerChannel, Category: log.CategoryError,
		Error: &log.ErrorEventData{Layer: log.LayerChannel, Message: "boom"}})
	logger.Log(log.Event{Timestamp: ts, Window: "plot", Layer: log.LayerChannel, Category: log.CategoryStale,
		Stale: &log.StaleWriteEvent{Reason: log.StaleChannelClosed}})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var buf bytes.Buffer
	if err := RunView(path, ViewOptions{Window: "plot"}, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	output := buf.String()
	if strings.Contains(output, "boom") {
		t.Errorf("main window event should be filtered out:\n%s", output)
	}
	if !strings.Contains(output, "channel-closed") {
		t.Errorf("expected plot event:\n%s", output)
	}

	buf.Reset()
	if err := RunView(path, ViewOptions{Category: "error"}, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	if !strings.Contains(buf.String(), "Message: boom") {
		t.Errorf("expected error event:\n%s", buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.clog"), ViewOptions{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestViewOptionsFilter(t *testing.T) {
	tests := []struct {
		name    string
		opts    ViewOptions
		wantErr bool
	}{
		{"empty", ViewOptions{}, false},
		{"layer", ViewOptions{Layer: "Viewport"}, false},
		{"bad layer", ViewOptions{Layer: "service"}, true},
		{"category", ViewOptions{Category: "stale"}, false},
		{"bad category", ViewOptions{Category: "control"}, true},
		{"since", ViewOptions{Since: "2026-01-28T10:00:00Z"}, false},
		{"bad until", ViewOptions{Until: "yesterday"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Filter()
			if (err != nil) != tt.wantErr {
				t.Errorf("Filter() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Nanosecond, "0.500us"},
		{2500 * time.Microsecond, "2.500ms"},
		{3 * time.Second, "3.000s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
