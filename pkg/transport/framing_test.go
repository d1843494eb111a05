package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/CorMazz/chronolab/pkg/log"
)

type bufferRW struct {
	bytes.Buffer
}

func TestFramerRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single byte", []byte{0x42}},
		{"small", []byte("hello")},
		{"binary", []byte{0x00, 0xFF, 0x7F, 0x80}},
		{"max size", bytes.Repeat([]byte("y"), DefaultMaxMessageSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bufferRW
			f := NewFramer(&buf, 0)

			if err := f.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame: %v", err)
			}
			if buf.Len() != LengthPrefixSize+len(tt.payload) {
				t.Errorf("frame size = %d, want %d", buf.Len(), LengthPrefixSize+len(tt.payload))
			}

			got, err := f.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d", len(got), len(tt.payload))
			}
		})
	}
}

func TestFramerErrors(t *testing.T) {
	t.Run("empty write", func(t *testing.T) {
		f := NewFramer(&bufferRW{}, 0)
		if err := f.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
			t.Errorf("got %v, want ErrMessageEmpty", err)
		}
	})

	t.Run("oversized write", func(t *testing.T) {
		f := NewFramer(&bufferRW{}, 8)
		if err := f.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("got %v, want ErrMessageTooLarge", err)
		}
	})

	t.Run("oversized read", func(t *testing.T) {
		var buf bufferRW
		binary.Write(&buf, binary.BigEndian, uint32(100))
		f := NewFramer(&buf, 8)
		if _, err := f.ReadFrame(); !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("got %v, want ErrMessageTooLarge", err)
		}
	})

	t.Run("zero length", func(t *testing.T) {
		var buf bufferRW
		binary.Write(&buf, binary.BigEndian, uint32(0))
		if _, err := NewFramer(&buf, 0).ReadFrame(); !errors.Is(err, ErrMessageEmpty) {
			t.Errorf("got %v, want ErrMessageEmpty", err)
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		var buf bufferRW
		binary.Write(&buf, binary.BigEndian, uint32(10))
		buf.Write([]byte("abc"))
		if _, err := NewFramer(&buf, 0).ReadFrame(); !errors.Is(err, ErrFrameTruncated) {
			t.Errorf("got %v, want ErrFrameTruncated", err)
		}
	})

	t.Run("clean eof", func(t *testing.T) {
		if _, err := NewFramer(&bufferRW{}, 0).ReadFrame(); err != io.EOF {
			t.Errorf("got %v, want io.EOF", err)
		}
	})
}

type captureLogger struct {
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) { c.events = append(c.events, e) }

func TestFramerLogsFrames(t *testing.T) {
	var buf bufferRW
	logger := &captureLogger{}
	f := NewFramer(&buf, 0)
	f.SetLogger(logger, "conn-1", "plot")

	big := bytes.Repeat([]byte{1}, MaxLogFrameDataSize+10)
	if err := f.WriteFrame(big); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := f.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if len(logger.events) != 2 {
		t.Fatalf("got %d events, want 2", len(logger.events))
	}
	out, in := logger.events[0], logger.events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Errorf("directions: %v, %v", out.Direction, in.Direction)
	}
	if !out.Frame.Truncated || len(out.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("frame not truncated: %d bytes", len(out.Frame.Data))
	}
	if out.Frame.Size != LengthPrefixSize+len(big) {
		t.Errorf("Size = %d", out.Frame.Size)
	}
	if out.Window != "plot" || out.ConnectionID != "conn-1" {
		t.Errorf("tags: %q %q", out.ConnectionID, out.Window)
	}
}
