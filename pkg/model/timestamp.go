package model

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the text form of a Timestamp on the wire and on disk.
const TimestampLayout = "2006-01-02T15:04:05.000"

// parseLayout accepts any number of fractional digits, including none.
const parseLayout = "2006-01-02T15:04:05"

// Timestamp is a naive wall-clock instant, always held in UTC.
// The zero Timestamp stands for "no time".
type Timestamp struct {
	t time.Time
}

// NewTimestamp converts t to UTC, keeping millisecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC().Truncate(time.Millisecond)}
}

// ParseTimestamp parses the text form. A trailing Z is accepted and
// ignored. The empty string yields nil.
func ParseTimestamp(s string) (*Timestamp, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(parseLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	ts := NewTimestamp(t)
	return &ts, nil
}

// MustParseTimestamp is like ParseTimestamp but panics on error.
// Intended for tests and constants.
func MustParseTimestamp(s string) Timestamp {
	ts, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	if ts == nil {
		return Timestamp{}
	}
	return *ts
}

// Time returns the instant as a UTC time.Time.
func (ts Timestamp) Time() time.Time { return ts.t }

// IsZero reports whether ts is the zero Timestamp.
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// Add returns ts shifted by d.
func (ts Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp{t: ts.t.Add(d)}
}

// Sub returns ts - other.
func (ts Timestamp) Sub(other Timestamp) time.Duration {
	return ts.t.Sub(other.t)
}

// Before reports whether ts is before other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// Equal reports whether ts and other are the same instant.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

// String returns the text form, or "" for the zero Timestamp.
func (ts Timestamp) String() string {
	if ts.IsZero() {
		return ""
	}
	return ts.t.Format(TimestampLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (ts Timestamp) MarshalText() ([]byte, error) {
	return []byte(ts.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Empty text leaves the zero Timestamp.
func (ts *Timestamp) UnmarshalText(text []byte) error {
	parsed, err := ParseTimestamp(string(text))
	if err != nil {
		return err
	}
	if parsed == nil {
		*ts = Timestamp{}
		return nil
	}
	*ts = *parsed
	return nil
}

// nullIfZero maps a decoded empty timestamp back to nil.
func nullIfZero(ts *Timestamp) *Timestamp {
	if ts == nil || ts.IsZero() {
		return nil
	}
	return ts
}
