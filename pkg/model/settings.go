package model

import (
	"errors"
	"slices"
)

// Settings validation errors.
var (
	ErrNoIndexColumn     = errors.New("an x-axis column must be set")
	ErrNoLoadColumns     = errors.New("at least one column must be chosen for the y-axis")
	ErrIndexColumnLoaded = errors.New("datetime index column cannot be included in the load columns")
	ErrInvalidTimeBounds = errors.New("end time must be after start time")
)

// LoadCSVSettings selects which columns of the time-series table are
// loaded and how its index column is parsed.
type LoadCSVSettings struct {
	IndexColumn string      `cbor:"datetime_index_col" json:"datetime_index_col" yaml:"datetime_index_col"`
	ParseFormat string      `cbor:"datetime_parsing_format_string" json:"datetime_parsing_format_string" yaml:"datetime_parsing_format_string"`
	LoadCols    []string    `cbor:"load_cols" json:"load_cols" yaml:"load_cols"`
	TimeBounds  *TimeBounds `cbor:"time_bounds" json:"time_bounds" yaml:"time_bounds,omitempty"`
}

// TimeBounds optionally restricts the loaded rows to a time range.
type TimeBounds struct {
	StartTime *Timestamp `cbor:"start_time" json:"start_time" yaml:"start_time,omitempty"`
	EndTime   *Timestamp `cbor:"end_time" json:"end_time" yaml:"end_time,omitempty"`
}

// Validate checks the settings the same way the settings form does.
func (s *LoadCSVSettings) Validate() error {
	if s.IndexColumn == "" {
		return ErrNoIndexColumn
	}
	if len(s.LoadCols) == 0 {
		return ErrNoLoadColumns
	}
	if slices.Contains(s.LoadCols, s.IndexColumn) {
		return ErrIndexColumnLoaded
	}
	if b := s.TimeBounds; b != nil && b.StartTime != nil && b.EndTime != nil {
		if !b.StartTime.Before(*b.EndTime) {
			return ErrInvalidTimeBounds
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *LoadCSVSettings) Clone() *LoadCSVSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.LoadCols = slices.Clone(s.LoadCols)
	if s.TimeBounds != nil {
		b := *s.TimeBounds
		out.TimeBounds = &b
	}
	return &out
}

func (s *LoadCSVSettings) normalize() {
	if s == nil || s.TimeBounds == nil {
		return
	}
	s.TimeBounds.StartTime = nullIfZero(s.TimeBounds.StartTime)
	s.TimeBounds.EndTime = nullIfZero(s.TimeBounds.EndTime)
}
