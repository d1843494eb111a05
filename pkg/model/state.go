package model

import (
	"fmt"

	"github.com/CorMazz/chronolab/pkg/wire"
)

// State is the complete session state. Only the holder keeps one; windows
// see it field by field through push events.
type State struct {
	SaveFilePath            *string          `json:"save_file_path"`
	CSVFilePath             *string          `json:"csv_file_path"`
	LoadCSVSettings         *LoadCSVSettings `json:"load_csv_settings"`
	VideoFilePath           *string          `json:"video_file_path"`
	VideoStartTime          *Timestamp       `json:"video_start_time"`
	IsMultiwindow           bool             `json:"is_multiwindow"`
	IsModifiedSinceLastSave bool             `json:"is_modified_since_last_save"`
}

// Get returns the current value of f.
func (s *State) Get(f Field) (any, error) {
	switch f {
	case FieldSaveFilePath:
		return s.SaveFilePath, nil
	case FieldCSVFilePath:
		return s.CSVFilePath, nil
	case FieldLoadCSVSettings:
		return s.LoadCSVSettings, nil
	case FieldVideoFilePath:
		return s.VideoFilePath, nil
	case FieldVideoStartTime:
		return s.VideoStartTime, nil
	case FieldIsMultiwindow:
		return s.IsMultiwindow, nil
	case FieldIsModifiedSinceLastSave:
		return s.IsModifiedSinceLastSave, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
}

// Set decodes raw with the field's descriptor and stores the result.
// On error the state is unchanged.
func (s *State) Set(f Field, raw wire.RawMessage) error {
	var err error
	switch f {
	case FieldSaveFilePath:
		err = assign(&s.SaveFilePath, SaveFilePath, raw)
	case FieldCSVFilePath:
		err = assign(&s.CSVFilePath, CSVFilePath, raw)
	case FieldLoadCSVSettings:
		err = assign(&s.LoadCSVSettings, CSVSettings, raw)
	case FieldVideoFilePath:
		err = assign(&s.VideoFilePath, VideoFilePath, raw)
	case FieldVideoStartTime:
		err = assign(&s.VideoStartTime, VideoStartTime, raw)
	case FieldIsMultiwindow:
		err = assign(&s.IsMultiwindow, IsMultiwindow, raw)
	case FieldIsModifiedSinceLastSave:
		err = assign(&s.IsModifiedSinceLastSave, IsModifiedSinceLastSave, raw)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	return err
}

func assign[T any](dst *T, d Descriptor[T], raw wire.RawMessage) error {
	v, err := d.Decode(raw)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// Normalize maps empty timestamps read from a session file to nil.
func (s *State) Normalize() {
	s.VideoStartTime = nullIfZero(s.VideoStartTime)
	s.LoadCSVSettings.normalize()
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := *s
	out.SaveFilePath = clonePtr(s.SaveFilePath)
	out.CSVFilePath = clonePtr(s.CSVFilePath)
	out.VideoFilePath = clonePtr(s.VideoFilePath)
	out.VideoStartTime = clonePtr(s.VideoStartTime)
	out.LoadCSVSettings = s.LoadCSVSettings.Clone()
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
