package model

import (
	"fmt"

	"github.com/CorMazz/chronolab/pkg/wire"
)

// Descriptor describes one field of the session state for a consumer
// that knows its Go type. Descriptors are defined once, below, and never
// modified.
type Descriptor[T any] struct {
	Field   Field
	Default T

	// Parse converts a raw payload into T. When nil the payload is decoded
	// directly into T.
	Parse func(raw wire.RawMessage) (T, error)
}

// Name returns the field name.
func (d Descriptor[T]) Name() string { return string(d.Field) }

// ChangeEvent returns the push event name for the field.
func (d Descriptor[T]) ChangeEvent() string { return d.Field.ChangeEvent() }

// Decode turns a raw payload into the field's typed value.
func (d Descriptor[T]) Decode(raw wire.RawMessage) (T, error) {
	if d.Parse != nil {
		return d.Parse(raw)
	}
	v, err := wire.DecodeValue[T](raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", d.Field, err)
	}
	return v, nil
}

// The field catalog.
var (
	SaveFilePath = Descriptor[*string]{Field: FieldSaveFilePath}
	CSVFilePath  = Descriptor[*string]{Field: FieldCSVFilePath}
	CSVSettings  = Descriptor[*LoadCSVSettings]{
		Field: FieldLoadCSVSettings,
		Parse: parseSettings,
	}
	VideoFilePath  = Descriptor[*string]{Field: FieldVideoFilePath}
	IsMultiwindow  = Descriptor[bool]{Field: FieldIsMultiwindow}
	VideoStartTime = Descriptor[*Timestamp]{
		Field: FieldVideoStartTime,
		Parse: parseTimestamp,
	}
	IsModifiedSinceLastSave = Descriptor[bool]{Field: FieldIsModifiedSinceLastSave}
)

func parseSettings(raw wire.RawMessage) (*LoadCSVSettings, error) {
	s, err := wire.DecodeValue[*LoadCSVSettings](raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", FieldLoadCSVSettings, err)
	}
	if s == nil {
		return nil, nil
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseTimestamp(raw wire.RawMessage) (*Timestamp, error) {
	ts, err := wire.DecodeValue[*Timestamp](raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", FieldVideoStartTime, err)
	}
	return nullIfZero(ts), nil
}
