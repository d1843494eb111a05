package model

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ChangeEventPrefix prefixes every field's push event name.
const ChangeEventPrefix = "state-change--"

// ErrUnknownField is returned for field names outside the catalog.
var ErrUnknownField = errors.New("unknown field")

// Field is the camelCase name of one attribute of the session state.
type Field string

// Session fields.
const (
	FieldSaveFilePath            Field = "saveFilePath"
	FieldCSVFilePath             Field = "csvFilePath"
	FieldLoadCSVSettings         Field = "loadCsvSettings"
	FieldVideoFilePath           Field = "videoFilePath"
	FieldIsMultiwindow           Field = "isMultiwindow"
	FieldVideoStartTime          Field = "videoStartTime"
	FieldIsModifiedSinceLastSave Field = "isModifiedSinceLastSave"
)

// fieldOrder is the broadcast order used when the whole state changes.
var fieldOrder = []Field{
	FieldSaveFilePath,
	FieldCSVFilePath,
	FieldLoadCSVSettings,
	FieldVideoFilePath,
	FieldVideoStartTime,
	FieldIsMultiwindow,
	FieldIsModifiedSinceLastSave,
}

// Fields returns every field in broadcast order.
func Fields() []Field {
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// String returns the field name.
func (f Field) String() string {
	return string(f)
}

// IsValid reports whether f is part of the catalog.
func (f Field) IsValid() bool {
	for _, known := range fieldOrder {
		if f == known {
			return true
		}
	}
	return false
}

// ParseField validates a field name received from the wire.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f, nil
}

// ChangeEvent returns the push event name for the field,
// e.g. "state-change--csv-file-path".
func (f Field) ChangeEvent() string {
	return ChangeEventPrefix + kebab(string(f))
}

// kebab converts a camelCase identifier to kebab-case.
func kebab(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
