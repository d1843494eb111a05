package interactive

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CorMazz/chronolab/pkg/appstate"
	"github.com/CorMazz/chronolab/pkg/attribute"
	"github.com/CorMazz/chronolab/pkg/model"
)

// SetField parses text for f and writes it through the facade.
//
// Paths are taken verbatim, "none" clears optional values, and CSV
// settings are given as a YAML flow map:
//
//	set loadCsvSettings {datetime_index_col: time, load_cols: [speed, rpm]}
func SetField(ctx context.Context, state *appstate.Facade, f model.Field, text string) error {
	text = strings.TrimSpace(text)
	switch f {
	case model.FieldSaveFilePath:
		return set(ctx, state.SaveFilePath, f, parsePath(text))
	case model.FieldCSVFilePath:
		return set(ctx, state.CSVFilePath, f, parsePath(text))
	case model.FieldVideoFilePath:
		return set(ctx, state.VideoFilePath, f, parsePath(text))
	case model.FieldLoadCSVSettings:
		s, err := ParseSettings(text)
		if err != nil {
			return err
		}
		return set(ctx, state.LoadCSVSettings, f, s)
	case model.FieldVideoStartTime:
		ts, err := parseTimestamp(text)
		if err != nil {
			return err
		}
		return set(ctx, state.VideoStartTime, f, ts)
	case model.FieldIsMultiwindow, model.FieldIsModifiedSinceLastSave:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", f, text)
		}
		if f == model.FieldIsMultiwindow {
			return set(ctx, state.IsMultiwindow, f, b)
		}
		return set(ctx, state.IsModifiedSinceLastSave, f, b)
	}
	return fmt.Errorf("%w: %s", model.ErrUnknownField, f)
}

func set[T any](ctx context.Context, ch *attribute.Channel[T], f model.Field, v T) error {
	if ch == nil {
		return fmt.Errorf("%s: %w", f, appstate.ErrFieldDisabled)
	}
	return ch.Set(ctx, v)
}

func isNone(text string) bool {
	switch strings.ToLower(text) {
	case "", "none", "null":
		return true
	}
	return false
}

func parsePath(text string) *string {
	if isNone(text) {
		return nil
	}
	return &text
}

func parseTimestamp(text string) (*model.Timestamp, error) {
	if isNone(text) {
		return nil, nil
	}
	return model.ParseTimestamp(text)
}

// ParseSettings decodes CSV settings from YAML and validates them.
func ParseSettings(text string) (*model.LoadCSVSettings, error) {
	if isNone(text) {
		return nil, nil
	}
	var s model.LoadCSVSettings
	if err := yaml.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func parseSwitch(text string) (bool, error) {
	switch strings.ToLower(text) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", text)
}
