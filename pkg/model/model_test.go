package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CorMazz/chronolab/pkg/wire"
)

func encode(t *testing.T, v any) wire.RawMessage {
	t.Helper()
	raw, err := wire.EncodeValue(v)
	require.NoError(t, err)
	return raw
}

func TestChangeEventNames(t *testing.T) {
	tests := []struct {
		field Field
		want  string
	}{
		{FieldSaveFilePath, "state-change--save-file-path"},
		{FieldCSVFilePath, "state-change--csv-file-path"},
		{FieldLoadCSVSettings, "state-change--load-csv-settings"},
		{FieldVideoFilePath, "state-change--video-file-path"},
		{FieldIsMultiwindow, "state-change--is-multiwindow"},
		{FieldVideoStartTime, "state-change--video-start-time"},
		{FieldIsModifiedSinceLastSave, "state-change--is-modified-since-last-save"},
	}
	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			if got := tt.field.ChangeEvent(); got != tt.want {
				t.Errorf("ChangeEvent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for _, f := range Fields() {
		assert.True(t, f.IsValid())
		assert.False(t, seen[f.ChangeEvent()], "duplicate event for %s", f)
		seen[f.ChangeEvent()] = true
	}
	assert.Len(t, seen, 7)
}

func TestParseField(t *testing.T) {
	f, err := ParseField("csvFilePath")
	require.NoError(t, err)
	assert.Equal(t, FieldCSVFilePath, f)

	_, err = ParseField("csv_file_path")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		null bool
	}{
		{in: "2024-03-01T12:30:45.250", want: time.Date(2024, 3, 1, 12, 30, 45, 250e6, time.UTC)},
		{in: "2024-03-01T12:30:45.250Z", want: time.Date(2024, 3, 1, 12, 30, 45, 250e6, time.UTC)},
		{in: "2024-03-01T12:30:45", want: time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)},
		{in: "", null: true},
		{in: "Z", null: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			if tt.null {
				assert.Nil(t, ts)
				return
			}
			require.NotNil(t, ts)
			assert.True(t, ts.Time().Equal(tt.want), "got %v", ts.Time())
			assert.Equal(t, time.UTC, ts.Time().Location())
		})
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestTimestampText(t *testing.T) {
	ts := NewTimestamp(time.Date(2024, 3, 1, 7, 0, 0, 5e6, time.FixedZone("EST", -5*3600)))
	assert.Equal(t, "2024-03-01T12:00:00.005", ts.String())

	var zero Timestamp
	assert.Equal(t, "", zero.String())
}

func TestDescriptorDecodeStrings(t *testing.T) {
	path := "/data/run.csv"
	v, err := CSVFilePath.Decode(encode(t, &path))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, path, *v)

	v, err = CSVFilePath.Decode(encode(t, nil))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestVideoStartTimeDecode(t *testing.T) {
	v, err := VideoStartTime.Decode(encode(t, "2024-03-01T12:00:00.000Z"))
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "2024-03-01T12:00:00.000", v.String())

	v, err = VideoStartTime.Decode(encode(t, ""))
	require.NoError(t, err)
	assert.Nil(t, v, "empty string decodes as null")

	_, err = VideoStartTime.Decode(encode(t, "not a time"))
	assert.Error(t, err)
}

func validSettings() *LoadCSVSettings {
	start := MustParseTimestamp("2024-03-01T12:00:00.000")
	end := MustParseTimestamp("2024-03-01T13:00:00.000")
	return &LoadCSVSettings{
		IndexColumn: "timestamp",
		ParseFormat: "%Y-%m-%d %H:%M:%S",
		LoadCols:    []string{"load_kw", "speed"},
		TimeBounds:  &TimeBounds{StartTime: &start, EndTime: &end},
	}
}

func TestLoadCSVSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *LoadCSVSettings)
		want   error
	}{
		{"valid", func(*LoadCSVSettings) {}, nil},
		{"no bounds", func(s *LoadCSVSettings) { s.TimeBounds = nil }, nil},
		{"no index", func(s *LoadCSVSettings) { s.IndexColumn = "" }, ErrNoIndexColumn},
		{"no columns", func(s *LoadCSVSettings) { s.LoadCols = nil }, ErrNoLoadColumns},
		{"index loaded", func(s *LoadCSVSettings) { s.LoadCols = append(s.LoadCols, "timestamp") }, ErrIndexColumnLoaded},
		{"end before start", func(s *LoadCSVSettings) {
			s.TimeBounds.StartTime, s.TimeBounds.EndTime = s.TimeBounds.EndTime, s.TimeBounds.StartTime
		}, ErrInvalidTimeBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tt.want), "got %v", err)
			}
		})
	}
}

func TestCSVSettingsDecode(t *testing.T) {
	s := validSettings()
	got, err := CSVSettings.Decode(encode(t, s))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.LoadCols, got.LoadCols)
	assert.True(t, got.TimeBounds.StartTime.Equal(*s.TimeBounds.StartTime))

	s.LoadCols = nil
	_, err = CSVSettings.Decode(encode(t, s))
	assert.ErrorIs(t, err, ErrNoLoadColumns)
}

func TestCSVSettingsEmptyBoundsBecomeNull(t *testing.T) {
	raw := encode(t, map[string]any{
		"datetime_index_col":             "timestamp",
		"datetime_parsing_format_string": "",
		"load_cols":                      []string{"load_kw"},
		"time_bounds":                    map[string]any{"start_time": "", "end_time": "2024-03-01T13:00:00.000"},
	})
	got, err := CSVSettings.Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, got.TimeBounds)
	assert.Nil(t, got.TimeBounds.StartTime)
	assert.NotNil(t, got.TimeBounds.EndTime)
}

func TestStateSetAndGet(t *testing.T) {
	var s State

	require.NoError(t, s.Set(FieldIsMultiwindow, encode(t, true)))
	v, err := s.Get(FieldIsMultiwindow)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	path := "/videos/run.mp4"
	require.NoError(t, s.Set(FieldVideoFilePath, encode(t, path)))
	require.NotNil(t, s.VideoFilePath)
	assert.Equal(t, path, *s.VideoFilePath)

	err = s.Set(FieldVideoStartTime, encode(t, "garbage"))
	assert.Error(t, err)
	assert.Nil(t, s.VideoStartTime, "failed set leaves state unchanged")

	err = s.Set(Field("nope"), encode(t, 1))
	assert.ErrorIs(t, err, ErrUnknownField)
	_, err = s.Get(Field("nope"))
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestStateJSONRoundTrip(t *testing.T) {
	save := "/sessions/a.crm"
	start := MustParseTimestamp("2024-03-01T12:00:00.000")
	s := State{
		SaveFilePath:    &save,
		LoadCSVSettings: validSettings(),
		VideoStartTime:  &start,
		IsMultiwindow:   true,
	}

	data, err := json.Marshal(&s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"video_start_time":"2024-03-01T12:00:00.000"`)

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	back.Normalize()
	assert.Equal(t, *s.SaveFilePath, *back.SaveFilePath)
	assert.True(t, back.VideoStartTime.Equal(start))
	assert.True(t, back.IsMultiwindow)
}

func TestStateNormalizeEmptyTimestamp(t *testing.T) {
	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"video_start_time":""}`), &s))
	s.Normalize()
	assert.Nil(t, s.VideoStartTime)
}

func TestStateClone(t *testing.T) {
	path := "/a.csv"
	s := State{CSVFilePath: &path, LoadCSVSettings: validSettings()}
	c := s.Clone()

	*c.CSVFilePath = "/b.csv"
	c.LoadCSVSettings.LoadCols[0] = "changed"

	assert.Equal(t, "/a.csv", *s.CSVFilePath)
	assert.Equal(t, "load_kw", s.LoadCSVSettings.LoadCols[0])
}
