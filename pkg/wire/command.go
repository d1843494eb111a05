package wire

// Command names a holder operation. The names match the commands the
// desktop backend has always exposed so saved tooling keeps working.
type Command string

const (
	// CmdGetField reads one field. Payload: FieldPayload without Value.
	CmdGetField Command = "get_app_state_field"

	// CmdSetField writes one field. Payload: FieldPayload.
	CmdSetField Command = "set_app_state_field"

	// CmdClear resets the session to defaults and broadcasts every field.
	CmdClear Command = "clear_app_state"

	// CmdSave writes the session to the current save file path.
	CmdSave Command = "save_app_state_to_file"

	// CmdLoad replaces the session from a file. Payload: LoadPayload.
	CmdLoad Command = "load_app_state_from_file"

	// CmdEmitVideoTime broadcasts a playhead position. Payload: float64 seconds.
	CmdEmitVideoTime Command = "emit_video_time_change"
)

// VideoTimeChangeEvent is broadcast for every published playhead sample.
const VideoTimeChangeEvent = "video-time-change"

// String returns the command name.
func (c Command) String() string {
	return string(c)
}

// IsKnown returns true if the holder implements the command.
func (c Command) IsKnown() bool {
	switch c {
	case CmdGetField, CmdSetField, CmdClear, CmdSave, CmdLoad, CmdEmitVideoTime:
		return true
	default:
		return false
	}
}
