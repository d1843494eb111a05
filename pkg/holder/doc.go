// Package holder owns the canonical session state.
//
// The Holder is the only writer of every field. Windows read and write
// it through requests; every accepted change is announced to all windows
// with a push event named after the field (state-change--<field>), which
// is the only way a window learns a field's new value.
//
// Commands:
//
//	get_app_state_field        {field}          -> value
//	set_app_state_field        {field, value}   -> nothing; pushes field and modified flag
//	clear_app_state            -                -> nothing; pushes every field
//	save_app_state_to_file     -                -> nothing; pushes modified flag
//	load_app_state_from_file   {path}           -> nothing; pushes every field
//	emit_video_time_change     seconds          -> nothing; pushes video-time-change
package holder
