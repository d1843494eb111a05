package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the command completed successfully.
	StatusSuccess Status = 0

	// StatusInvalidCommand indicates the holder does not know the command.
	StatusInvalidCommand Status = 1

	// StatusInvalidField indicates the field name is not in the catalog.
	StatusInvalidField Status = 2

	// StatusInvalidValue indicates the value could not be decoded for the field.
	StatusInvalidValue Status = 3

	// StatusNoSavePath indicates a save was requested without a save file path.
	StatusNoSavePath Status = 4

	// StatusIOError indicates the session file could not be read or written.
	StatusIOError Status = 5

	// StatusInternal indicates an unexpected holder failure.
	StatusInternal Status = 6

	// StatusTimeout indicates the command timed out.
	StatusTimeout Status = 7
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidCommand:
		return "INVALID_COMMAND"
	case StatusInvalidField:
		return "INVALID_FIELD"
	case StatusInvalidValue:
		return "INVALID_VALUE"
	case StatusNoSavePath:
		return "NO_SAVE_PATH"
	case StatusIOError:
		return "IO_ERROR"
	case StatusInternal:
		return "INTERNAL"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
