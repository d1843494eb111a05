// Package model defines the shared session state replicated between the
// holder and every window.
//
// Each field of the session has exactly one Descriptor. A descriptor names
// the field, the push event the holder emits when the field changes, the
// value a window shows before its first read completes, and how a raw wire
// payload turns into the typed value.
//
//	saveFilePath             *string
//	csvFilePath              *string
//	loadCsvSettings          *LoadCSVSettings
//	videoFilePath            *string
//	isMultiwindow            bool
//	videoStartTime           *Timestamp
//	isModifiedSinceLastSave  bool
//
// Timestamps are naive wall-clock times normalized to UTC. They travel as
// text in the form 2006-01-02T15:04:05.000 with an optional trailing Z.
package model
