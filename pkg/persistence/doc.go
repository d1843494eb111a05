// Package persistence reads and writes chronolab session files.
//
// A session file is the holder's complete state serialized as indented
// JSON, conventionally with the .crm extension. Field names are
// snake_case so files written by earlier releases still load.
package persistence
