// Package log provides structured protocol logging for chronolab.
//
// This package defines the Logger interface and Event types for capturing
// state-synchronization events at multiple layers (transport, wire,
// attribute channel, viewport). It is separate from operational logging
// (slog): protocol capture provides a complete machine-readable trace of
// every request, push and discarded reply for debugging cross-window
// consistency problems.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For later analysis: write to a binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/tmp/chronolab.clog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Wire: Decoded messages (MessageEvent)
//   - Channel: Discarded fetch replies (StaleWriteEvent)
//   - Viewport/Channel/Connection: State changes (StateChangeEvent)
//
// Errors have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with the .clog extension. `chronolab log view`
// prints them.
package log
