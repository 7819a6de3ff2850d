// Package log provides protocol capture for IPbus clients.
//
// This package defines the Logger interface and Event types for recording
// what a client put on the wire and what came back. It is separate from
// operational logging (slog): a capture is a complete machine-readable trace
// of packets, connection state changes and failures.
//
// # Basic Usage
//
// Clients are configured with a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/uhal/board.ucap")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw packet bytes (FrameEvent) and connection state
//   - Packing: packet summaries (PacketEvent)
//   - Client: dispatch outcomes and errors
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with a .ucap extension.
// The uhal-log tool provides viewing, filtering and export.
package log
