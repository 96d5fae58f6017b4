// Package log provides structured protocol event logging for mesh nodes.
//
// This package defines the Logger interface and Event types for capturing
// what a node sends, receives and decides: model messages at the bearer
// and model layers, and state changes of the model handlers (announce
// scheduler phases, tracker cache promotions, suppressions and evictions).
// It is separate from operational logging (slog); the protocol trace is a
// complete machine-readable record for debugging and analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For field captures: write to a binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/csrmesh/node.clog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys. Use
// Reader with a Filter to iterate over them.
package log
