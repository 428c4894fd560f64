// Package logging provides structured logging configuration for mocklane.
//
// This package wraps log/slog to provide consistent operational logging
// across all components. It is the developer-facing channel: startup,
// shutdown, sink failures and expression timeouts. The user-facing record of
// dispatched requests lives in package eventlog, which mirrors each event
// onto a logger built here.
//
// # Usage
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("server started", "port", 4000)
//	logger.Error("failed to rotate log file", "error", err)
//
// # Log Levels
//
// Four levels are supported: debug, info, warn and error. ParseLevel is
// lenient and falls back to info; LookupLevel rejects unknown names and is
// used when validating configuration. LevelName gives the lower-case name
// written into event records.
//
// # Output Formats
//
//   - Text: Human-readable format for development
//   - JSON: Structured format for log aggregation systems
//
// # Disabling Logging
//
// Components default to Nop() until a logger is supplied.
package logging
