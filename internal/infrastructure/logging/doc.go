// Package logging provides structured logging for the Gray Logic thermostat service.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Per-thermostat debug override (DebugSwitch)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("thermostat attached", "thermostat", id)
//
//	var sw logging.DebugSwitch
//	hall := logger.WithDebugSwitch(&sw).With("thermostat", id)
//	sw.Set(true) // hall now logs at debug level
package logging
