// Package logging provides structured logging for the irrigation controller.
//
// It wraps log/slog so every component logs the same way:
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Operators observe controller failures only through these logs, so per-message
// errors carry topic, stage and payload fields. Never log broker or database
// passwords.
package logging
