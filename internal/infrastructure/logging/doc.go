// Package logging provides structured logging for the AttendAI session daemon.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same shape.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - stdout, stderr, or append-only file output
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, or a file path
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session bootstrapped", "username", user.Username)
//
// # Security
//
// Access and refresh tokens are never logged. Where a token must be
// correlated in a log line, use Redact:
//
//	logger.Debug("token rejected", "token", logging.Redact(token))
package logging
