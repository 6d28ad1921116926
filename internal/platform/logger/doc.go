// Package logger configures structured logging for the relay services.
//
// It builds on log/slog to emit JSON records with a configurable level, and
// installs the result as the process-wide default logger.
package logger
