// Package logger defines the logging seam used by the core packages. The
// zerolog implementation lives in infra/logger.
package logger

// Logger is the leveled logger every core component takes in its
// constructor.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger is the structured-fields subset of Logger, for
// call sites that only emit key-value records.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
}
