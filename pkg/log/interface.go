package log

import (
	"context"
	"time"
)

// Logger defines the interface for structured logging operations.
// Implementations must be safe for concurrent use.
//
// Example usage:
//
//	logger.Info("request forwarded", String(FieldService, "file"), Duration(FieldLatency, d))
//	reqLogger := logger.With(String(FieldRequestID, id))
//	reqLogger.Error("backend unreachable", Error(err))
type Logger interface {
	// Debug logs a debug message with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs an informational message with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional structured fields.
	Error(msg string, fields ...Field)

	// Fatal logs a fatal message with optional structured fields and exits the program.
	// Only startup code should call it.
	Fatal(msg string, fields ...Field)

	// With creates a child logger that includes the provided fields in every entry.
	With(fields ...Field) Logger

	// WithContext creates a child logger carrying request-scoped values found in ctx,
	// such as the request ID.
	WithContext(ctx context.Context) Logger

	// Sync flushes buffered entries.
	Sync() error
}

// Level represents the logging level. Lower values are more verbose.
type Level int

const (
	// DebugLevel is the most verbose logging level.
	DebugLevel Level = iota
	// InfoLevel is used for general informational messages.
	InfoLevel
	// WarnLevel is used for conditions worth attention that are not failures.
	WarnLevel
	// ErrorLevel is used for failures.
	ErrorLevel
	// FatalLevel is used right before the process exits.
	FatalLevel
)

// String returns the string representation of the logging level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string ("debug", "info", ...) into a Level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn", "warning":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	case "fatal":
		return FatalLevel, true
	default:
		return InfoLevel, false
	}
}

// Field represents a structured logging field with a key-value pair.
type Field struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// String creates a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field.
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field.
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a duration field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Error creates an error field using "error" as the key.
func Error(err error) Field {
	return Field{Key: FieldError, Value: err}
}

// Any creates a field with any value type.
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}
