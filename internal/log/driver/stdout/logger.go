package stdout

import (
	"context"
	"os"
	"time"

	"github.com/ajprasad1994/opsBuddy/pkg/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// StdoutLogger implements log.Logger on top of zap.
type StdoutLogger struct {
	zapLogger *zap.Logger
	config    *Config
}

// Config represents the configuration options for StdoutLogger.
type Config struct {
	// Level sets the minimum logging level
	Level log.Level `json:"level"`

	// Format selects the encoder: "json" (default) or "console"
	Format string `json:"format"`

	// TimeFormat specifies the time layout for timestamps. Default: RFC3339
	TimeFormat string `json:"time_format,omitempty"`

	// EnableCaller adds caller information to log entries
	EnableCaller bool `json:"enable_caller"`

	// EnableStacktrace adds stack traces for error and fatal levels
	EnableStacktrace bool `json:"enable_stacktrace"`

	// Output is where entries are written. Nil means os.Stdout.
	Output zapcore.WriteSyncer `json:"-"`
}

// DefaultConfig returns a default configuration for StdoutLogger.
func DefaultConfig() *Config {
	return &Config{
		Level:            log.InfoLevel,
		Format:           "json",
		TimeFormat:       time.RFC3339,
		EnableStacktrace: true,
	}
}

// New creates a new StdoutLogger with the given configuration.
func New(config *Config) (*StdoutLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     getTimeEncoder(config.TimeFormat),
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	output := config.Output
	if output == nil {
		output = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, output, convertLogLevel(config.Level))

	var options []zap.Option
	if config.EnableCaller {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &StdoutLogger{
		zapLogger: zap.New(core, options...),
		config:    config,
	}, nil
}

// Debug logs a debug message with optional structured fields.
func (l *StdoutLogger) Debug(msg string, fields ...log.Field) {
	l.zapLogger.Debug(msg, convertToZapFields(fields)...)
}

// Info logs an informational message with optional structured fields.
func (l *StdoutLogger) Info(msg string, fields ...log.Field) {
	l.zapLogger.Info(msg, convertToZapFields(fields)...)
}

// Warn logs a warning message with optional structured fields.
func (l *StdoutLogger) Warn(msg string, fields ...log.Field) {
	l.zapLogger.Warn(msg, convertToZapFields(fields)...)
}

// Error logs an error message with optional structured fields.
func (l *StdoutLogger) Error(msg string, fields ...log.Field) {
	l.zapLogger.Error(msg, convertToZapFields(fields)...)
}

// Fatal logs a fatal message and exits the program.
func (l *StdoutLogger) Fatal(msg string, fields ...log.Field) {
	l.zapLogger.Fatal(msg, convertToZapFields(fields)...)
}

// With creates a new logger instance with additional structured fields.
func (l *StdoutLogger) With(fields ...log.Field) log.Logger {
	return &StdoutLogger{
		zapLogger: l.zapLogger.With(convertToZapFields(fields)...),
		config:    l.config,
	}
}

// WithContext attaches the request ID carried by ctx, if any.
func (l *StdoutLogger) WithContext(ctx context.Context) log.Logger {
	requestID := log.RequestIDFromContext(ctx)
	if requestID == "" {
		return l
	}
	return l.With(log.String(log.FieldRequestID, requestID))
}

// Sync flushes buffered entries.
func (l *StdoutLogger) Sync() error {
	return l.zapLogger.Sync()
}

// convertLogLevel converts log.Level to zapcore.Level.
func convertLogLevel(level log.Level) zapcore.Level {
	switch level {
	case log.DebugLevel:
		return zapcore.DebugLevel
	case log.InfoLevel:
		return zapcore.InfoLevel
	case log.WarnLevel:
		return zapcore.WarnLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	case log.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func convertToZapFields(fields []log.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = convertToZapField(field)
	}
	return zapFields
}

func convertToZapField(field log.Field) zap.Field {
	switch v := field.Value.(type) {
	case string:
		return zap.String(field.Key, v)
	case int:
		return zap.Int(field.Key, v)
	case int64:
		return zap.Int64(field.Key, v)
	case float64:
		return zap.Float64(field.Key, v)
	case bool:
		return zap.Bool(field.Key, v)
	case time.Time:
		return zap.Time(field.Key, v)
	case time.Duration:
		return zap.Duration(field.Key, v)
	case error:
		return zap.NamedError(field.Key, v)
	default:
		return zap.Any(field.Key, v)
	}
}

// getTimeEncoder returns the appropriate time encoder based on the layout.
func getTimeEncoder(format string) zapcore.TimeEncoder {
	switch format {
	case "", time.RFC3339:
		return zapcore.RFC3339TimeEncoder
	case time.RFC3339Nano:
		return zapcore.RFC3339NanoTimeEncoder
	default:
		return zapcore.TimeEncoderOfLayout(format)
	}
}
