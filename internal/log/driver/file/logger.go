package file

import (
	"fmt"
	"io"

	"github.com/ajprasad1994/opsBuddy/internal/log/driver/stdout"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config represents the configuration for a rotating file logger.
type Config struct {
	Level      log.Level
	Format     string
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// FileLogger writes zap-encoded entries to a lumberjack-rotated file.
type FileLogger struct {
	*stdout.StdoutLogger
	rotator *lumberjack.Logger
}

var _ io.Closer = (*FileLogger)(nil)

// New creates a file logger. The file and its directory are created on first write.
func New(cfg Config) (*FileLogger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	base := stdout.DefaultConfig()
	base.Level = cfg.Level
	if cfg.Format != "" {
		base.Format = cfg.Format
	}
	base.Output = zapcore.AddSync(rotator)

	logger, err := stdout.New(base)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}

	return &FileLogger{StdoutLogger: logger, rotator: rotator}, nil
}

// Close flushes and closes the current log file.
func (l *FileLogger) Close() error {
	_ = l.Sync()
	return l.rotator.Close()
}
