// Package driver builds the process logger selected by configuration.
package driver

import (
	"fmt"
	"io"

	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/internal/log/driver/file"
	"github.com/ajprasad1994/opsBuddy/internal/log/driver/stdout"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

// New creates the logger described by cfg. The returned closer is nil for stdout output.
func New(cfg config.LoggingConfig) (log.Logger, io.Closer, error) {
	level, ok := log.ParseLevel(cfg.Level)
	if !ok {
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	switch cfg.Output {
	case "", "stdout":
		sc := stdout.DefaultConfig()
		sc.Level = level
		if cfg.Format != "" {
			sc.Format = cfg.Format
		}
		logger, err := stdout.New(sc)
		if err != nil {
			return nil, nil, err
		}
		return logger, nil, nil
	case "file":
		logger, err := file.New(file.Config{
			Level:      level,
			Format:     cfg.Format,
			Path:       cfg.File.Path,
			MaxSize:    cfg.File.MaxSize,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAge,
			Compress:   cfg.File.Compress,
		})
		if err != nil {
			return nil, nil, err
		}
		return logger, logger, nil
	default:
		return nil, nil, fmt.Errorf("unsupported log output: %s", cfg.Output)
	}
}
