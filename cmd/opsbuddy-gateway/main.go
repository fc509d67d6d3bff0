package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/ajprasad1994/opsBuddy/internal/app"
	"github.com/ajprasad1994/opsBuddy/internal/config"
	"github.com/ajprasad1994/opsBuddy/internal/log/driver"
	"github.com/ajprasad1994/opsBuddy/pkg/log"
)

var (
	configFile = flag.String("config", "", "Configuration file path (defaults plus environment overrides when empty)")
	version    = flag.Bool("version", false, "Show version information")
)

// Version information, set at build time with -ldflags.
var (
	Version   = "v1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("OpsBuddy Gateway %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	if err := run(*configFile); err != nil {
		stdlog.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closer, err := driver.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() {
		logger.Sync()
		if closer != nil {
			closer.Close()
		}
	}()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize gateway", log.Error(err))
		return err
	}
	defer gateway.Close()

	if err := gateway.Run(ctx); err != nil {
		logger.Error("gateway exited with error", log.Error(err))
		return err
	}
	return nil
}
