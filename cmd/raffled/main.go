// Command raffled runs the ticket raffle daemon. It loads configuration,
// validates it, wires dependencies, and serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/alanyoungcy/ticketraffle/internal/app"
	"github.com/alanyoungcy/ticketraffle/internal/config"
	"github.com/alanyoungcy/ticketraffle/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.StringP("config", "c", "config.toml", "path to configuration file (empty for defaults and env only)")
	modeFlag := flag.String("mode", "", "override the configured mode (simulate or live)")
	logLevelFlag := flag.String("log-level", "", "override the configured log level")
	printConfig := flag.Bool("print-config", false, "print the effective configuration with secrets redacted and exit")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}
	if *modeFlag != "" {
		cfg.Mode = *modeFlag
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if *printConfig {
		redacted := config.RedactedConfig(cfg)
		logger.Info("effective configuration", slog.Any("config", redacted))
		return nil
	}

	logger.Info("raffle daemon starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.String("version", version),
	)

	application := app.New(cfg, logger, version)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("raffle daemon stopped")
	return nil
}
