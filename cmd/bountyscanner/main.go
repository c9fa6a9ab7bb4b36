package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"BountyScanner/internal/app"
	"BountyScanner/internal/config"
	"BountyScanner/internal/logging"
)

func main() {
	mode := flag.String("mode", "", "collect|digest|bootstrap|langs|test-digest|run (default from config/MODE)")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	selected := *mode
	if selected == "" {
		selected = cfg.Mode
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("application startup failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx, selected)
	if closeErr := application.Close(); closeErr != nil {
		logger.Warn().Err(closeErr).Msg("store close failed")
	}
	if runErr != nil {
		logger.Error().Err(runErr).Str("mode", selected).Msg("application stopped")
		os.Exit(1)
	}
}
