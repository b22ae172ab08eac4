package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vigil-systems/vigil/collector/server"
	"github.com/vigil-systems/vigil/common/config"
	"github.com/vigil-systems/vigil/common/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With("service", "collector")
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("collector failed", logging.Error(err))
		os.Exit(1)
	}
}
