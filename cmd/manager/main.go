package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"defi-position-manager/internal/logger"
	"defi-position-manager/internal/trace"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dryRun := flag.Bool("dry-run", false, "force DRY_RUN mode regardless of config")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		os.Exit(1)
	}
	if *dryRun {
		cfg.Mode = "DRY_RUN"
	}

	compressOldLogs(ctx)

	loop, err := buildLoop(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to build monitor", err)
		os.Exit(1)
	}

	loop.Run(ctx)

	logger.Info(context.Background(), "Shutting down")
	_ = trace.Shutdown(context.Background())
}
