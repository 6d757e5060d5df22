package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/gallery-relay/internal/app"
	"github.com/samvad-hq/gallery-relay/internal/config"
	"github.com/samvad-hq/gallery-relay/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	once := flag.Bool("once", false, "run a single sync cycle and exit")
	markDeleted := flag.Int64("mark-deleted", 0, "mark the stored gallery with this id as deleted and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	logger.InfoObj("relay starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay, err := app.NewRelay(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize relay", "error", err.Error())
		return err
	}
	defer func() {
		if err := relay.Close(); err != nil {
			logger.ErrorObj("relay close failed", "error", err.Error())
		}
	}()

	switch {
	case *markDeleted > 0:
		return relay.MarkDeleted(ctx, *markDeleted)
	case *once:
		return relay.RunOnce(ctx)
	}

	if err := relay.Run(ctx); err != nil {
		return fmt.Errorf("relay run: %w", err)
	}
	return nil
}
