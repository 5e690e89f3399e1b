package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		log.Fatalf("open queue store: %v", err)
	}

	handlers := buildStages(cfg, store, logger)
	manager := workflow.NewManager(cfg, store, logger, handlers...)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("reelforged shutting down")
	d.Stop()
}
