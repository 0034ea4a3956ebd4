package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"practice-ledger/internal/app"
	"practice-ledger/internal/config"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository/postgres"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting ledger event dispatcher...", "transport", cfg.Events.Transport)

	// The server drains the inline bus itself
	if cfg.Events.Transport == "inline" {
		log.Fatalf("Dispatcher needs a rabbitmq or kafka transport, got %q", cfg.Events.Transport)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	bus, err := events.New(cfg.Events)
	if err != nil {
		logger.Error("Failed to initialize events bus", "error", err)
		log.Fatalf("Failed to initialize events bus: %v", err)
	}
	defer bus.Close()

	dispatcher := app.NewDispatcher(cfg, postgres.NewStore(db))

	logger.Info("Dispatcher is consuming events. Press Ctrl+C to stop.")
	if err := bus.Run(ctx, dispatcher.Handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Dispatcher stopped", "error", err)
		log.Fatalf("Dispatcher stopped: %v", err)
	}
	logger.Info("Dispatcher stopped. Goodbye!")
}
