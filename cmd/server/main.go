package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcapi "practice-ledger/internal/api/grpc"
	httpapi "practice-ledger/internal/api/http"
	"practice-ledger/internal/app"
	"practice-ledger/internal/config"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository/postgres"
	"practice-ledger/internal/security"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting practice ledger server...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "http", cfg.GetServerAddress(), "grpc", cfg.GetGRPCAddress())
	logger.Info("Events configuration", "transport", cfg.Events.Transport)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	db, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize Storage
	docs, err := app.NewDocumentStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize receipt storage", "error", err)
		log.Fatalf("Failed to initialize receipt storage: %v", err)
	}
	logger.Info("Receipt storage ready", "type", cfg.Storage.Type, "dir", cfg.Storage.ReceiptDir)

	// Initialize Events
	bus, err := events.New(cfg.Events)
	if err != nil {
		logger.Error("Failed to initialize events bus", "error", err)
		log.Fatalf("Failed to initialize events bus: %v", err)
	}

	// The inline bus has no external consumer; drain it in-process.
	if cfg.Events.Transport == "inline" {
		dispatcher := app.NewDispatcher(cfg, store)
		go func() {
			if err := bus.Run(ctx, dispatcher.Handle); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Inline dispatcher stopped", "error", err)
			}
		}()
	}

	// Initialize Services
	registry := app.NewProviderRegistry(cfg, store, docs, app.NewTokenCache(ctx, cfg.Redis))
	svcs := app.NewServices(cfg, store, registry, bus)

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())

	// Set up HTTP server
	router := httpapi.NewRouter(httpapi.Handlers{
		Payments:      httpapi.NewPaymentHandler(svcs.Ledger, svcs.Receipts),
		Clients:       httpapi.NewClientHandler(svcs.Ledger, svcs.Credit),
		Webhooks:      httpapi.NewWebhookHandler(svcs.Webhooks),
		Receipts:      httpapi.NewReceiptHandler(docs),
		Notifications: httpapi.NewNotificationHandler(svcs.Notifications),
	}, tokenManager)
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up gRPC health server
	grpcServer, health := grpcapi.NewServer(tokenManager)
	lis, err := net.Listen("tcp", cfg.GetGRPCAddress())
	if err != nil {
		logger.Error("Failed to listen", "error", err, "address", cfg.GetGRPCAddress())
		log.Fatalf("Failed to listen: %v", err)
	}
	go grpcapi.WatchDatabase(ctx, health, db, 15*time.Second)

	go func() {
		logger.Info("gRPC health server listening", "address", cfg.GetGRPCAddress())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down server...")
	health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	if err := bus.Close(); err != nil {
		logger.Error("Failed to close events bus", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
