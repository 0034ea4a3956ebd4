package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"practice-ledger/internal/app"
	"practice-ledger/internal/config"
	"practice-ledger/internal/events"
	"practice-ledger/internal/jobs"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository/postgres"
	"practice-ledger/internal/scheduler"
	"practice-ledger/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'send-debt-reminders', 'all-daily')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting ledger cronjob runner...", "log_level", cfg.Log.Level)

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

	docs, err := app.NewDocumentStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize receipt storage", "error", err)
		log.Fatalf("Failed to initialize receipt storage: %v", err)
	}

	bus, err := events.New(cfg.Events)
	if err != nil {
		logger.Error("Failed to initialize events bus", "error", err)
		log.Fatalf("Failed to initialize events bus: %v", err)
	}
	defer bus.Close()
	if cfg.Events.Transport == "inline" {
		go bus.Run(ctx, app.NewDispatcher(cfg, store).Handle)
	}

	// Initialize Services
	registry := app.NewProviderRegistry(cfg, store, docs, app.NewTokenCache(ctx, cfg.Redis))
	svcs := app.NewServices(cfg, store, registry, bus)

	jobServices := &jobs.Services{
		Email:    service.NewEmailSender(cfg.Email),
		Receipts: svcs.Receipts,
		Events:   bus,
	}
	jobRepos := jobs.Repositories{
		Accounts: store.AccountRepository,
		Payments: store.PaymentRepository,
		CommLogs: store.CommunicationLogRepository,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobRepos, jobServices, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to initialize scheduler", "error", err)
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "send-debt-reminders":
		jobRunner.SendDebtReminders()
	case "retry-missing-receipts":
		jobRunner.RetryMissingReceipts()
	case "all-daily":
		jobRunner.RunAllDailyJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - send-debt-reminders\n")
		fmt.Printf("  - retry-missing-receipts\n")
		fmt.Printf("  - all-daily\n")
		os.Exit(1)
	}
}
