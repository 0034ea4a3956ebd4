package jobs

import (
	"context"
	"time"

	"practice-ledger/internal/config"
	"practice-ledger/internal/events"
	"practice-ledger/internal/logger"
	"practice-ledger/internal/repository"
	"practice-ledger/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	repos    Repositories
	services *Services
	config   *config.Config
	now      func() time.Time
}

// Repositories holds the data access the jobs read and append to
type Repositories struct {
	Accounts repository.AccountRepository
	Payments repository.PaymentRepository
	CommLogs repository.CommunicationLogRepository
}

// Services holds all service dependencies needed by jobs
type Services struct {
	Email    service.EmailSender
	Receipts service.ReceiptService
	Events   events.Publisher
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(repos Repositories, services *Services, cfg *config.Config) *JobRunner {
	return &JobRunner{
		repos:    repos,
		services: services,
		config:   cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	jobFunc(context.Background())
	logger.Info("Job completed", "job", jobName, "duration", time.Since(start))
}

// RunAllDailyJobs runs every scheduled job once (for manual execution)
func (jr *JobRunner) RunAllDailyJobs() {
	jr.SendDebtReminders()
	jr.RetryMissingReceipts()
}
