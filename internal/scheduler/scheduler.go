package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"

	"practice-ledger/internal/config"
	"practice-ledger/internal/logger"
)

// Runner is the set of jobs the scheduler triggers. *jobs.JobRunner implements it.
type Runner interface {
	Config() *config.Config
	SendDebtReminders()
	RetryMissingReceipts()
}

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs Runner
}

// NewScheduler creates a new scheduler with the provided job runner
func NewScheduler(jobRunner Runner) (*Scheduler, error) {
	// Create cron with UTC timezone and seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

// registerJobs registers all scheduled jobs with the cron scheduler
func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	// Daily debt reminders; each account decides whether today is its day
	if _, err := s.cron.AddFunc(cfg.SendDebtReminders, s.jobs.SendDebtReminders); err != nil {
		logger.Error("Failed to register SendDebtReminders job", "spec", cfg.SendDebtReminders, "error", err)
		return err
	}

	if _, err := s.cron.AddFunc(cfg.RetryMissingReceipts, s.jobs.RetryMissingReceipts); err != nil {
		logger.Error("Failed to register RetryMissingReceipts job", "spec", cfg.RetryMissingReceipts, "error", err)
		return err
	}

	logger.Info("All cron jobs registered successfully", "entries", len(s.cron.Entries()))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
	logger.Info("Cron scheduler started successfully")
}

// Stop gracefully stops the cron scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries reports the registered jobs and their next run times
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}
