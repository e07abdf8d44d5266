package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"staybook-backend/internal/config"
	"staybook-backend/internal/logger"
	"staybook-backend/internal/service"
)

// jobTimeout bounds a single sweep so a stuck gateway cannot pin a cron slot
const jobTimeout = 10 * time.Minute

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	escrow service.EscrowService
	config *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(escrow service.EscrowService, cfg *config.Config) *JobRunner {
	return &JobRunner{
		escrow: escrow,
		config: cfg,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, sweep func(ctx context.Context) (service.SweepResult, error)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	res, err := sweep(ctx)
	if err != nil {
		logger.Error("Job failed", "job", jobName, "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("Job completed", "job", jobName, "processed", res.Processed, "failed", res.Failed, "duration", time.Since(start))
}

// Jobs lists every job by the name used on the command line
func (jr *JobRunner) Jobs() map[string]func() {
	return map[string]func(){
		"milestone-reminders": jr.SendMilestoneReminders,
		"check-in-reminders":  jr.SendCheckInReminders,
		"complete-stays":      jr.CompleteStays,
		"expire-pending":      jr.ExpirePendingBookings,
		"retry-refunds":       jr.RetryPendingRefunds,
		"expire-promos":       jr.ExpirePromoCodes,
	}
}

// JobNames returns the job names in a stable order
func (jr *JobRunner) JobNames() []string {
	names := make([]string, 0, 6)
	for name := range jr.Jobs() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes one job by name (for manual execution)
func (jr *JobRunner) Run(name string) error {
	job, ok := jr.Jobs()[name]
	if !ok {
		return fmt.Errorf("unknown job %q, expected one of %v", name, jr.JobNames())
	}
	job()
	return nil
}

// RunAllDailyJobs runs the daily sweeps in dependency order (for manual execution)
func (jr *JobRunner) RunAllDailyJobs() {
	jr.ExpirePromoCodes()
	jr.CompleteStays()
	jr.SendMilestoneReminders()
	jr.SendCheckInReminders()
}
