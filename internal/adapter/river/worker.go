package river

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// busyRetry is how long a job waits when another batch holds the runner.
const busyRetry = time.Minute

// BillingWorker runs billing batches taken from the River queue.
type BillingWorker struct {
	river.WorkerDefaults[BillingRunArgs]

	runner domain.BillingRunner
	logger *slog.Logger
}

// NewBillingWorker creates a worker that delegates to runner.
func NewBillingWorker(runner domain.BillingRunner, logger *slog.Logger) *BillingWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingWorker{runner: runner, logger: logger}
}

// Timeout disables River's job deadline; a run takes as long as its tenants do.
func (w *BillingWorker) Timeout(*river.Job[BillingRunArgs]) time.Duration {
	return -1
}

// Work processes a single billing run job.
func (w *BillingWorker) Work(ctx context.Context, job *river.Job[BillingRunArgs]) error {
	opts, err := job.Args.Options()
	if err != nil {
		return river.JobCancel(err)
	}

	report, err := w.runner.Run(ctx, opts)
	if errors.Is(err, domain.ErrRunInProgress) {
		w.logger.InfoContext(ctx, "billing run already in progress; snoozing job",
			"job_id", job.ID,
			"retry_in", busyRetry,
		)
		return river.JobSnooze(busyRetry)
	}
	if err != nil {
		w.logger.ErrorContext(ctx, "billing run failed",
			"job_id", job.ID,
			"scheduled", job.Args.Scheduled,
			"error", err,
		)
		if errors.Is(err, domain.ErrWebhookNotConfigured) || errors.Is(err, domain.ErrTenantNotFound) {
			return river.JobCancel(err)
		}
		return err
	}

	w.logger.InfoContext(ctx, "billing run completed",
		"job_id", job.ID,
		"run_id", report.RunID,
		"scheduled", job.Args.Scheduled,
		"total", report.Counts.Total,
		"sent", report.Counts.Sent,
		"skipped", report.Counts.Skipped,
		"failed", report.Counts.Failed,
	)
	return nil
}
