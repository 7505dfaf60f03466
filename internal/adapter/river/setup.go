package river

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/robfig/cron/v3"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// DefaultSchedule runs the batch once a day at 09:00 billing-zone time.
const DefaultSchedule = "0 9 * * *"

// Options configures the River client.
type Options struct {
	// Schedule is a standard five-field cron expression evaluated in
	// domain.BillingZone. Empty uses DefaultSchedule.
	Schedule string
	// Periodic enables the daily periodic job.
	Periodic bool
	Logger   *slog.Logger
}

// ParseSchedule parses a cron expression and pins it to the billing zone.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing billing schedule %q: %w", expr, err)
	}
	if s, ok := sched.(*cron.SpecSchedule); ok {
		s.Location = domain.BillingZone
	}
	return sched, nil
}

// Setup creates a River client with the billing worker registered and runs
// River's internal migrations. The caller must call client.Start() to begin
// processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, runner domain.BillingRunner, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewBillingWorker(runner, opts.Logger))

	var periodic []*river.PeriodicJob
	if opts.Periodic {
		sched, err := ParseSchedule(opts.Schedule)
		if err != nil {
			return nil, err
		}
		periodic = append(periodic, river.NewPeriodicJob(
			sched,
			func() (river.JobArgs, *river.InsertOpts) {
				return BillingRunArgs{Scheduled: true}, nil
			},
			nil,
		))
	}

	client, err := river.NewClient(driver, &river.Config{
		Logger: opts.Logger,
		Queues: map[string]river.QueueConfig{
			// Batches never overlap.
			river.QueueDefault: {MaxWorkers: 1},
		},
		PeriodicJobs: periodic,
		Workers:      workers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
