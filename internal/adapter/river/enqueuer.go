package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// BillingRunArgs carries the options of one queued billing run. River
// serializes this as JSON into its job queue table.
type BillingRunArgs struct {
	Tenant    string `json:"tenant,omitempty"`
	Force     bool   `json:"force,omitempty"`
	SendZero  bool   `json:"send_zero,omitempty"`
	Attach    string `json:"attach,omitempty"`
	Currency  string `json:"currency,omitempty"`
	Scheduled bool   `json:"scheduled,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (BillingRunArgs) Kind() string { return "billing.run" }

// InsertOpts disables retries: a failed batch is not re-sent within the same run.
func (BillingRunArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// Options converts the job args back into run options.
func (a BillingRunArgs) Options() (domain.RunOptions, error) {
	opts := domain.RunOptions{
		Tenant:   a.Tenant,
		Force:    a.Force,
		SendZero: a.SendZero,
		Currency: a.Currency,
	}
	if a.Attach != "" {
		mode, err := domain.ParseAttachMode(a.Attach)
		if err != nil {
			return domain.RunOptions{}, err
		}
		opts.Attach = mode
	}
	return opts, nil
}

// ArgsFromOptions builds job args for a manual run.
func ArgsFromOptions(opts domain.RunOptions) BillingRunArgs {
	return BillingRunArgs{
		Tenant:   opts.Tenant,
		Force:    opts.Force,
		SendZero: opts.SendZero,
		Attach:   string(opts.Attach),
		Currency: opts.Currency,
	}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Enqueuer queues billing runs for the River worker.
type Enqueuer struct {
	client *Client
}

// NewEnqueuer creates an enqueuer backed by the given River client.
func NewEnqueuer(client *Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// Enqueue inserts a billing run job and returns its id.
func (e *Enqueuer) Enqueue(ctx context.Context, opts domain.RunOptions) (int64, error) {
	res, err := e.client.Insert(ctx, ArgsFromOptions(opts), nil)
	if err != nil {
		return 0, fmt.Errorf("enqueuing billing run: %w", err)
	}
	return res.Job.ID, nil
}
