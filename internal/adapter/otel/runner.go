package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// TracingRunner wraps a domain.BillingRunner with a span per run and
// records per-tenant outcomes in the billing.results counter.
type TracingRunner struct {
	next     domain.BillingRunner
	tracer   trace.Tracer
	results  metric.Int64Counter
	duration metric.Float64Histogram
}

// Compile-time check: TracingRunner implements domain.BillingRunner.
var _ domain.BillingRunner = (*TracingRunner)(nil)

// NewTracingRunner creates a tracing decorator around the given runner.
func NewTracingRunner(next domain.BillingRunner) (*TracingRunner, error) {
	meter := otel.Meter(tracerName)

	results, err := meter.Int64Counter("billing.results",
		metric.WithDescription("Tenant billing outcomes by status and final state"),
		metric.WithUnit("{tenant}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("billing.run.duration",
		metric.WithDescription("Wall time of a billing batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &TracingRunner{
		next:     next,
		tracer:   otel.Tracer(tracerName),
		results:  results,
		duration: duration,
	}, nil
}

func (r *TracingRunner) Run(ctx context.Context, opts domain.RunOptions) (domain.RunReport, error) {
	ctx, span := r.tracer.Start(ctx, "BillingRunner.Run",
		trace.WithAttributes(
			attribute.String("billing.tenant", opts.Tenant),
			attribute.Bool("billing.force", opts.Force),
			attribute.Bool("billing.send_zero", opts.SendZero),
		),
	)
	defer span.End()

	start := time.Now()
	report, err := r.next.Run(ctx, opts)
	r.duration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	for _, res := range report.Results {
		r.results.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(res.Status)),
			attribute.String("state", string(res.State)),
		))
	}

	span.SetAttributes(
		attribute.String("billing.run_id", report.RunID),
		attribute.String("billing.run_date", report.RunDate.String()),
		attribute.Int("billing.total", report.Counts.Total),
		attribute.Int("billing.sent", report.Counts.Sent),
		attribute.Int("billing.skipped", report.Counts.Skipped),
		attribute.Int("billing.failed", report.Counts.Failed),
	)
	return report, nil
}
