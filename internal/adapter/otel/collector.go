package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// TracingCollector wraps a domain.UsageCollector with OpenTelemetry tracing.
// Soft database errors are tagged with their code.
type TracingCollector struct {
	next   domain.UsageCollector
	tracer trace.Tracer
}

// Compile-time check: TracingCollector implements domain.UsageCollector.
var _ domain.UsageCollector = (*TracingCollector)(nil)

// NewTracingCollector creates a tracing decorator around the given collector.
func NewTracingCollector(next domain.UsageCollector) *TracingCollector {
	return &TracingCollector{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (c *TracingCollector) Collect(ctx context.Context, tenant domain.Tenant) (domain.UsageSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "UsageCollector.Collect",
		trace.WithAttributes(
			attribute.String("tenant.id", tenant.ID),
			attribute.String("db.host", tenant.DB.Host),
			attribute.String("db.name", tenant.DB.Database),
		),
	)
	defer span.End()

	snap, err := c.next.Collect(ctx, tenant)
	if err != nil {
		var soft *domain.SoftDBError
		if errors.As(err, &soft) {
			span.SetAttributes(attribute.String("db.error_code", soft.Code))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return snap, err
	}

	span.SetAttributes(
		attribute.Int("usage.clients", snap.Clients),
		attribute.Int("usage.providers", snap.Providers),
		attribute.Int("usage.admins", snap.Admins),
		attribute.Int("usage.users", snap.Users),
		attribute.Bool("usage.users_derived", snap.UsersDerived),
	)
	return snap, nil
}
