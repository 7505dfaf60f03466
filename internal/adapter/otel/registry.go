package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

const tracerName = "github.com/neomorfeo/tenantbill/internal/adapter/otel"

// TracingRegistry wraps a domain.TenantRegistry with OpenTelemetry tracing.
type TracingRegistry struct {
	next   domain.TenantRegistry
	tracer trace.Tracer
}

// Compile-time check: TracingRegistry implements domain.TenantRegistry.
var _ domain.TenantRegistry = (*TracingRegistry)(nil)

// NewTracingRegistry creates a tracing decorator around the given registry.
func NewTracingRegistry(next domain.TenantRegistry) *TracingRegistry {
	return &TracingRegistry{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRegistry) List(ctx context.Context) ([]domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRegistry.List")
	defer span.End()

	tenants, err := r.next.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(tenants)))
	}
	return tenants, err
}

func (r *TracingRegistry) Get(ctx context.Context, id string) (domain.Tenant, error) {
	ctx, span := r.tracer.Start(ctx, "TenantRegistry.Get",
		trace.WithAttributes(attribute.String("tenant.id", id)),
	)
	defer span.End()

	tenant, err := r.next.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return tenant, err
}
