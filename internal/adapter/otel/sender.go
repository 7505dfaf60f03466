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

// TracingSender wraps a domain.InvoiceSender with OpenTelemetry tracing.
type TracingSender struct {
	next   domain.InvoiceSender
	tracer trace.Tracer
}

// Compile-time check: TracingSender implements domain.InvoiceSender.
var _ domain.InvoiceSender = (*TracingSender)(nil)

// NewTracingSender creates a tracing decorator around the given sender.
func NewTracingSender(next domain.InvoiceSender) *TracingSender {
	return &TracingSender{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingSender) Endpoint() string {
	return s.next.Endpoint()
}

func (s *TracingSender) Send(ctx context.Context, doc domain.InvoiceDocument) (domain.SendReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "InvoiceSender.Send",
		trace.WithAttributes(
			attribute.String("tenant.id", doc.TenantID),
			attribute.String("invoice.company_key", doc.CompanyKey),
			attribute.Int("invoice.quantity", doc.Quantity),
			attribute.Float64("invoice.total", doc.Total),
			attribute.String("invoice.currency", doc.Currency),
			attribute.String("attachment.mime", doc.Attachment.MIME),
			attribute.Int("attachment.bytes", len(doc.Attachment.Data)),
		),
	)
	defer span.End()

	receipt, err := s.next.Send(ctx, doc)
	if receipt.Status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", receipt.Status))
	}
	if err != nil {
		var fault *domain.DeliveryFaultError
		span.SetAttributes(attribute.Bool("webhook.fault", errors.As(err, &fault)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return receipt, err
}
