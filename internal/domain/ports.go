package domain

import (
	"context"
	"time"
)

// TenantRegistry lists tenant descriptors from their configuration source.
type TenantRegistry interface {
	List(ctx context.Context) ([]Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
}

// RateWriter persists a tenant's per-user rate and optional invoice email.
type RateWriter interface {
	SetRate(ctx context.Context, id string, rate float64, invoiceEmail string) error
}

// UsageCollector takes a usage snapshot from a tenant's own database.
// Connection-level failures are returned as *SoftDBError.
type UsageCollector interface {
	Collect(ctx context.Context, tenant Tenant) (UsageSnapshot, error)
}

// PricingStore looks up the most recently updated shared rate for a pricing key.
// found is false when no usable row exists.
type PricingStore interface {
	LatestRate(ctx context.Context, key string) (rate float64, found bool, err error)
}

// PricingRecorder appends a shared rate row for a pricing key.
type PricingRecorder interface {
	Record(ctx context.Context, key string, rate float64, at time.Time) error
}

// Renderer rasterises invoice HTML into the requested attachment kind.
type Renderer interface {
	Render(ctx context.Context, html string, kind AttachmentKind) ([]byte, error)
}

// InvoiceSender delivers a composed invoice to the billing webhook.
// Non-2xx answers are *DeliveryError; unreachable endpoints are *DeliveryFaultError.
type InvoiceSender interface {
	Endpoint() string
	Send(ctx context.Context, doc InvoiceDocument) (SendReceipt, error)
}

// InvoiceArchive stores a copy of a composed invoice attachment.
type InvoiceArchive interface {
	Store(ctx context.Context, doc InvoiceDocument) error
}

// StateMachine validates pipeline steps and returns the destination state.
type StateMachine interface {
	Apply(ctx context.Context, current State, event Event) (State, error)
}

// BillingRunner runs one billing batch.
type BillingRunner interface {
	Run(ctx context.Context, opts RunOptions) (RunReport, error)
}
