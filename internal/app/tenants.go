package app

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// TenantService serves the dashboard read path and rate updates.
type TenantService struct {
	registry  domain.TenantRegistry
	writer    domain.RateWriter
	collector domain.UsageCollector
	recorder  domain.PricingRecorder
	now       func() time.Time
}

// NewTenantService creates a service with the given adapters. recorder may be nil.
func NewTenantService(registry domain.TenantRegistry, writer domain.RateWriter, collector domain.UsageCollector, recorder domain.PricingRecorder) *TenantService {
	return &TenantService{
		registry:  registry,
		writer:    writer,
		collector: collector,
		recorder:  recorder,
		now:       time.Now,
	}
}

// List returns every valid tenant descriptor.
func (s *TenantService) List(ctx context.Context) ([]domain.Tenant, error) {
	return s.registry.List(ctx)
}

// Get returns a tenant by id.
func (s *TenantService) Get(ctx context.Context, id string) (domain.Tenant, error) {
	return s.registry.Get(ctx, id)
}

// Usage takes a live usage snapshot of a tenant.
func (s *TenantService) Usage(ctx context.Context, id string) (domain.UsageSnapshot, error) {
	t, err := s.registry.Get(ctx, id)
	if err != nil {
		return domain.UsageSnapshot{}, err
	}
	return s.collector.Collect(ctx, t)
}

// SetRate persists a tenant's rate override and optional invoice email list,
// then returns the reloaded tenant.
func (s *TenantService) SetRate(ctx context.Context, id string, rate float64, invoiceEmail string) (domain.Tenant, error) {
	if err := validateRate(rate); err != nil {
		return domain.Tenant{}, err
	}

	emails, err := normalizeEmails(invoiceEmail)
	if err != nil {
		return domain.Tenant{}, err
	}

	if _, err := s.registry.Get(ctx, id); err != nil {
		return domain.Tenant{}, err
	}

	if err := s.writer.SetRate(ctx, id, rate, emails); err != nil {
		return domain.Tenant{}, fmt.Errorf("persisting rate: %w", err)
	}

	return s.registry.Get(ctx, id)
}

// SetSharedRate appends a row to the shared pricing table for a company key.
func (s *TenantService) SetSharedRate(ctx context.Context, key string, rate float64) error {
	if s.recorder == nil {
		return domain.ErrPricingNotConfigured
	}
	if strings.TrimSpace(key) == "" {
		return &domain.InvalidRateError{Reason: "company key is required"}
	}
	if err := validateRate(rate); err != nil {
		return err
	}
	return s.recorder.Record(ctx, key, rate, s.now())
}

func validateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return &domain.InvalidRateError{Reason: "rate must be a finite number"}
	}
	if rate < 0 {
		return &domain.InvalidRateError{Reason: "rate must be >= 0"}
	}
	return nil
}

// normalizeEmails validates a ';' or ',' separated list and returns it joined by ",".
func normalizeEmails(raw string) (string, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		addr, err := mail.ParseAddress(p)
		if err != nil {
			return "", &domain.InvalidEmailError{Address: p}
		}
		out = append(out, addr.Address)
	}
	return strings.Join(out, ","), nil
}
