package app

import (
	"context"
	"log/slog"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// PricingResolver picks the per-user rate for a tenant:
// tenant override, then the shared pricing store, then zero.
type PricingResolver struct {
	store  domain.PricingStore
	logger *slog.Logger
}

// NewPricingResolver creates a resolver. A nil store disables the shared lookup.
func NewPricingResolver(store domain.PricingStore, logger *slog.Logger) *PricingResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricingResolver{store: store, logger: logger}
}

// Resolve never fails: store errors are logged and resolve to zero.
func (r *PricingResolver) Resolve(ctx context.Context, tenant domain.Tenant) float64 {
	if tenant.RateOverride != nil {
		return *tenant.RateOverride
	}
	if r.store == nil {
		return 0
	}

	key := tenant.PricingKey()
	rate, found, err := r.store.LatestRate(ctx, key)
	if err != nil {
		r.logger.Warn("shared rate lookup failed",
			"tenant_id", tenant.ID,
			"company_key", key,
			"error", err,
		)
		return 0
	}
	if !found {
		return 0
	}
	return rate
}
