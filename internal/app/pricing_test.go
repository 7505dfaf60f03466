package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/neomorfeo/tenantbill/internal/app"
	"github.com/neomorfeo/tenantbill/internal/domain"
)

func TestResolve_OverrideWins(t *testing.T) {
	store := &mockStore{rates: map[string]float64{"acme": 99}}
	r := app.NewPricingResolver(store, discardLogger())

	got := r.Resolve(context.Background(), domain.Tenant{ID: "acme", RateOverride: ptr(10.0)})
	if got != 10 {
		t.Errorf("Resolve = %v, want 10", got)
	}
	if len(store.keys) != 0 {
		t.Errorf("store should not be consulted, got %v", store.keys)
	}
}

func TestResolve_StoreByCompanyKey(t *testing.T) {
	store := &mockStore{rates: map[string]float64{"ACME-01": 7.5}}
	r := app.NewPricingResolver(store, discardLogger())

	got := r.Resolve(context.Background(), domain.Tenant{ID: "acme", CompanyKey: "ACME-01"})
	if got != 7.5 {
		t.Errorf("Resolve = %v, want 7.5", got)
	}
}

func TestResolve_FallsBackToTenantID(t *testing.T) {
	store := &mockStore{rates: map[string]float64{"acme": 3}}
	r := app.NewPricingResolver(store, discardLogger())

	if got := r.Resolve(context.Background(), domain.Tenant{ID: "acme"}); got != 3 {
		t.Errorf("Resolve = %v, want 3", got)
	}
}

func TestResolve_Zero(t *testing.T) {
	tests := []struct {
		name  string
		store domain.PricingStore
	}{
		{"no store", nil},
		{"no row", &mockStore{rates: map[string]float64{}}},
		{"store error", &mockStore{err: errors.New("connection refused")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := app.NewPricingResolver(tt.store, discardLogger())
			if got := r.Resolve(context.Background(), domain.Tenant{ID: "acme"}); got != 0 {
				t.Errorf("Resolve = %v, want 0", got)
			}
		})
	}
}
