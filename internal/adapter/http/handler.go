package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantbill/internal/app"
	"github.com/neomorfeo/tenantbill/internal/domain"
)

// TenantResponse is the API representation of a tenant. Database
// credentials are never exposed.
type TenantResponse struct {
	ID               string   `json:"id" doc:"Tenant identifier (descriptor file name)"`
	Name             string   `json:"name" doc:"Display name"`
	CompanyKey       string   `json:"companyKey,omitempty" doc:"Key used to look up the shared rate"`
	DBHost           string   `json:"dbHost" doc:"Tenant database host"`
	DBPort           int      `json:"dbPort" doc:"Tenant database port"`
	DBName           string   `json:"dbName" doc:"Tenant database name"`
	ManagementStatus string   `json:"managementStatus,omitempty" doc:"Free-form management status"`
	ManagementDate   string   `json:"managementDate,omitempty" doc:"Billing anchor date (YYYY-MM-DD)"`
	NextBillingDate  string   `json:"nextBillingDate,omitempty" doc:"Next date the tenant is billed on"`
	InvoiceEmails    []string `json:"invoiceEmails" doc:"Invoice recipients"`
	RateOverride     *float64 `json:"rateOverride,omitempty" doc:"Per-user rate from the descriptor"`
}

func toTenantResponse(t domain.Tenant, today domain.CivilDate) TenantResponse {
	resp := TenantResponse{
		ID:               t.ID,
		Name:             t.Name,
		CompanyKey:       t.CompanyKey,
		DBHost:           t.DB.Host,
		DBPort:           t.DB.Port,
		DBName:           t.DB.Database,
		ManagementStatus: t.ManagementStatus,
		InvoiceEmails:    t.InvoiceEmails,
		RateOverride:     t.RateOverride,
	}
	if resp.InvoiceEmails == nil {
		resp.InvoiceEmails = []string{}
	}
	if t.ManagementDate != nil {
		resp.ManagementDate = t.ManagementDate.String()
		resp.NextBillingDate = domain.NextDue(*t.ManagementDate, today).String()
	}
	return resp
}

// UsageResponse is a live usage snapshot.
type UsageResponse struct {
	Clients      int  `json:"clients"`
	Providers    int  `json:"providers"`
	Admins       int  `json:"admins"`
	Users        int  `json:"users"`
	UsersDerived bool `json:"usersDerived" doc:"Users was derived because the users table could not be read"`
	RoleSum      int  `json:"roleSum" doc:"clients + providers + admins"`
}

// --- Get Tenant ---

type GetTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

// --- List Tenants ---

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Usage ---

type GetUsageOutput struct {
	Body UsageResponse
}

// --- Set Rate ---

type SetRateInput struct {
	ID   string `path:"id" doc:"Tenant ID"`
	Body struct {
		Rate         float64 `json:"rate" minimum:"0" doc:"Per-user rate"`
		InvoiceEmail string  `json:"invoiceEmail,omitempty" doc:"Comma or semicolon separated recipients"`
	}
}

type SetRateOutput struct {
	Body TenantResponse
}

// --- Shared Pricing ---

type SetSharedRateInput struct {
	Key  string `path:"key" doc:"Company key"`
	Body struct {
		Rate float64 `json:"rate" minimum:"0" doc:"Per-user rate"`
	}
}

type SetSharedRateOutput struct {
	Body struct {
		Key  string  `json:"key"`
		Rate float64 `json:"rate"`
	}
}

// --- Health ---

type HealthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

// Register adds the tenant, pricing and health routes to the Huma API.
func Register(api huma.API, svc *app.TenantService) {
	today := func() domain.CivilDate { return domain.Today(time.Now()) }

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, _ *struct{}) (*ListTenantsOutput, error) {
		tenants, err := svc.List(ctx)
		if err != nil {
			return nil, toHumaError(err)
		}

		d := today()
		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t, d)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		tenant, err := svc.Get(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant, today())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-tenant-usage",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}/usage",
		Summary:     "Take a live usage snapshot",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetUsageOutput, error) {
		snap, err := svc.Usage(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetUsageOutput{Body: UsageResponse{
			Clients:      snap.Clients,
			Providers:    snap.Providers,
			Admins:       snap.Admins,
			Users:        snap.Users,
			UsersDerived: snap.UsersDerived,
			RoleSum:      snap.RoleSum(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-tenant-rate",
		Method:      http.MethodPut,
		Path:        "/api/v1/tenants/{id}/rate",
		Summary:     "Set a tenant's rate and invoice recipients",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *SetRateInput) (*SetRateOutput, error) {
		tenant, err := svc.SetRate(ctx, input.ID, input.Body.Rate, input.Body.InvoiceEmail)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &SetRateOutput{Body: toTenantResponse(tenant, today())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-shared-rate",
		Method:      http.MethodPut,
		Path:        "/api/v1/pricing/{key}",
		Summary:     "Record a rate in the shared pricing table",
		Tags:        []string{"Pricing"},
	}, func(ctx context.Context, input *SetSharedRateInput) (*SetSharedRateOutput, error) {
		if err := svc.SetSharedRate(ctx, input.Key, input.Body.Rate); err != nil {
			return nil, toHumaError(err)
		}
		out := &SetSharedRateOutput{}
		out.Body.Key = input.Key
		out.Body.Rate = input.Body.Rate
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "healthz",
		Method:      http.MethodGet,
		Path:        "/healthz",
		Summary:     "Liveness probe",
		Tags:        []string{"Health"},
	}, func(_ context.Context, _ *struct{}) (*HealthOutput, error) {
		out := &HealthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTenantNotFound) {
		return huma.Error404NotFound("tenant not found")
	}
	if errors.Is(err, domain.ErrWebhookNotConfigured) || errors.Is(err, domain.ErrPricingNotConfigured) {
		return huma.Error503ServiceUnavailable(err.Error())
	}
	if errors.Is(err, domain.ErrRunInProgress) {
		return huma.Error409Conflict(err.Error())
	}

	var rateErr *domain.InvalidRateError
	if errors.As(err, &rateErr) {
		return huma.Error422UnprocessableEntity(rateErr.Error())
	}

	var emailErr *domain.InvalidEmailError
	if errors.As(err, &emailErr) {
		return huma.Error422UnprocessableEntity(emailErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var dbErr *domain.SoftDBError
	if errors.As(err, &dbErr) {
		return huma.Error502BadGateway(dbErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
