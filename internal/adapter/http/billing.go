package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// RunEnqueuer queues a billing run for the background worker.
type RunEnqueuer interface {
	Enqueue(ctx context.Context, opts domain.RunOptions) (int64, error)
}

// AttachmentResponse describes the attachment sent with an invoice.
type AttachmentResponse struct {
	Name      string `json:"name"`
	MIME      string `json:"mime"`
	Bytes     int    `json:"bytes"`
	Requested string `json:"requested"`
	Attempted string `json:"attempted,omitempty"`
	Rendered  bool   `json:"rendered"`
	Error     string `json:"error,omitempty"`
}

// DispatchResultResponse is the outcome of one tenant in a run.
type DispatchResultResponse struct {
	TenantID    string              `json:"tenantId"`
	CompanyName string              `json:"companyName,omitempty"`
	State       string              `json:"state"`
	Status      string              `json:"status" enum:"ok,skipped,failed"`
	Reason      string              `json:"reason,omitempty"`
	Quantity    int                 `json:"quantity"`
	Rate        float64             `json:"rate"`
	Total       float64             `json:"total"`
	Currency    string              `json:"currency,omitempty"`
	Recipients  []string            `json:"recipients,omitempty"`
	Attachment  *AttachmentResponse `json:"attachment,omitempty"`
	HTTPStatus  int                 `json:"httpStatus,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// RunReportResponse is the API representation of a billing run.
type RunReportResponse struct {
	RunID            string                   `json:"runId"`
	RunDate          string                   `json:"runDate" doc:"Billing date in the UTC-4 zone"`
	StartedAt        string                   `json:"startedAt"`
	FinishedAt       string                   `json:"finishedAt"`
	Endpoint         string                   `json:"endpoint"`
	QuantityStrategy string                   `json:"quantityStrategy"`
	AttachMode       string                   `json:"attachMode"`
	Currency         string                   `json:"currency"`
	Tenant           string                   `json:"tenant,omitempty"`
	Forced           bool                     `json:"forced"`
	SendZero         bool                     `json:"sendZero"`
	Total            int                      `json:"total"`
	Sent             int                      `json:"sent"`
	Skipped          int                      `json:"skipped"`
	Failed           int                      `json:"failed"`
	Results          []DispatchResultResponse `json:"results"`
}

func toRunReportResponse(r domain.RunReport) RunReportResponse {
	resp := RunReportResponse{
		RunID:            r.RunID,
		RunDate:          r.RunDate.String(),
		StartedAt:        r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:       r.FinishedAt.UTC().Format(time.RFC3339),
		Endpoint:         r.Endpoint,
		QuantityStrategy: string(r.QuantityStrategy),
		AttachMode:       string(r.AttachMode),
		Currency:         r.Currency,
		Tenant:           r.Tenant,
		Forced:           r.Forced,
		SendZero:         r.SendZero,
		Total:            r.Counts.Total,
		Sent:             r.Counts.Sent,
		Skipped:          r.Counts.Skipped,
		Failed:           r.Counts.Failed,
		Results:          make([]DispatchResultResponse, len(r.Results)),
	}
	for i, res := range r.Results {
		resp.Results[i] = toDispatchResultResponse(res)
	}
	return resp
}

func toDispatchResultResponse(res domain.DispatchResult) DispatchResultResponse {
	out := DispatchResultResponse{
		TenantID:    res.TenantID,
		CompanyName: res.CompanyName,
		State:       string(res.State),
		Status:      string(res.Status),
		Reason:      res.Reason,
		Quantity:    res.Quantity,
		Rate:        res.Rate,
		Total:       res.Total,
		Currency:    res.Currency,
		Recipients:  res.Recipients,
		HTTPStatus:  res.HTTPStatus,
		Error:       res.Error,
	}
	if a := res.Attachment; a != nil {
		out.Attachment = &AttachmentResponse{
			Name:      a.Name,
			MIME:      a.MIME,
			Bytes:     a.Bytes,
			Requested: string(a.Requested),
			Attempted: string(a.Attempted),
			Rendered:  a.Rendered,
			Error:     a.Error,
		}
	}
	return out
}

// --- Run Billing ---

type RunBillingInput struct {
	Tenant   string `query:"tenant" required:"false" doc:"Bill only this tenant"`
	Force    bool   `query:"force" required:"false" doc:"Bypass the management date and due date gates"`
	SendZero bool   `query:"sendZero" required:"false" doc:"Send invoices with a zero rate or quantity"`
	Attach   string `query:"attach" required:"false" doc:"Attachment type: pdf, png or none"`
	Currency string `query:"currency" required:"false" doc:"ISO 4217 currency code"`
}

func (in *RunBillingInput) options() (domain.RunOptions, error) {
	opts := domain.RunOptions{
		Tenant:   in.Tenant,
		Force:    in.Force,
		SendZero: in.SendZero,
		Currency: in.Currency,
	}
	if in.Attach != "" {
		mode, err := domain.ParseAttachMode(in.Attach)
		if err != nil {
			return domain.RunOptions{}, huma.Error422UnprocessableEntity(err.Error())
		}
		opts.Attach = mode
	}
	return opts, nil
}

type RunBillingOutput struct {
	Body RunReportResponse
}

// --- Queue Billing ---

type QueueBillingOutput struct {
	Body struct {
		JobID int64 `json:"jobId" doc:"Background job identifier"`
	}
}

// RegisterBilling adds the billing run routes. The queued route is only
// registered when queue is non-nil.
func RegisterBilling(api huma.API, runner domain.BillingRunner, queue RunEnqueuer) {
	run := func(ctx context.Context, input *RunBillingInput) (*RunBillingOutput, error) {
		opts, err := input.options()
		if err != nil {
			return nil, err
		}
		report, err := runner.Run(ctx, opts)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RunBillingOutput{Body: toRunReportResponse(report)}, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "run-billing",
		Method:      http.MethodPost,
		Path:        "/api/v1/billing/runs",
		Summary:     "Run the billing batch now",
		Tags:        []string{"Billing"},
	}, run)

	huma.Register(api, huma.Operation{
		OperationID: "run-billing-get",
		Method:      http.MethodGet,
		Path:        "/api/v1/billing/runs",
		Summary:     "Run the billing batch now (GET for cron callers)",
		Tags:        []string{"Billing"},
	}, run)

	if queue == nil {
		return
	}

	huma.Register(api, huma.Operation{
		OperationID:   "queue-billing",
		Method:        http.MethodPost,
		Path:          "/api/v1/billing/jobs",
		Summary:       "Queue a billing run for the background worker",
		Tags:          []string{"Billing"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *RunBillingInput) (*QueueBillingOutput, error) {
		opts, err := input.options()
		if err != nil {
			return nil, err
		}
		id, err := queue.Enqueue(ctx, opts)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &QueueBillingOutput{}
		out.Body.JobID = id
		return out, nil
	})
}
