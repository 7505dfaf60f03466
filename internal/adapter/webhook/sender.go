package webhook

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// DefaultTimeout bounds one webhook call.
const DefaultTimeout = 20 * time.Second

// maxResponseBody is how much of the webhook answer is kept.
const maxResponseBody = 64 << 10

// Header names identifying the tenant of a delivery.
const (
	HeaderTenantID   = "X-Tenant-Id"
	HeaderCompanyKey = "X-Company-Key"
)

// Compile-time check: Sender implements domain.InvoiceSender.
var _ domain.InvoiceSender = (*Sender)(nil)

// Payload is the JSON body posted to the billing workflow.
type Payload struct {
	Description string   `json:"DESCRIPTION"`
	Quantity    int      `json:"QUANTITY"`
	Rate        float64  `json:"RATE"`
	Total       float64  `json:"TOTAL"`
	CompanyName string   `json:"COMPANY_NAME"`
	Detail      string   `json:"DETAIL"`
	Currency    string   `json:"CURRENCY"`
	ToEmail     string   `json:"TO_EMAIL"`
	Recipients  []string `json:"recipients"`
	EmailHTML   string   `json:"EMAIL_HTML"`
	FileBase64  string   `json:"FILE_BASE64"`
	FileName    string   `json:"FILE_NAME"`
	FileMIME    string   `json:"FILE_MIME"`
	TenantID    string   `json:"TENANT_ID"`
	CompanyKey  string   `json:"COMPANY_KEY"`
	RunDate     string   `json:"RUN_DATE"`

	AttachmentRequested string `json:"ATTACHMENT_REQUESTED"`
	AttachmentAttempted string `json:"ATTACHMENT_ATTEMPTED"`
	AttachmentOK        bool   `json:"ATTACHMENT_OK"`
	AttachmentBytes     int    `json:"ATTACHMENT_BYTES"`
	AttachmentError     string `json:"ATTACHMENT_ERROR,omitempty"`
}

// NewPayload maps an invoice document onto the webhook body.
func NewPayload(doc domain.InvoiceDocument) Payload {
	recipients := doc.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	return Payload{
		Description:         doc.Description,
		Quantity:            doc.Quantity,
		Rate:                doc.Rate,
		Total:               doc.Total,
		CompanyName:         doc.CompanyName,
		Detail:              doc.Detail,
		Currency:            doc.Currency,
		ToEmail:             strings.Join(recipients, ","),
		Recipients:          recipients,
		EmailHTML:           doc.HTML,
		FileBase64:          base64.StdEncoding.EncodeToString(doc.Attachment.Data),
		FileName:            doc.Attachment.Name,
		FileMIME:            doc.Attachment.MIME,
		TenantID:            doc.TenantID,
		CompanyKey:          doc.CompanyKey,
		RunDate:             doc.RunDate.String(),
		AttachmentRequested: string(doc.Diagnostics.Requested),
		AttachmentAttempted: string(doc.Diagnostics.Attempted),
		AttachmentOK:        doc.Diagnostics.OK,
		AttachmentBytes:     doc.Diagnostics.Bytes,
		AttachmentError:     doc.Diagnostics.Error,
	}
}

// Sender posts invoices to a single billing webhook endpoint.
type Sender struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// Option configures a Sender.
type Option func(*Sender)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

// New validates endpoint and creates a sender. An empty endpoint is allowed and
// reports itself through Endpoint() == "" so the batch can refuse to run.
func New(endpoint string, timeout time.Duration, opts ...Option) (*Sender, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parsing webhook url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("webhook url must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return nil, errors.New("webhook url has no host")
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := &Sender{
		endpoint: endpoint,
		timeout:  timeout,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Endpoint returns the configured webhook URL.
func (s *Sender) Endpoint() string {
	return s.endpoint
}

// Send posts doc and returns the webhook answer. The request is aborted once
// the sender timeout elapses.
func (s *Sender) Send(ctx context.Context, doc domain.InvoiceDocument) (domain.SendReceipt, error) {
	if s.endpoint == "" {
		return domain.SendReceipt{}, domain.ErrWebhookNotConfigured
	}

	body, err := json.Marshal(NewPayload(doc))
	if err != nil {
		return domain.SendReceipt{}, fmt.Errorf("encoding webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.SendReceipt{}, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenantID, doc.TenantID)
	req.Header.Set(HeaderCompanyKey, doc.CompanyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.SendReceipt{}, &domain.DeliveryFaultError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return domain.SendReceipt{}, &domain.DeliveryFaultError{Err: fmt.Errorf("reading webhook response: %w", err)}
	}

	receipt := domain.SendReceipt{Status: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return receipt, &domain.DeliveryError{Status: resp.StatusCode, Body: receipt.Body}
	}
	return receipt, nil
}
