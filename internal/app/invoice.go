package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// DefaultCurrency is used when neither the run nor the configuration names one.
const DefaultCurrency = "USD"

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Invoice {{.CompanyName}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #1f2933; margin: 40px; }
h1 { font-size: 22px; margin-bottom: 4px; }
.muted { color: #697586; font-size: 13px; }
table { width: 100%; border-collapse: collapse; margin-top: 24px; }
th, td { padding: 10px 12px; border-bottom: 1px solid #e4e7eb; text-align: left; }
th { background: #f5f7fa; font-weight: 600; }
td.num, th.num { text-align: right; }
tfoot td { font-weight: 700; border-bottom: none; }
</style>
</head>
<body>
<h1>{{.CompanyName}}</h1>
<div class="muted">Invoice date {{.RunDate}}</div>
<table>
<thead>
<tr><th>Description</th><th class="num">Quantity</th><th class="num">Rate</th><th class="num">Amount</th></tr>
</thead>
<tbody>
<tr><td>{{.Description}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.Rate}}</td><td class="num">{{.Total}}</td></tr>
</tbody>
<tfoot>
<tr><td colspan="3" class="num">Total</td><td class="num">{{.Total}}</td></tr>
</tfoot>
</table>
<p class="muted">{{.Detail}}</p>
</body>
</html>
`))

// ComposeRequest carries everything needed to build one invoice.
type ComposeRequest struct {
	Tenant   domain.Tenant
	Snapshot domain.UsageSnapshot
	Rate     float64
	RunDate  domain.CivilDate
	Attach   domain.AttachMode
	Currency string
}

// Composer builds invoice documents. Composition always yields an attachment:
// any rendering problem degrades to the HTML bytes.
type Composer struct {
	renderer domain.Renderer
	strategy domain.QuantityStrategy
	printer  *message.Printer
	logger   *slog.Logger
}

// NewComposer creates a composer. A nil renderer always attaches HTML.
func NewComposer(renderer domain.Renderer, strategy domain.QuantityStrategy, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == "" {
		strategy = domain.QuantitySum
	}
	return &Composer{
		renderer: renderer,
		strategy: strategy,
		printer:  message.NewPrinter(language.English),
		logger:   logger,
	}
}

// Strategy returns the quantity strategy applied to every tenant.
func (c *Composer) Strategy() domain.QuantityStrategy {
	return c.strategy
}

// Quantity returns the billable quantity for a snapshot.
func (c *Composer) Quantity(s domain.UsageSnapshot) int {
	return c.strategy.Quantity(s)
}

// Total returns round(quantity * rate, 2), half away from zero.
func Total(quantity int, rate float64) float64 {
	return decimal.NewFromInt(int64(quantity)).
		Mul(decimal.NewFromFloat(rate)).
		Round(2).
		InexactFloat64()
}

// Compose builds the invoice document for one tenant.
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) domain.InvoiceDocument {
	code := strings.ToUpper(strings.TrimSpace(req.Currency))
	if code == "" {
		code = DefaultCurrency
	}
	if req.Attach == "" {
		req.Attach = domain.AttachModePDF
	}

	qty := c.Quantity(req.Snapshot)
	doc := domain.InvoiceDocument{
		TenantID:    req.Tenant.ID,
		CompanyKey:  req.Tenant.PricingKey(),
		CompanyName: req.Tenant.Name,
		RunDate:     req.RunDate,
		Description: Description(req.RunDate, req.Tenant.ManagementStatus),
		Quantity:    qty,
		Rate:        req.Rate,
		Total:       Total(qty, req.Rate),
		Currency:    code,
		Detail:      req.Snapshot.Detail(),
		Recipients:  req.Tenant.InvoiceEmails,
	}

	var buf bytes.Buffer
	err := invoiceTemplate.Execute(&buf, map[string]any{
		"CompanyName": doc.CompanyName,
		"RunDate":     doc.RunDate.String(),
		"Description": doc.Description,
		"Quantity":    doc.Quantity,
		"Rate":        c.FormatAmount(doc.Rate, code),
		"Total":       c.FormatAmount(doc.Total, code),
		"Detail":      doc.Detail,
	})
	if err != nil {
		// The template is static; this only happens on a writer failure.
		doc.HTML = fmt.Sprintf("<p>%s</p><p>%s</p><p>%s</p>",
			template.HTMLEscapeString(doc.Description),
			template.HTMLEscapeString(c.FormatAmount(doc.Total, code)),
			template.HTMLEscapeString(doc.Detail))
	} else {
		doc.HTML = buf.String()
	}

	doc.Attachment, doc.Diagnostics = c.attach(ctx, doc, req.Attach)
	return doc
}

// FormatAmount formats v with the symbol of the given ISO 4217 currency and
// always two decimals, matching the TOTAL sent in the payload. Unknown codes
// fall back to fixed-point with the code appended.
func (c *Composer) FormatAmount(v float64, code string) string {
	rounded := decimal.NewFromFloat(v).Round(2)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return rounded.StringFixed(2) + " " + code
	}
	return c.printer.Sprintf("%v %v", currency.Symbol(unit), number.Decimal(rounded.InexactFloat64(), number.Scale(2)))
}

// Description is the invoice line text; it embeds the run date and the
// tenant's management status.
func Description(runDate domain.CivilDate, status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unspecified"
	}
	return fmt.Sprintf("Monthly platform service %s (management status: %s)", runDate, status)
}

// FileName returns invoice-<tenant>-<YYYY-MM-DD>.<ext>.
func FileName(tenantID string, runDate domain.CivilDate, kind domain.AttachmentKind) string {
	return fmt.Sprintf("invoice-%s-%s.%s", tenantID, runDate, kind.Ext())
}

func (c *Composer) attach(ctx context.Context, doc domain.InvoiceDocument, mode domain.AttachMode) (domain.Attachment, domain.RenderDiagnostics) {
	kind := mode.Kind()
	diag := domain.RenderDiagnostics{Requested: mode, Attempted: kind}

	if kind != domain.AttachmentHTML {
		data, err := c.render(ctx, doc.HTML, kind)
		if err == nil {
			diag.OK = true
			diag.Bytes = len(data)
			return domain.Attachment{
				Name: FileName(doc.TenantID, doc.RunDate, kind),
				Kind: kind,
				MIME: kind.MIME(),
				Data: data,
			}, diag
		}
		diag.Error = err.Error()
		c.logger.Warn("invoice rendering failed, attaching html",
			"tenant_id", doc.TenantID,
			"kind", kind,
			"error", err,
		)
	} else {
		diag.OK = true
	}

	data := []byte(doc.HTML)
	diag.Bytes = len(data)
	return domain.Attachment{
		Name: FileName(doc.TenantID, doc.RunDate, domain.AttachmentHTML),
		Kind: domain.AttachmentHTML,
		MIME: domain.AttachmentHTML.MIME(),
		Data: data,
	}, diag
}

func (c *Composer) render(ctx context.Context, html string, kind domain.AttachmentKind) (data []byte, err error) {
	if c.renderer == nil {
		return nil, errors.New("no renderer configured")
	}

	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("renderer panic: %v", r)
		}
	}()

	data, err = c.renderer.Render(ctx, html, kind)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("renderer returned no %s bytes", kind)
	}
	return data, nil
}
