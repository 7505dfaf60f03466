package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neomorfeo/tenantbill/internal/app"
	"github.com/neomorfeo/tenantbill/internal/domain"
)

var runDate = domain.CivilDate{Year: 2025, Month: time.February, Day: 28}

func composeRequest(attach domain.AttachMode) app.ComposeRequest {
	return app.ComposeRequest{
		Tenant:   dueTenant("acme", civil(2024, time.February, 29), 10),
		Snapshot: domain.UsageSnapshot{Clients: 5, Providers: 2, Admins: 1, Users: 8},
		Rate:     10,
		RunDate:  runDate,
		Attach:   attach,
		Currency: "usd",
	}
}

func TestTotal_RoundsToCents(t *testing.T) {
	tests := []struct {
		qty  int
		rate float64
		want float64
	}{
		{3, 14.99, 44.97},
		{8, 10, 80},
		{0, 12.5, 0},
		{7, 0.1, 0.7},
		{3, 0.335, 1.01},
		{1, 0.005, 0.01},
		{1000, 19.999, 19999},
	}
	for _, tt := range tests {
		if got := app.Total(tt.qty, tt.rate); got != tt.want {
			t.Errorf("Total(%d, %v) = %v, want %v", tt.qty, tt.rate, got, tt.want)
		}
	}
}

func TestTotal_CentsProperty(t *testing.T) {
	for q := 0; q <= 50; q++ {
		for cents := 0; cents <= 2500; cents += 7 {
			rate := float64(cents) / 100
			got := app.Total(q, rate)
			want := float64(q*cents) / 100
			if got != want {
				t.Fatalf("Total(%d, %v) = %v, want %v", q, rate, got, want)
			}
		}
	}
}

func TestCompose_PDF(t *testing.T) {
	renderer := &mockRenderer{data: []byte("%PDF-1.7")}
	c := app.NewComposer(renderer, domain.QuantitySum, discardLogger())

	doc := c.Compose(context.Background(), composeRequest(domain.AttachModePDF))

	if doc.Quantity != 8 || doc.Total != 80 {
		t.Errorf("Quantity/Total = %d/%v, want 8/80", doc.Quantity, doc.Total)
	}
	if doc.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", doc.Currency)
	}
	if doc.Attachment.Kind != domain.AttachmentPDF || doc.Attachment.MIME != "application/pdf" {
		t.Errorf("Attachment = %s/%s, want pdf", doc.Attachment.Kind, doc.Attachment.MIME)
	}
	if doc.Attachment.Name != "invoice-acme-2025-02-28.pdf" {
		t.Errorf("Name = %q", doc.Attachment.Name)
	}
	if !doc.Diagnostics.OK || doc.Diagnostics.Bytes != len("%PDF-1.7") || doc.Diagnostics.Error != "" {
		t.Errorf("Diagnostics = %+v", doc.Diagnostics)
	}
	if len(renderer.kinds) != 1 || renderer.kinds[0] != domain.AttachmentPDF {
		t.Errorf("renderer kinds = %v, want [pdf]", renderer.kinds)
	}
}

func TestCompose_HTMLContent(t *testing.T) {
	c := app.NewComposer(nil, domain.QuantitySum, discardLogger())

	doc := c.Compose(context.Background(), composeRequest(domain.AttachModeNone))

	for _, want := range []string{
		"acme Inc",
		"2025-02-28",
		"management status: active",
		"80.00",
		"Clients: 5, Providers: 2, Admins: 1, Users: 8",
	} {
		if !strings.Contains(doc.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if !strings.Contains(doc.Description, "2025-02-28") || !strings.Contains(doc.Description, "active") {
		t.Errorf("Description = %q", doc.Description)
	}
}

func TestCompose_AttachmentAlwaysPresent(t *testing.T) {
	tests := []struct {
		name     string
		renderer domain.Renderer
		attach   domain.AttachMode
		wantOK   bool
		wantErr  bool
	}{
		{"none requested", &mockRenderer{data: []byte("x")}, domain.AttachModeNone, true, false},
		{"nil renderer", nil, domain.AttachModePDF, false, true},
		{"render error", &mockRenderer{err: errors.New("chrome not found")}, domain.AttachModePDF, false, true},
		{"empty output", &mockRenderer{data: nil}, domain.AttachModePNG, false, true},
		{"render panic", &mockRenderer{panic: true}, domain.AttachModePNG, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := app.NewComposer(tt.renderer, domain.QuantitySum, discardLogger())
			doc := c.Compose(context.Background(), composeRequest(tt.attach))

			if len(doc.Attachment.Data) == 0 {
				t.Fatal("attachment must never be empty")
			}
			if doc.Attachment.Kind != domain.AttachmentHTML {
				t.Errorf("Kind = %s, want html", doc.Attachment.Kind)
			}
			if doc.Attachment.MIME != "text/html; charset=utf-8" {
				t.Errorf("MIME = %q", doc.Attachment.MIME)
			}
			if !strings.HasSuffix(doc.Attachment.Name, ".html") {
				t.Errorf("Name = %q, want .html extension", doc.Attachment.Name)
			}
			if string(doc.Attachment.Data) != doc.HTML {
				t.Error("fallback attachment should be the HTML bytes")
			}
			if doc.Diagnostics.OK != tt.wantOK {
				t.Errorf("Diagnostics.OK = %v, want %v", doc.Diagnostics.OK, tt.wantOK)
			}
			if (doc.Diagnostics.Error != "") != tt.wantErr {
				t.Errorf("Diagnostics.Error = %q", doc.Diagnostics.Error)
			}
			if doc.Diagnostics.Requested != tt.attach {
				t.Errorf("Requested = %q, want %q", doc.Diagnostics.Requested, tt.attach)
			}
		})
	}
}

func TestCompose_QuantityStrategy(t *testing.T) {
	req := composeRequest(domain.AttachModeNone)
	req.Snapshot = domain.UsageSnapshot{Clients: 2, Providers: 1, Admins: 1, Users: 10}

	tests := []struct {
		strategy domain.QuantityStrategy
		want     int
	}{
		{domain.QuantitySum, 4},
		{domain.QuantityUsers, 10},
		{domain.QuantityUsersOrSum, 10},
	}
	for _, tt := range tests {
		c := app.NewComposer(nil, tt.strategy, discardLogger())
		if got := c.Compose(context.Background(), req).Quantity; got != tt.want {
			t.Errorf("%s: Quantity = %d, want %d", tt.strategy, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	c := app.NewComposer(nil, domain.QuantitySum, discardLogger())

	if got := c.FormatAmount(44.97, "USD"); !strings.Contains(got, "44.97") || !strings.Contains(got, "$") {
		t.Errorf("FormatAmount(USD) = %q, want dollar amount", got)
	}
	if got := c.FormatAmount(44.97, "NOPE"); got != "44.97 NOPE" {
		t.Errorf("FormatAmount fallback = %q, want %q", got, "44.97 NOPE")
	}
}

func TestFormatAmount_FixedScale(t *testing.T) {
	c := app.NewComposer(nil, domain.QuantitySum, discardLogger())

	tests := []struct {
		code   string
		amount float64
		want   string
	}{
		{"JPY", 44.97, "44.97"},
		{"JPY", 80, "80.00"},
		{"KWD", 12.5, "12.50"},
		{"USD", 1234.5, "1,234.50"},
	}

	for _, tt := range tests {
		got := c.FormatAmount(tt.amount, tt.code)
		if !strings.HasSuffix(got, " "+tt.want) {
			t.Errorf("FormatAmount(%v, %s) = %q, want suffix %q", tt.amount, tt.code, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	got := app.FileName("acme", runDate, domain.AttachmentPNG)
	if got != "invoice-acme-2025-02-28.png" {
		t.Errorf("FileName = %q", got)
	}
}
