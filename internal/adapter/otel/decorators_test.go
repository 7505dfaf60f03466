package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	adapter "github.com/neomorfeo/tenantbill/internal/adapter/otel"
	"github.com/neomorfeo/tenantbill/internal/domain"
)

// --- Test tracer setup ---

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

// --- Mocks ---

type mockRegistry struct{}

func (mockRegistry) List(context.Context) ([]domain.Tenant, error) {
	return []domain.Tenant{{ID: "a"}, {ID: "b"}}, nil
}

func (mockRegistry) Get(_ context.Context, id string) (domain.Tenant, error) {
	if id == "a" {
		return domain.Tenant{ID: "a"}, nil
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

type mockCollector struct {
	err error
}

func (m mockCollector) Collect(context.Context, domain.Tenant) (domain.UsageSnapshot, error) {
	if m.err != nil {
		return domain.UsageSnapshot{}, m.err
	}
	return domain.UsageSnapshot{Clients: 5, Providers: 2, Admins: 1, Users: 8}, nil
}

type mockSender struct {
	receipt domain.SendReceipt
	err     error
}

func (m mockSender) Endpoint() string { return "https://hooks.example.test" }

func (m mockSender) Send(context.Context, domain.InvoiceDocument) (domain.SendReceipt, error) {
	return m.receipt, m.err
}

type mockRunner struct {
	report domain.RunReport
	err    error
}

func (m mockRunner) Run(context.Context, domain.RunOptions) (domain.RunReport, error) {
	return m.report, m.err
}

// --- Tests ---

func TestTracingRegistry_RecordsSpans(t *testing.T) {
	exporter := setupTestTracer(t)
	reg := adapter.NewTracingRegistry(mockRegistry{})

	tenants, err := reg.List(context.Background())
	if err != nil || len(tenants) != 2 {
		t.Fatalf("List = %v, %v", tenants, err)
	}
	if _, err := reg.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name != "TenantRegistry.List" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if v, ok := attr(spans[0].Attributes, "result.count"); !ok || v.AsInt64() != 2 {
		t.Errorf("result.count = %v", v)
	}
	if spans[1].Status.Code != codes.Error {
		t.Errorf("Get span status = %v, want Error", spans[1].Status.Code)
	}
}

func TestTracingCollector_TagsSoftErrors(t *testing.T) {
	exporter := setupTestTracer(t)
	col := adapter.NewTracingCollector(mockCollector{
		err: &domain.SoftDBError{Code: "ECONNREFUSED", Err: errors.New("refused")},
	})

	_, err := col.Collect(context.Background(), domain.Tenant{ID: "acme", DB: domain.DBParams{Host: "db1"}})
	var soft *domain.SoftDBError
	if !errors.As(err, &soft) {
		t.Fatalf("expected SoftDBError to pass through, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "UsageCollector.Collect" {
		t.Errorf("span name = %q", span.Name)
	}
	if v, _ := attr(span.Attributes, "db.error_code"); v.AsString() != "ECONNREFUSED" {
		t.Errorf("db.error_code = %q", v.AsString())
	}
	if v, _ := attr(span.Attributes, "db.host"); v.AsString() != "db1" {
		t.Errorf("db.host = %q", v.AsString())
	}
	if span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}
}

func TestTracingCollector_RecordsCounts(t *testing.T) {
	exporter := setupTestTracer(t)
	col := adapter.NewTracingCollector(mockCollector{})

	snap, err := col.Collect(context.Background(), domain.Tenant{ID: "acme"})
	if err != nil || snap.Clients != 5 {
		t.Fatalf("Collect = %+v, %v", snap, err)
	}

	span := exporter.GetSpans()[0]
	if v, _ := attr(span.Attributes, "usage.users"); v.AsInt64() != 8 {
		t.Errorf("usage.users = %d", v.AsInt64())
	}
	if span.Status.Code == codes.Error {
		t.Error("successful collect should not be marked as error")
	}
}

func TestTracingSender_RecordsStatus(t *testing.T) {
	exporter := setupTestTracer(t)
	s := adapter.NewTracingSender(mockSender{
		receipt: domain.SendReceipt{Status: 502, Body: "bad gateway"},
		err:     &domain.DeliveryError{Status: 502, Body: "bad gateway"},
	})

	if s.Endpoint() != "https://hooks.example.test" {
		t.Errorf("Endpoint = %q", s.Endpoint())
	}

	_, err := s.Send(context.Background(), domain.InvoiceDocument{TenantID: "acme", Total: 80})
	var delivery *domain.DeliveryError
	if !errors.As(err, &delivery) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}

	span := exporter.GetSpans()[0]
	if span.Name != "InvoiceSender.Send" {
		t.Errorf("span name = %q", span.Name)
	}
	if v, _ := attr(span.Attributes, "http.response.status_code"); v.AsInt64() != 502 {
		t.Errorf("status attr = %d", v.AsInt64())
	}
	if v, _ := attr(span.Attributes, "webhook.fault"); v.AsBool() {
		t.Error("non-2xx answer is not a fault")
	}
}

func TestTracingRunner_CountsResults(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)

	runner, err := adapter.NewTracingRunner(mockRunner{report: domain.RunReport{
		RunID: "run-1",
		Results: []domain.DispatchResult{
			{TenantID: "a", Status: domain.ResultOK, State: domain.StateSent},
			{TenantID: "b", Status: domain.ResultSkipped, State: domain.StateSkipped},
			{TenantID: "c", Status: domain.ResultOK, State: domain.StateSent},
		},
		Counts: domain.RunCounts{Total: 3, Sent: 2, Skipped: 1},
	}})
	if err != nil {
		t.Fatalf("NewTracingRunner: %v", err)
	}

	if _, err := runner.Run(context.Background(), domain.RunOptions{Force: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	span := exporter.GetSpans()[0]
	if v, _ := attr(span.Attributes, "billing.sent"); v.AsInt64() != 2 {
		t.Errorf("billing.sent = %d", v.AsInt64())
	}
	if v, _ := attr(span.Attributes, "billing.force"); !v.AsBool() {
		t.Error("billing.force should be true")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}

	byStatus := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "billing.results" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("billing.results has type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				byStatus[status.AsString()] += dp.Value
			}
		}
	}
	if byStatus["ok"] != 2 || byStatus["skipped"] != 1 {
		t.Errorf("billing.results = %v, want ok=2 skipped=1", byStatus)
	}
}

func TestTracingRunner_RecordsError(t *testing.T) {
	exporter := setupTestTracer(t)
	setupTestMeter(t)

	runner, err := adapter.NewTracingRunner(mockRunner{err: domain.ErrWebhookNotConfigured})
	if err != nil {
		t.Fatalf("NewTracingRunner: %v", err)
	}

	if _, err := runner.Run(context.Background(), domain.RunOptions{}); !errors.Is(err, domain.ErrWebhookNotConfigured) {
		t.Fatalf("expected ErrWebhookNotConfigured, got %v", err)
	}
	if span := exporter.GetSpans()[0]; span.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status.Code)
	}
}
