package app_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// --- Mocks ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockRegistry struct {
	tenants []domain.Tenant
	listErr error
}

func (m *mockRegistry) List(_ context.Context) ([]domain.Tenant, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.tenants, nil
}

func (m *mockRegistry) Get(_ context.Context, id string) (domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

type mockCollector struct {
	snapshots map[string]domain.UsageSnapshot
	errs      map[string]error
	panics    map[string]bool
	calls     []string
}

func newMockCollector() *mockCollector {
	return &mockCollector{
		snapshots: make(map[string]domain.UsageSnapshot),
		errs:      make(map[string]error),
		panics:    make(map[string]bool),
	}
}

func (m *mockCollector) Collect(_ context.Context, t domain.Tenant) (domain.UsageSnapshot, error) {
	m.calls = append(m.calls, t.ID)
	if m.panics[t.ID] {
		panic("collector exploded")
	}
	if err := m.errs[t.ID]; err != nil {
		return domain.UsageSnapshot{}, err
	}
	return m.snapshots[t.ID], nil
}

type mockStore struct {
	rates map[string]float64
	err   error
	keys  []string
}

func (m *mockStore) LatestRate(_ context.Context, key string) (float64, bool, error) {
	m.keys = append(m.keys, key)
	if m.err != nil {
		return 0, false, m.err
	}
	rate, ok := m.rates[key]
	return rate, ok, nil
}

type mockRenderer struct {
	data  []byte
	err   error
	panic bool
	kinds []domain.AttachmentKind
}

func (m *mockRenderer) Render(_ context.Context, _ string, kind domain.AttachmentKind) ([]byte, error) {
	m.kinds = append(m.kinds, kind)
	if m.panic {
		panic("browser crashed")
	}
	return m.data, m.err
}

type mockSender struct {
	endpoint string
	status   int
	errs     map[string]error
	sent     []domain.InvoiceDocument
}

func (m *mockSender) Endpoint() string { return m.endpoint }

func (m *mockSender) Send(_ context.Context, doc domain.InvoiceDocument) (domain.SendReceipt, error) {
	m.sent = append(m.sent, doc)
	if err := m.errs[doc.TenantID]; err != nil {
		return domain.SendReceipt{}, err
	}
	status := m.status
	if status == 0 {
		status = 200
	}
	return domain.SendReceipt{Status: status, Body: "ok"}, nil
}

type mockArchive struct {
	stored []domain.InvoiceDocument
	err    error
}

func (m *mockArchive) Store(_ context.Context, doc domain.InvoiceDocument) error {
	m.stored = append(m.stored, doc)
	return m.err
}

// mockMachine applies domain.DispatchTransitions without looplab/fsm.
type mockMachine struct {
	applied []domain.Event
}

func (m *mockMachine) Apply(_ context.Context, current domain.State, event domain.Event) (domain.State, error) {
	m.applied = append(m.applied, event)
	for _, t := range domain.DispatchTransitions {
		if t.Src == current && t.Event == event {
			return t.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}

type mockWriter struct {
	calls []rateCall
	err   error
}

type rateCall struct {
	id    string
	rate  float64
	email string
}

func (m *mockWriter) SetRate(_ context.Context, id string, rate float64, email string) error {
	m.calls = append(m.calls, rateCall{id: id, rate: rate, email: email})
	return m.err
}

type mockRecorder struct {
	keys  []string
	rates []float64
	at    []time.Time
}

func (m *mockRecorder) Record(_ context.Context, key string, rate float64, at time.Time) error {
	m.keys = append(m.keys, key)
	m.rates = append(m.rates, rate)
	m.at = append(m.at, at)
	return nil
}

// --- Fixtures ---

func ptr[T any](v T) *T { return &v }

func civil(y int, m time.Month, d int) *domain.CivilDate {
	return &domain.CivilDate{Year: y, Month: m, Day: d}
}

// noonUTC is 08:00 in the billing zone on the same civil day.
func noonUTC(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func dueTenant(id string, anchor *domain.CivilDate, rate float64) domain.Tenant {
	return domain.Tenant{
		ID:               id,
		Name:             id + " Inc",
		CompanyKey:       id,
		DB:               domain.DBParams{Host: "db", Port: 3306, Database: id, User: "u"},
		Tables:           domain.DefaultTableNames(),
		ManagementStatus: "active",
		ManagementDate:   anchor,
		InvoiceEmails:    []string{"billing@" + id + ".test"},
		RateOverride:     ptr(rate),
	}
}
