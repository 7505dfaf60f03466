package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neomorfeo/tenantbill/internal/domain"
)

// Compile-time check: BillingService implements domain.BillingRunner.
var _ domain.BillingRunner = (*BillingService)(nil)

// BillingConfig holds the run-wide defaults.
type BillingConfig struct {
	Attach   domain.AttachMode
	Currency string
}

// BillingDeps are the adapters a BillingService drives. Sender and Archive may be nil.
type BillingDeps struct {
	Registry  domain.TenantRegistry
	Collector domain.UsageCollector
	Pricing   *PricingResolver
	Composer  *Composer
	Sender    domain.InvoiceSender
	Archive   domain.InvoiceArchive
	Machine   domain.StateMachine
	Logger    *slog.Logger
}

// BillingService runs the monthly billing batch: every tenant is walked
// through the dispatch state machine, one after the other. At most one batch
// runs at a time, whether it came from the scheduler or the API.
type BillingService struct {
	deps    BillingDeps
	cfg     BillingConfig
	now     func() time.Time
	newID   func() string
	running sync.Mutex
}

// NewBillingService creates the batch orchestrator.
func NewBillingService(deps BillingDeps, cfg BillingConfig) *BillingService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pricing == nil {
		deps.Pricing = NewPricingResolver(nil, deps.Logger)
	}
	if deps.Composer == nil {
		deps.Composer = NewComposer(nil, domain.QuantitySum, deps.Logger)
	}
	if cfg.Attach == "" {
		cfg.Attach = domain.AttachModePDF
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultCurrency
	}
	return &BillingService{
		deps:  deps,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// run is the resolved per-batch context shared by every tenant pipeline.
type run struct {
	id       string
	date     domain.CivilDate
	attach   domain.AttachMode
	currency string
	force    bool
	sendZero bool
}

// Run executes one batch. Batch-level errors are limited to a missing webhook
// endpoint, a batch already in progress, an unknown tenant filter and a
// registry failure. Whatever happens to a single tenant ends up in that
// tenant's result.
func (s *BillingService) Run(ctx context.Context, opts domain.RunOptions) (domain.RunReport, error) {
	if s.deps.Sender == nil || s.deps.Sender.Endpoint() == "" {
		return domain.RunReport{}, domain.ErrWebhookNotConfigured
	}
	if !s.running.TryLock() {
		return domain.RunReport{}, domain.ErrRunInProgress
	}
	defer s.running.Unlock()

	now := opts.Now
	if now.IsZero() {
		now = s.now()
	}

	r := run{
		id:       s.newID(),
		date:     domain.Today(now),
		attach:   s.cfg.Attach,
		currency: s.cfg.Currency,
		force:    opts.Force,
		sendZero: opts.SendZero,
	}
	if opts.Attach != "" {
		r.attach = opts.Attach
	}
	if c := strings.ToUpper(strings.TrimSpace(opts.Currency)); c != "" {
		r.currency = c
	}

	report := domain.RunReport{
		RunID:            r.id,
		RunDate:          r.date,
		StartedAt:        now,
		Endpoint:         s.deps.Sender.Endpoint(),
		QuantityStrategy: s.deps.Composer.Strategy(),
		AttachMode:       r.attach,
		Currency:         r.currency,
		Tenant:           opts.Tenant,
		Forced:           opts.Force,
		SendZero:         opts.SendZero,
		Results:          []domain.DispatchResult{},
	}

	logger := s.deps.Logger.With("run_id", r.id)
	logger.Info("billing run started",
		"run_date", r.date.String(),
		"tenant", opts.Tenant,
		"force", opts.Force,
		"send_zero", opts.SendZero,
		"attach", r.attach,
	)

	tenants, err := s.tenants(ctx, opts.Tenant)
	if err != nil {
		return report, err
	}

	for _, t := range tenants {
		res := s.bill(ctx, r, t)
		logger.Info("tenant processed",
			"tenant_id", res.TenantID,
			"state", res.State,
			"status", res.Status,
			"reason", res.Reason,
			"total", res.Total,
		)
		report.Results = append(report.Results, res)
	}

	report.FinishedAt = s.now()
	report.Tally()

	logger.Info("billing run finished",
		"total", report.Counts.Total,
		"sent", report.Counts.Sent,
		"skipped", report.Counts.Skipped,
		"failed", report.Counts.Failed,
	)
	return report, nil
}

func (s *BillingService) tenants(ctx context.Context, id string) ([]domain.Tenant, error) {
	if id == "" {
		tenants, err := s.deps.Registry.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tenants: %w", err)
		}
		return tenants, nil
	}

	t, err := s.deps.Registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return []domain.Tenant{t}, nil
}

// pipeline tracks one tenant's walk through the state machine.
type pipeline struct {
	machine domain.StateMachine
	state   domain.State
	result  domain.DispatchResult
}

func (p *pipeline) step(ctx context.Context, event domain.Event) bool {
	next, err := p.machine.Apply(ctx, p.state, event)
	if err != nil {
		p.abort(ctx, err)
		return false
	}
	p.state = next
	return true
}

func (p *pipeline) skip(ctx context.Context, reason string) {
	p.result.Reason = reason
	next, err := p.machine.Apply(ctx, p.state, domain.EventSkip)
	if err != nil {
		next = domain.StateSkipped
	}
	p.state = next
}

// abort ends the pipeline as skipped after an unexpected step failure.
func (p *pipeline) abort(ctx context.Context, err error) {
	p.result.Error = err.Error()
	p.skip(ctx, domain.ReasonSkipPrefix+err.Error())
	p.state = domain.StateSkipped
}

func (p *pipeline) finish() domain.DispatchResult {
	if !p.state.Terminal() {
		p.state = domain.StateSkipped
	}
	p.result.State = p.state
	p.result.Status = domain.StatusOf(p.state)
	return p.result
}

// bill runs a single tenant to a terminal state. Panics are recovered into a skip.
func (s *BillingService) bill(ctx context.Context, r run, t domain.Tenant) (res domain.DispatchResult) {
	p := &pipeline{
		machine: s.deps.Machine,
		state:   domain.StateDiscovered,
		result: domain.DispatchResult{
			TenantID:    t.ID,
			CompanyName: t.Name,
			Currency:    r.currency,
			Recipients:  t.InvoiceEmails,
		},
	}

	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprint(rec)
			s.deps.Logger.Error("tenant pipeline panicked",
				"run_id", r.id,
				"tenant_id", t.ID,
				"panic", msg,
			)
			p.result.Reason = domain.ReasonSkipPrefix + msg
			p.result.Error = msg
			p.state = domain.StateSkipped
		}
		res = p.finish()
	}()

	s.process(ctx, r, t, p)
	return res
}

func (s *BillingService) process(ctx context.Context, r run, t domain.Tenant, p *pipeline) {
	// Gate.
	if t.ManagementDate == nil && !r.force {
		p.skip(ctx, domain.ReasonNoManagementDate)
		return
	}
	if !p.step(ctx, domain.EventCheckGate) {
		return
	}
	if !r.force && !domain.IsDueToday(*t.ManagementDate, r.date) {
		p.skip(ctx, domain.ReasonNotDueToday)
		return
	}

	// Snapshot.
	snap, err := s.deps.Collector.Collect(ctx, t)
	if err != nil {
		p.result.Error = err.Error()
		var soft *domain.SoftDBError
		if errors.As(err, &soft) {
			p.skip(ctx, domain.ReasonDBSkipPrefix+soft.Code)
		} else {
			p.skip(ctx, domain.ReasonSkipPrefix+err.Error())
		}
		return
	}
	if !p.step(ctx, domain.EventTakeSnapshot) {
		return
	}

	// Price.
	rate := s.deps.Pricing.Resolve(ctx, t)
	qty := s.deps.Composer.Quantity(snap)
	p.result.Rate = rate
	p.result.Quantity = qty
	if !p.step(ctx, domain.EventPrice) {
		return
	}
	if !r.sendZero {
		if rate <= 0 {
			p.skip(ctx, domain.ReasonNoRate)
			return
		}
		if qty <= 0 {
			p.skip(ctx, domain.ReasonNoUsers)
			return
		}
	}

	// Compose.
	doc := s.deps.Composer.Compose(ctx, ComposeRequest{
		Tenant:   t,
		Snapshot: snap,
		Rate:     rate,
		RunDate:  r.date,
		Attach:   r.attach,
		Currency: r.currency,
	})
	p.result.Total = doc.Total
	p.result.Attachment = &domain.AttachmentInfo{
		Name:      doc.Attachment.Name,
		MIME:      doc.Attachment.MIME,
		Bytes:     len(doc.Attachment.Data),
		Requested: doc.Diagnostics.Requested,
		Attempted: doc.Diagnostics.Attempted,
		Rendered:  doc.Diagnostics.OK,
		Error:     doc.Diagnostics.Error,
	}
	if !p.step(ctx, domain.EventCompose) {
		return
	}

	if s.deps.Archive != nil {
		if err := s.deps.Archive.Store(ctx, doc); err != nil {
			s.deps.Logger.Warn("archiving invoice failed",
				"run_id", r.id,
				"tenant_id", t.ID,
				"error", err,
			)
		}
	}

	// Send.
	receipt, err := s.deps.Sender.Send(ctx, doc)
	if err == nil {
		p.result.HTTPStatus = receipt.Status
		p.step(ctx, domain.EventSendOK)
		return
	}

	var delivery *domain.DeliveryError
	if errors.As(err, &delivery) {
		p.result.HTTPStatus = delivery.Status
		p.result.Reason = delivery.Error()
		p.result.Error = delivery.Body
		p.step(ctx, domain.EventSendFail)
		return
	}

	msg := err.Error()
	var fault *domain.DeliveryFaultError
	if errors.As(err, &fault) && fault.Err != nil {
		msg = fault.Err.Error()
	}
	p.result.Reason = domain.ReasonWebhookPrefix + msg
	p.result.Error = err.Error()
	p.step(ctx, domain.EventSendFault)
}
