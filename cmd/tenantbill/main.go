package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/tenantbill/internal/adapter/fsm"
	"github.com/neomorfeo/tenantbill/internal/adapter/mysql"
	"github.com/neomorfeo/tenantbill/internal/adapter/otel"
	"github.com/neomorfeo/tenantbill/internal/adapter/pricing"
	"github.com/neomorfeo/tenantbill/internal/adapter/render"
	"github.com/neomorfeo/tenantbill/internal/adapter/river"
	"github.com/neomorfeo/tenantbill/internal/adapter/s3archive"
	"github.com/neomorfeo/tenantbill/internal/adapter/tenantfs"
	"github.com/neomorfeo/tenantbill/internal/adapter/webhook"
	"github.com/neomorfeo/tenantbill/internal/app"
	"github.com/neomorfeo/tenantbill/internal/config"
	"github.com/neomorfeo/tenantbill/internal/domain"

	handler "github.com/neomorfeo/tenantbill/internal/adapter/http"
)

const serviceName = "tenantbill"

func main() {
	if err := run(); err != nil {
		slog.Error("tenantbill exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := cfg.Logging.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	prices, closePricing, err := openPricing(cfg.Pricing, db)
	if err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	defer closePricing()

	registry := tenantfs.New(cfg.Tenants.Dir, logger)
	tracedRegistry := otel.NewTracingRegistry(registry)
	collector := otel.NewTracingCollector(mysql.NewCollector(otel.OpenMySQL, cfg.Tenants.DBTimeout, logger))

	webhookSender, err := webhook.New(cfg.Billing.WebhookURL, cfg.Billing.WebhookTimeout)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if cfg.Billing.WebhookURL == "" {
		logger.Warn("BILLING_WEBHOOK_URL is not set; billing runs will be refused")
	}

	renderer, closeRenderer := startRenderer(ctx, cfg.Render, logger)
	defer closeRenderer()

	archive, err := newArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	// --- Application ---
	billing := app.NewBillingService(app.BillingDeps{
		Registry:  tracedRegistry,
		Collector: collector,
		Pricing:   app.NewPricingResolver(prices, logger),
		Composer:  app.NewComposer(renderer, cfg.Billing.QuantityStrategy, logger),
		Sender:    otel.NewTracingSender(webhookSender),
		Archive:   archive,
		Machine:   fsm.New(),
		Logger:    logger,
	}, app.BillingConfig{
		Attach:   cfg.Billing.Attach,
		Currency: cfg.Billing.Currency,
	})

	runner, err := otel.NewTracingRunner(billing)
	if err != nil {
		return fmt.Errorf("billing metrics: %w", err)
	}

	tenants := app.NewTenantService(tracedRegistry, registry, collector, prices)

	// --- Scheduler ---
	jobs, err := river.Setup(ctx, db, runner, river.Options{
		Schedule: cfg.Billing.Schedule,
		Periodic: cfg.Billing.ScheduleEnabled,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	// Stop drains the client on shutdown; the signal context must not hard-stop it.
	if err := jobs.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("starting river: %w", err)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig(serviceName, "0.1.0"))
	handler.Register(api, tenants)
	handler.RegisterBilling(api, runner, river.NewEnqueuer(jobs))

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("tenantbill listening", "port", cfg.Server.Port, "docs", "/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		runErr = fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		logger.Error("river shutdown", "error", err)
	}

	logger.Info("stopped")
	return runErr
}

// openPricing returns the shared pricing repository: a dedicated MySQL pool
// when a DSN is configured, otherwise the local SQLite table.
func openPricing(cfg config.PricingConfig, local *sql.DB) (*pricing.Repository, func(), error) {
	if cfg.DSN == "" {
		repo, err := pricing.NewRepository(local, cfg.Table)
		return repo, func() {}, err
	}

	pool, err := otel.OpenMySQLPool(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	repo, err := pricing.NewRepository(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo, func() { pool.Close() }, nil
}

// startRenderer launches headless Chrome. A browser that fails to start
// leaves invoices on the HTML fallback.
func startRenderer(ctx context.Context, cfg config.RenderConfig, logger *slog.Logger) (domain.Renderer, func()) {
	if !cfg.Enabled {
		return nil, func() {}
	}

	browser, err := render.NewBrowser(ctx, render.Options{
		ExecPath: cfg.ChromePath,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		logger.Warn("headless browser unavailable; attachments fall back to HTML", "error", err)
		return nil, func() {}
	}
	return browser, func() {
		if err := browser.Close(); err != nil {
			logger.Error("closing browser", "error", err)
		}
	}
}

func newArchive(ctx context.Context, cfg config.ArchiveConfig) (domain.InvoiceArchive, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	archive, err := s3archive.New(ctx, s3archive.Config{
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.Endpoint != "",
	})
	if err != nil {
		return nil, err
	}
	return archive, nil
}
