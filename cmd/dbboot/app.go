package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"arc-framework/dbboot/internal/api"
	"arc-framework/dbboot/internal/config"
	"arc-framework/dbboot/internal/database"
	"arc-framework/dbboot/internal/events"
	"arc-framework/dbboot/internal/orchestrator"
	"arc-framework/dbboot/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// server.go and bootstrap.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	repo         *database.Repository
	publisher    *events.Publisher
	registry     *prometheus.Registry
	orchestrator *orchestrator.Orchestrator
	router       *api.Router
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Resolves the extension settings (fails fast on bad ranges or pins)
//  2. Initialises the OTEL provider (best-effort, non-fatal)
//  3. Opens the Postgres repository behind its own circuit breaker
//  4. Creates the NATS outcome publisher when events.nats_url is set
//  5. Creates the orchestrator and the HTTP router
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	settings, err := orchestrator.SettingsFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("resolving database settings: %w", err)
	}

	tp, err := telemetry.InitProvider(ctx, telemetry.Options{
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: buildVersion,
		Insecure:       cfg.Telemetry.OTLPInsecure,
		Attributes: []attribute.KeyValue{
			attribute.String("db.system", "postgresql"),
			attribute.String("db.namespace", cfg.Database.DB),
			attribute.String("dbboot.vector_extension", string(settings.Active)),
		},
	})
	if err != nil {
		slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
	} else {
		app.otelProvider = tp
	}

	app.repo, err = database.Open(ctx, cfg.Database, settings.Active, database.NewCircuitBreaker("postgres"))
	if err != nil {
		return nil, err
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []orchestrator.Option{
		orchestrator.WithMetrics(orchestrator.NewMetrics(app.registry)),
		orchestrator.WithProber(app.repo),
	}
	if cfg.Events.NATSURL != "" {
		app.publisher = events.NewPublisher(cfg.Events, database.NewCircuitBreaker("nats"))
		opts = append(opts,
			orchestrator.WithNotifier(app.publisher),
			orchestrator.WithProber(app.publisher),
		)
	}

	app.orchestrator = orchestrator.New(app.repo, settings, opts...)
	app.router = api.NewRouter(app.orchestrator, cfg.Telemetry.ServiceName,
		promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry}))

	return app, nil
}

// provisionEvents makes sure the outcome stream exists before the first
// publish. Failure is logged; publishing is best-effort.
func (a *AppContext) provisionEvents(ctx context.Context) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.ProvisionStream(ctx); err != nil {
		slog.WarnContext(ctx, "provisioning outcome stream failed", "err", err)
	}
}

// Close flushes telemetry and closes the database pool. Safe to call twice.
func (a *AppContext) Close(ctx context.Context) {
	if a.otelProvider != nil {
		shutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.otelProvider.Shutdown(shutCtx); err != nil {
			slog.Warn("OTEL shutdown error", "err", err)
		}
		a.otelProvider = nil
	}
	if a.repo != nil {
		a.repo.Close()
		a.repo = nil
	}
}
