package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketplace/fulfillment/internal/application/fulfillment"
	"github.com/marketplace/fulfillment/internal/application/payment"
	riskapp "github.com/marketplace/fulfillment/internal/application/risk"
	domainprovider "github.com/marketplace/fulfillment/internal/domain/provider"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/cache"
	"github.com/marketplace/fulfillment/internal/infrastructure/config"
	"github.com/marketplace/fulfillment/internal/infrastructure/event"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence"
	"github.com/marketplace/fulfillment/internal/infrastructure/provider"
	"github.com/marketplace/fulfillment/internal/infrastructure/scheduler"
	"github.com/marketplace/fulfillment/internal/infrastructure/storage"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"github.com/marketplace/fulfillment/internal/interfaces/http/handler"
)

// application holds the wired services and the background workers they need
type application struct {
	cfg    *config.Config
	logger *zap.Logger

	bus         *event.InMemoryEventBus
	queue       *scheduler.Scheduler
	metrics     *telemetry.WorkflowMetrics
	idempotency shared.IdempotencyStore

	workflows      *fulfillment.WorkflowService
	orders         *fulfillment.OrderService
	jobs           *fulfillment.JobService
	archiver       *fulfillment.ExecutionArchiver
	investigations *riskapp.InvestigationService
	saga           *payment.SagaCoordinator

	stopFns []func(context.Context)
}

func buildApp(ctx context.Context, cfg *config.Config, db *persistence.Database, tel *telemetryStack, log *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: log}

	definitions := persistence.NewGormDefinitionRepository(db.DB)
	executions := persistence.NewGormExecutionRepository(db.DB)
	stepLogs := persistence.NewGormStepLogRepository(db.DB)
	inventoryStore := persistence.NewGormInventoryStore(db.DB)
	assessments := persistence.NewGormAssessmentRepository(db.DB)
	profiles := persistence.NewGormProfileRepository(db.DB)
	transfers := persistence.NewGormTransferRepository(db.DB)

	metrics, err := telemetry.NewWorkflowMetrics(telemetry.WorkflowMetricsConfig{
		Meter:  tel.meter(),
		Logger: log,
		Stats:  telemetry.NewGormStatsProvider(db.DB),
	})
	if err != nil {
		return nil, fmt.Errorf("workflow metrics: %w", err)
	}
	app.metrics = metrics

	store, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	app.idempotency = store

	app.bus = event.NewInMemoryEventBus(log)

	client := provider.NewClientStack(
		provider.NewFakeClient(provider.WithOpeningBalance(cfg.Provider.OpeningBalance)),
		store,
		provider.RetryConfig{
			MaxAttempts:     cfg.Provider.MaxAttempts,
			InitialInterval: cfg.Provider.InitialInterval,
			MaxInterval:     cfg.Provider.MaxInterval,
			CallTimeout:     cfg.Provider.CallTimeout,
		},
		cfg.Saga.IdempotencyTTL,
		log,
		metrics,
	)

	app.queue, err = scheduler.NewScheduler(scheduler.SchedulerConfig{
		Workers:       cfg.Jobs.Workers,
		QueueSize:     cfg.Jobs.QueueSize,
		JobTimeout:    cfg.Jobs.JobTimeout,
		RetryAttempts: cfg.Jobs.RetryAttempts,
		RetryDelay:    cfg.Jobs.RetryDelay,
		Retention:     scheduler.DefaultSchedulerConfig().Retention,
	}, log, scheduler.WithPublisher(app.bus))
	if err != nil {
		return nil, fmt.Errorf("job scheduler: %w", err)
	}

	archive, err := newArchiveStore(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("execution archive: %w", err)
	}

	aggregator := riskapp.NewAggregator(
		riskapp.NewScorers(scoringConfig(cfg.Risk)),
		profiles,
		assessments,
		log,
		riskapp.WithMetrics(metrics),
	)

	app.saga = payment.NewSagaCoordinator(transfers, client, payment.SagaConfig{
		Fees: wallet.FeeSchedule{
			BaseFee:                cfg.Saga.BaseFee,
			Percentage:             cfg.Saga.FeePercentage,
			CrossProviderSurcharge: cfg.Saga.CrossProviderSurcharge,
			MaxFee:                 cfg.Saga.MaxFee,
		},
		Limits:               wallet.NewProviderLimits(cfg.Saga.ProviderLimits),
		CompensationAttempts: cfg.Saga.CompensationAttempts,
		CompensationBackoff:  cfg.Saga.CompensationBackoff,
	}, log,
		payment.WithEventPublisher(app.bus),
		payment.WithMetrics(metrics),
	)

	handlers, err := registerStepHandlers(cfg, client, inventoryStore, aggregator, app.saga, log)
	if err != nil {
		return nil, err
	}

	executor := fulfillment.NewExecutor(definitions, executions, stepLogs, handlers, log,
		fulfillment.WithStepTimeout(cfg.Workflow.StepTimeout),
		fulfillment.WithEventPublisher(app.bus),
		fulfillment.WithMetrics(metrics),
	)

	app.archiver = fulfillment.NewExecutionArchiver(archive, executions, stepLogs, cfg.Storage.PresignExpiration, log)
	app.archiver.SetQueue(app.queue)
	fulfillment.RegisterJobs(app.queue, executor, app.archiver, fulfillment.JobSettings{
		ArchiveRetries:    cfg.Jobs.RetryAttempts,
		ArchiveRetryDelay: cfg.Jobs.RetryDelay,
	})

	app.workflows = fulfillment.NewWorkflowService(definitions, handlers, app.bus, log)
	app.orders = fulfillment.NewOrderService(executor, executions, stepLogs, app.queue)
	app.jobs = fulfillment.NewJobService(app.queue)

	app.investigations = riskapp.NewInvestigationService(assessments, log)
	app.investigations.SetEventPublisher(app.bus)

	// Redelivered finished events must not archive the same execution twice
	archiveOnFinish := event.NewIdempotentHandler("execution-archive", app.archiver, store, log)
	app.bus.Subscribe(archiveOnFinish)
	log.Info("Event handlers registered",
		zap.Strings("execution_archive_events", archiveOnFinish.EventTypes()),
	)

	return app, nil
}

// registerStepHandlers registers one handler per step type
func registerStepHandlers(
	cfg *config.Config,
	client domainprovider.Client,
	stock *persistence.GormInventoryStore,
	screener *riskapp.Aggregator,
	saga *payment.SagaCoordinator,
	log *zap.Logger,
) (*fulfillment.HandlerRegistry, error) {
	couriers, err := couriersFromConfig(cfg.Shipping.Couriers)
	if err != nil {
		return nil, err
	}

	registry := fulfillment.NewHandlerRegistry()
	for _, h := range []fulfillment.StepHandler{
		fulfillment.NewInventoryCheckHandler(stock),
		fulfillment.NewFraudCheckHandler(screener, cfg.Risk.BlockThreshold, log),
		fulfillment.NewPaymentHandler(saga, client, log,
			fulfillment.WithCardProvider(cfg.Provider.CardProvider),
			fulfillment.WithFailedPaymentRecorder(screener),
		),
		fulfillment.NewAllocationHandler(stock),
		fulfillment.NewSplittingHandler(),
		fulfillment.NewShippingHandler(couriers, workflow.ShippingPolicy(cfg.Shipping.DefaultPolicy),
			fulfillment.WithTrackingClient(client),
		),
		fulfillment.NewVendorNotificationHandler(client, cfg.Provider.NotifyProvider),
		fulfillment.NewCustomerNotificationHandler(client, cfg.Provider.NotifyProvider),
		fulfillment.NewAnalyticsHandler(client, cfg.Provider.AnalyticsTarget),
	} {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("register %s handler: %w", h.Type(), err)
		}
	}
	return registry, nil
}

// newArchiveStore uses S3 when storage is enabled and memory otherwise
func newArchiveStore(ctx context.Context, cfg *config.StorageConfig, log *zap.Logger) (fulfillment.ArchiveStore, error) {
	if !cfg.Enabled {
		log.Info("Object storage disabled, archiving executions in memory")
		return storage.NewMemoryArchive(), nil
	}
	s3, err := storage.NewS3Archive(cfg,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.PresignExpiration),
	)
	if err != nil {
		return nil, err
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	log.Info("Archiving executions to object storage", zap.String("bucket", s3.Bucket()))
	return s3, nil
}

func couriersFromConfig(in []config.CourierConfig) ([]workflow.Courier, error) {
	couriers := make([]workflow.Courier, 0, len(in))
	for _, c := range in {
		cost, err := decimal.NewFromString(c.BaseCost)
		if err != nil {
			return nil, fmt.Errorf("courier %s: invalid base cost %q: %w", c.Name, c.BaseCost, err)
		}
		couriers = append(couriers, workflow.Courier{
			Name:     c.Name,
			Coverage: c.Coverage,
			ETADays:  c.ETADays,
			BaseCost: cost,
		})
	}
	return couriers, nil
}

func scoringConfig(cfg config.RiskConfig) riskapp.ScoringConfig {
	return riskapp.ScoringConfig{
		Rule: risk.RuleWeights{
			RapidSuccession:    cfg.Rule.RapidSuccession,
			HighVelocity:       cfg.Rule.HighVelocity,
			AmountSpike:        cfg.Rule.AmountSpike,
			AmountDeviation:    cfg.Rule.AmountDeviation,
			UnrecognizedDevice: cfg.Rule.UnrecognizedDevice,
			OffHours:           cfg.Rule.OffHours,
		},
		Heuristic: risk.HeuristicWeights{
			AmountRatio:    cfg.Heuristic.AmountRatio,
			NewDevice:      cfg.Heuristic.NewDevice,
			NewAccount:     cfg.Heuristic.NewAccount,
			FailedPayments: cfg.Heuristic.FailedPayments,
			HourDeviation:  cfg.Heuristic.HourDeviation,
		},
		Region: risk.RegionWeights{
			UnverifiedRecipient:    cfg.Region.UnverifiedRecipient,
			AboveMobileMoneyNorm:   cfg.Region.AboveMobileMoneyNorm,
			IncompleteVerification: cfg.Region.IncompleteVerification,
			CrossBorder:            cfg.Region.CrossBorder,
			HighRiskLocation:       cfg.Region.HighRiskLocation,
		},
		NewAccountAge:     cfg.NewAccountAge,
		FailedPaymentsCap: cfg.FailedPaymentsCap,
		MobileMoneyNorms:  cfg.MobileMoneyNorms,
		HighRiskLocations: cfg.HighRiskLocations,
	}
}

// start seeds definitions, resumes interrupted transfers and starts the
// event bus, the job workers and the periodic gauges.
func (a *application) start(ctx context.Context) error {
	if a.cfg.Workflow.SeedDefaults {
		n, err := a.workflows.SeedDefaults(ctx)
		if err != nil {
			return fmt.Errorf("seed workflow definitions: %w", err)
		}
		if n > 0 {
			a.logger.Info("Seeded default workflow definitions", zap.Int("count", n))
		}
	}

	if err := a.bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	a.onStop(func(ctx context.Context) {
		if err := a.bus.Stop(ctx); err != nil {
			a.logger.Error("Error stopping event bus", zap.Error(err))
		}
	})

	if err := a.queue.Start(ctx); err != nil {
		return fmt.Errorf("start job scheduler: %w", err)
	}
	a.onStop(func(ctx context.Context) {
		if err := a.queue.Stop(ctx); err != nil {
			a.logger.Error("Error stopping job scheduler", zap.Error(err))
		}
	})
	a.logger.Info("Job scheduler started",
		zap.Int("workers", a.cfg.Jobs.Workers),
		zap.Int("queue_size", a.cfg.Jobs.QueueSize),
	)

	resumed, err := a.saga.ResumeInFlight(ctx)
	if err != nil {
		a.logger.Error("Failed to resume in-flight transfers", zap.Error(err))
	} else if resumed > 0 {
		a.logger.Info("Resumed in-flight transfers", zap.Int("count", resumed))
	}

	a.metrics.StartPeriodicCollection(context.Background(), a.cfg.Telemetry.MetricsInterval)
	a.onStop(func(context.Context) { a.metrics.Stop() })

	if closer, ok := a.idempotency.(interface{ Close() error }); ok {
		a.onStop(func(context.Context) {
			if err := closer.Close(); err != nil {
				a.logger.Warn("Error closing idempotency store", zap.Error(err))
			}
		})
	}
	return nil
}

func (a *application) onStop(fn func(context.Context)) {
	a.stopFns = append(a.stopFns, fn)
}

// stop runs the registered cleanups in reverse order
func (a *application) stop(ctx context.Context) {
	for i := len(a.stopFns) - 1; i >= 0; i-- {
		a.stopFns[i](ctx)
	}
}

// healthChecks checks the database, Redis when configured and the job workers
func (a *application) healthChecks(db *persistence.Database) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
		"jobs": func(context.Context) error {
			if !a.queue.IsRunning() {
				return fmt.Errorf("job scheduler is not running")
			}
			return nil
		},
	}
	if redis, ok := a.idempotency.(*cache.RedisIdempotencyStore); ok {
		checks["redis"] = redis.Ping
	}
	return checks
}
