// Command server runs the order fulfillment HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/marketplace/fulfillment/internal/infrastructure/config"
	"github.com/marketplace/fulfillment/internal/infrastructure/logger"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence"
	"github.com/marketplace/fulfillment/internal/infrastructure/telemetry"
	"github.com/marketplace/fulfillment/internal/interfaces/http/handler"
	"github.com/marketplace/fulfillment/internal/interfaces/http/middleware"
	"github.com/marketplace/fulfillment/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx := context.Background()

	// Bootstrap logger, replaced below once the OTLP log bridge is known
	bootLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	tel, err := initTelemetry(ctx, cfg, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	log := tel.logger
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting fulfillment service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
	)

	db, err := openDatabase(cfg, tel, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", driverName(cfg.Database.Driver)))

	app, err := buildApp(ctx, cfg, db, tel, log)
	if err != nil {
		log.Fatal("Failed to build application", zap.Error(err))
	}
	if err := app.start(ctx); err != nil {
		log.Fatal("Failed to start background workers", zap.Error(err))
	}

	engine := newEngine(cfg, tel, app, db, log)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	app.stop(shutdownCtx)
	tel.shutdown(shutdownCtx)

	log.Info("Server exited gracefully")
}

// openDatabase connects with the zap-backed gorm logger and registers the
// query instrumentation. sqlite databases get their schema from the models.
func openDatabase(cfg *config.Config, tel *telemetryStack, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
	)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		return nil, err
	}

	inst, err := telemetry.NewDBInstrumentation(telemetry.DBInstrumentationConfig{
		Tracing:            cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:         cfg.Telemetry.DBLogFullSQL,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:           dbSystem(cfg.Database.Driver),
	}, tel.meter(), log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := inst.Initialize(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	if cfg.Telemetry.Enabled {
		inst.StartPoolStatsCollection(context.Background())
	}
	tel.dbInstrumentation = inst

	if cfg.Database.Driver == "sqlite" {
		if err := persistence.AutoMigrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// newEngine assembles the gin engine. Middleware order:
// request ID, recovery, access log, tracing, metrics, security headers,
// CORS, body limit and the optional request deadline.
func newEngine(cfg *config.Config, tel *telemetryStack, app *application, db *persistence.Database, log *zap.Logger) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: tel.meterProvider,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if cfg.HTTP.RequestTimeout > 0 {
		engine.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	}

	var routeOpts router.RouteOptions
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		app.onStop(func(context.Context) { limiter.Stop() })
		routeOpts.ProcessMiddleware = append(routeOpts.ProcessMiddleware, middleware.RateLimit(limiter))
		log.Info("Rate limiting enabled on order processing",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	health := handler.NewHealthHandler(app.healthChecks(db), 0)
	handlers := router.Handlers{
		Orders:    handler.NewOrderHandler(app.orders),
		Workflows: handler.NewWorkflowHandler(app.workflows),
		Jobs:      handler.NewJobHandler(app.jobs),
		Archives:  handler.NewArchiveHandler(app.archiver),
		Risk:      handler.NewRiskHandler(app.investigations),
		Transfers: handler.NewTransferHandler(app.saga),
		Health:    health,
	}

	// Load balancer health check outside API versioning
	engine.GET("/health", health.Check)

	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(router.DomainGroups(handlers, routeOpts)...).
		Setup()

	return engine
}

func dbSystem(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgresql"
}

func driverName(driver string) string {
	if driver == "" {
		return "postgres"
	}
	return driver
}

// telemetryStack holds the OpenTelemetry providers and the logger teed into
// the OTLP log bridge.
type telemetryStack struct {
	logger            *zap.Logger
	tracerProvider    *telemetry.TracerProvider
	meterProvider     *telemetry.MeterProvider
	loggerProvider    *telemetry.LoggerProvider
	dbInstrumentation *telemetry.DBInstrumentation
}

func initTelemetry(ctx context.Context, cfg *config.Config, bootLog *zap.Logger) (*telemetryStack, error) {
	t := &telemetryStack{logger: bootLog}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		return nil, err
	}
	t.loggerProvider = lp
	if lp.IsEnabled() {
		teed, err := logger.New(&logger.Config{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			Output:     cfg.Log.Output,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		}, telemetry.NewZapOTELCore(lp, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			return nil, err
		}
		t.logger = teed
	}

	t.tracerProvider, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, t.logger)
	if err != nil {
		return nil, err
	}

	t.meterProvider, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, t.logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *telemetryStack) meter() metric.Meter {
	return t.meterProvider.Meter("fulfillment")
}

// shutdown flushes spans, metrics and logs. Failures are logged only.
func (t *telemetryStack) shutdown(ctx context.Context) {
	if t.dbInstrumentation != nil {
		t.dbInstrumentation.Stop()
	}
	shutdowns := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"tracer", t.tracerProvider.Shutdown},
		{"meter", t.meterProvider.Shutdown},
		{"logger", t.loggerProvider.Shutdown},
	}
	for _, s := range shutdowns {
		if err := s.fn(ctx); err != nil {
			t.logger.Error("Telemetry provider shutdown failed", zap.String("provider", s.name), zap.Error(err))
		}
	}
}
