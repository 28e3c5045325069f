package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBInstrumentationConfig holds configuration for database tracing and metrics.
type DBInstrumentationConfig struct {
	Tracing            bool          // register the otelgorm plugin
	LogFullSQL         bool          // keep query variables in spans (dev only)
	SlowQueryThreshold time.Duration // default 200ms
	DBSystem           string        // default "postgresql"
	PoolStatsInterval  time.Duration // default 15s
}

// DBInstrumentation is a gorm.Plugin that traces queries through otelgorm,
// marks slow or failed queries on the active span and, when a meter is
// supplied, records query and connection pool metrics.
type DBInstrumentation struct {
	config DBInstrumentationConfig
	logger *zap.Logger

	queryTotal      *Counter
	queryDuration   *Histogram
	slowQueryTotal  *Counter
	poolConnections *Gauge

	sqlDB    *sql.DB
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type dbContextKey string

const queryStartKey dbContextKey = "fulfillment_db_query_start"

// NewDBInstrumentation creates the plugin. meter may be nil to disable metrics.
func NewDBInstrumentation(cfg DBInstrumentationConfig, meter metric.Meter, logger *zap.Logger) (*DBInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = 200 * time.Millisecond
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = 15 * time.Second
	}

	d := &DBInstrumentation{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
	if meter == nil {
		return d, nil
	}

	var err error
	if d.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if d.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the threshold by table", "{query}"); err != nil {
		return nil, err
	}
	if d.poolConnections, err = NewGauge(meter, "db_pool_connections", "Connections in the pool by state", "{connection}"); err != nil {
		return nil, err
	}
	d.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Name implements gorm.Plugin.
func (d *DBInstrumentation) Name() string {
	return "fulfillment:db_instrumentation"
}

// Initialize implements gorm.Plugin.
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	if d.config.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(d.config.DBSystem)}
		if !d.config.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return err
		}
	}

	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("fulfillment_db:before_create", d.before),
		cb.Query().Before("gorm:query").Register("fulfillment_db:before_query", d.before),
		cb.Update().Before("gorm:update").Register("fulfillment_db:before_update", d.before),
		cb.Delete().Before("gorm:delete").Register("fulfillment_db:before_delete", d.before),
		cb.Row().Before("gorm:row").Register("fulfillment_db:before_row", d.before),
		cb.Raw().Before("gorm:raw").Register("fulfillment_db:before_raw", d.before),

		cb.Create().After("gorm:create").Register("fulfillment_db:after_create", d.after("INSERT")),
		cb.Query().After("gorm:query").Register("fulfillment_db:after_query", d.after("SELECT")),
		cb.Update().After("gorm:update").Register("fulfillment_db:after_update", d.after("UPDATE")),
		cb.Delete().After("gorm:delete").Register("fulfillment_db:after_delete", d.after("DELETE")),
		cb.Row().After("gorm:row").Register("fulfillment_db:after_row", d.after("")),
		cb.Raw().After("gorm:raw").Register("fulfillment_db:after_raw", d.after("")),
	)
	if err != nil {
		return err
	}

	if sqlDB, err := db.DB(); err == nil {
		d.sqlDB = sqlDB
	}

	d.logger.Info("Database instrumentation enabled",
		zap.Bool("tracing", d.config.Tracing),
		zap.Bool("metrics", d.queryTotal != nil),
		zap.Duration("slow_query_threshold", d.config.SlowQueryThreshold),
	)
	return nil
}

func (d *DBInstrumentation) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey, time.Now())
}

// after returns the post-query callback; an empty operation is detected from the SQL text.
func (d *DBInstrumentation) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		op := operation
		if op == "" {
			op = detectOperationType(db.Statement.SQL.String())
		}
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}

		var elapsed time.Duration
		if start, ok := ctx.Value(queryStartKey).(time.Time); ok {
			elapsed = time.Since(start)
		}
		slow := elapsed > d.config.SlowQueryThreshold

		if d.queryTotal != nil {
			d.queryTotal.Inc(ctx, AttrDBOperation.String(op))
			d.queryDuration.RecordDuration(ctx, elapsed, AttrDBOperation.String(op))
			if slow {
				d.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
			}
		}

		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}
		span.SetAttributes(
			attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
			attribute.String("db.sql.table", table),
		)
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
		if slow {
			span.SetAttributes(attribute.Bool("db.slow_query", true))
			span.AddEvent("slow_query_warning", trace.WithAttributes(
				attribute.Int64("duration_ms", elapsed.Milliseconds()),
				attribute.Int64("threshold_ms", d.config.SlowQueryThreshold.Milliseconds()),
			))
		}
	}
}

func detectOperationType(query string) string {
	query = strings.ToUpper(strings.TrimSpace(query))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(query, op) {
			return op
		}
	}
	return "OTHER"
}

// StartPoolStatsCollection samples sql.DB pool stats until Stop or ctx is done.
func (d *DBInstrumentation) StartPoolStatsCollection(ctx context.Context) {
	if d.sqlDB == nil || d.poolConnections == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.config.PoolStatsInterval)
		defer ticker.Stop()

		d.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				d.collectPoolStats(ctx)
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *DBInstrumentation) collectPoolStats(ctx context.Context) {
	stats := d.sqlDB.Stats()
	d.poolConnections.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	d.poolConnections.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	d.poolConnections.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
	d.poolConnections.Record(ctx, int64(stats.MaxOpenConnections), AttrDBState.String("max"))
}

// Stop stops pool stats collection. Safe to call multiple times.
func (d *DBInstrumentation) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
}
